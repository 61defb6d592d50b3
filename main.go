// The main package for the substack-archiver executable.
package main

import (
	"github.com/jfmartin/substack-archiver/cmd"
)

func main() {
	cmd.Execute()
}
