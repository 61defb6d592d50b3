// Package transform converts raw post HTML into Markdown. The
// conversion algorithm itself lives in the html-to-markdown library;
// this package only adapts it to the Transformer contract.
package transform

import (
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Markdown implements archive.Transformer. Pure and safe to retry.
type Markdown struct{}

// NewMarkdown returns a Markdown transformer.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Transform converts rawHTML to Markdown text.
func (m *Markdown) Transform(rawHTML string) (string, error) {
	md, err := htmltomarkdown.ConvertString(rawHTML)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return md, nil
}
