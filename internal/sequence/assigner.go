// Package sequence assigns monotonic, gap-free post numbers.
package sequence

import (
	"sort"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// Numbered pairs a candidate with its assigned sequence number. The
// number is fixed before scheduling and never reassigned, so output
// numbering is deterministic regardless of completion order.
type Numbered struct {
	Candidate archive.Candidate
	Number    int
}

// Assign orders candidates by publish date (oldest first, stable by
// discovery order for equal or unknown dates) and numbers them from
// highest+1. Numbers already recorded in state are never reused: a
// post discovered later with an earlier true publish date still gets
// the next free number.
func Assign(highest int, candidates []archive.Candidate) []Numbered {
	ordered := make([]archive.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Published.Before(ordered[j].Published)
	})

	out := make([]Numbered, len(ordered))
	for i, c := range ordered {
		out[i] = Numbered{Candidate: c, Number: highest + 1 + i}
	}
	return out
}
