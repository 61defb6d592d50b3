package archive

import (
	"encoding/json"
	"fmt"
	"sort"
)

// URLSet is a set of URLs persisted as a sorted JSON array so state
// files diff cleanly across runs.
type URLSet map[string]struct{}

// Add inserts url into the set.
func (s *URLSet) Add(url string) {
	if *s == nil {
		*s = make(URLSet)
	}
	(*s)[url] = struct{}{}
}

// Contains reports membership.
func (s URLSet) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

// Sorted returns the members in lexical order.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s URLSet) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(s.Sorted())
	if err != nil {
		return nil, fmt.Errorf("marshal url set: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a JSON array into the set.
func (s *URLSet) UnmarshalJSON(data []byte) error {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return fmt.Errorf("unmarshal url set: %w", err)
	}
	*s = make(URLSet, len(urls))
	for _, u := range urls {
		(*s)[u] = struct{}{}
	}
	return nil
}
