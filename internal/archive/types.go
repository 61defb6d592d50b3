// Package archive defines core types shared across subsystems.
package archive

import (
	"time"
)

// Target identifies one newsletter site to crawl. Immutable per run.
type Target struct {
	// BaseURL is the site root, always with a trailing slash.
	BaseURL string `json:"base_url"`
	// Writer is the short name derived from BaseURL, used as the
	// per-target output directory name.
	Writer string `json:"writer"`
	// OutputDir is the directory holding this target's post files,
	// assets, metadata document and crawl state.
	OutputDir string `json:"output_dir"`
	// Keywords are exclusion keywords: discovered URLs whose URL or
	// title hint contains one of them (case-insensitive) are dropped.
	Keywords []string `json:"keywords"`
	// MaxItems caps how many new posts one run may fetch. 0 = unlimited.
	MaxItems int `json:"max_items"`
}

// Candidate is a not-yet-fetched post discovered from a site index.
type Candidate struct {
	URL string `json:"url"`
	// Slug is the last path segment of URL, used for filenames.
	Slug string `json:"slug"`
	// Published is the discovery-time publish timestamp (sitemap
	// lastmod or feed pubDate). Zero when the index carried none.
	Published time.Time `json:"published,omitempty"`
	// TitleHint is the entry title when the index carried one.
	TitleHint string `json:"title_hint,omitempty"`
}

// CrawlState is the persisted per-target state. HighestNumber never
// decreases across runs and SeenURLs only grows; both advance only
// after a post's output artifacts are fully written.
type CrawlState struct {
	LatestDate    time.Time `json:"latestDate"`
	LatestURL     string    `json:"latestURL"`
	HighestNumber int       `json:"highestNumber"`
	SeenURLs      URLSet    `json:"seenURLs"`
}

// Knows reports whether url was persisted by a previous run.
func (s *CrawlState) Knows(url string) bool {
	return s.SeenURLs.Contains(url)
}

// Advance records a completed post: marks its URL seen, raises
// HighestNumber, and moves the latest-seen fields forward when the
// post is newer than anything recorded so far.
func (s *CrawlState) Advance(rec PostRecord) {
	s.SeenURLs.Add(rec.URL)
	if rec.Number > s.HighestNumber {
		s.HighestNumber = rec.Number
	}
	if rec.Published.After(s.LatestDate) {
		s.LatestDate = rec.Published
		s.LatestURL = rec.URL
	}
}

// PostRecord is the immutable result of one fully processed post.
type PostRecord struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Published time.Time `json:"published"`
	Likes     int       `json:"likes"`
	Number    int       `json:"number"`
	FileName  string    `json:"file"`
	// Assets are the local relative paths of downloaded images.
	Assets []string `json:"assets,omitempty"`
	// Markdown is the transformed content; populated during pipeline
	// processing and not persisted in the metadata document.
	Markdown string `json:"-"`
}

// FetchResult is what the fetch collaborator returns for one post URL.
type FetchResult struct {
	URL       string
	RawHTML   string
	Title     string
	Subtitle  string
	Published time.Time
	Likes     int
	// Images are the absolute image URLs referenced by the content.
	Images []string
}

// FetchOptions tune a single collaborator fetch.
type FetchOptions struct {
	// BlockResources suppresses image/font/media loads in the browser.
	BlockResources bool
	Timeout        time.Duration
}

// Outcome pairs a candidate with its terminal result. Exactly one of
// Record and Err is set.
type Outcome struct {
	Candidate Candidate
	Record    *PostRecord
	Err       error
}

// DiscoveryResult is one discovery pass over a target's index.
type DiscoveryResult struct {
	// Candidates are the new post URLs, ordered oldest-first.
	Candidates []Candidate
	// SkippedKnown counts index entries dropped because state already
	// records them.
	SkippedKnown int
}

// TargetResult aggregates one target's run.
type TargetResult struct {
	Target    Target
	Succeeded []PostRecord
	Failed    []Failure
	// Skipped counts candidates dropped as already-seen duplicates.
	Skipped int
	// DiscoveryErr is set when the target's index could not be
	// resolved at all; Succeeded/Failed are empty in that case.
	DiscoveryErr error
}

// Failure records one post that could not be persisted.
type Failure struct {
	URL string
	Err error
}

// BatchResult is the whole run's summary. Never persisted.
type BatchResult struct {
	RunID   string
	Targets []TargetResult
}

// Failed reports whether any target had a discovery error or at least
// one permanent post failure. Drives the process exit status.
func (b *BatchResult) Failed() bool {
	for _, t := range b.Targets {
		if t.DiscoveryErr != nil || len(t.Failed) > 0 {
			return true
		}
	}
	return false
}
