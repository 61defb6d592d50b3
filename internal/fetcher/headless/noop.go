package headless

import (
	"context"
	"errors"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// Noop implements archive.Fetcher but always returns an error to
// indicate that headless browsing is not available in the current
// build.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since this is a stub implementation.
func (Noop) Fetch(_ context.Context, url string, _ archive.FetchOptions) (archive.FetchResult, error) {
	return archive.FetchResult{}, archive.NewFetchError(url, archive.FailurePermanent,
		errors.New("headless fetcher not configured"))
}

// Login is a no-op.
func (Noop) Login(context.Context) error {
	return nil
}
