package archive

import (
	"context"
	"time"
)

// Fetcher loads a post page and returns its raw content plus resolved
// metadata. Implementations own login and anti-bot handling.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (FetchResult, error)
	// Login authenticates the session for premium content. Idempotent;
	// callable once per session.
	Login(ctx context.Context) error
}

// Transformer converts raw post HTML into the persisted text form.
// Pure: no side effects, safe to retry.
type Transformer interface {
	Transform(rawHTML string) (string, error)
}

// StateStore owns a target's persisted crawl state. All reads and
// writes for a target go through it.
type StateStore interface {
	Load(target Target) (CrawlState, error)
	Commit(target Target, state CrawlState) error
}

// Discoverer resolves a target's content index into candidates not
// already recorded in state.
type Discoverer interface {
	Discover(ctx context.Context, target Target, state CrawlState) (DiscoveryResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
