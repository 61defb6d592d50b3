// Package discovery resolves a target's content index into the set of
// candidate post URLs not yet recorded in crawl state.
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/metrics"
)

// indexClient fetches raw index documents.
type indexClient interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Service discovers candidates from sitemap.xml, falling back to
// feed.xml when the sitemap is missing or empty.
type Service struct {
	client indexClient
	logger *zap.Logger
}

// New returns a Service.
func New(client indexClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// Discover produces candidates for target ordered oldest-first,
// excluding keyword-filtered URLs and URLs already in state. A failure
// to resolve both index forms is a DiscoveryError for this target.
func (s *Service) Discover(
	ctx context.Context,
	target archive.Target,
	state archive.CrawlState,
) (archive.DiscoveryResult, error) {
	metrics.DiscoveryRuns.Inc()

	entries, err := s.fromSitemap(ctx, target)
	if err != nil || len(entries) == 0 {
		if err != nil {
			s.logger.Warn("sitemap discovery failed, falling back to feed",
				zap.String("target", target.Writer),
				zap.Error(err),
			)
		}
		entries, err = s.fromFeed(ctx, target)
		if err != nil {
			return archive.DiscoveryResult{}, &archive.DiscoveryError{Target: target.Writer, Err: err}
		}
	}

	result := s.filter(target, state, entries)
	s.logger.Info("discovery complete",
		zap.String("target", target.Writer),
		zap.Int("index_entries", len(entries)),
		zap.Int("new_candidates", len(result.Candidates)),
		zap.Int("skipped_known", result.SkippedKnown),
	)
	return result, nil
}

func (s *Service) fromSitemap(ctx context.Context, target archive.Target) ([]indexEntry, error) {
	data, err := s.client.Get(ctx, target.BaseURL+"sitemap.xml")
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}

	// Large sites publish a sitemap index pointing at per-year child
	// sitemaps; collect entries from every child.
	if children := parseSitemapIndex(data); len(children) > 0 {
		var all []indexEntry
		for _, child := range children {
			childData, err := s.client.Get(ctx, child)
			if err != nil {
				s.logger.Warn("child sitemap fetch failed",
					zap.String("sitemap", child), zap.Error(err))
				continue
			}
			entries, err := parseSitemap(childData)
			if err != nil {
				s.logger.Warn("child sitemap parse failed",
					zap.String("sitemap", child), zap.Error(err))
				continue
			}
			all = append(all, entries...)
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("sitemap index %ssitemap.xml yielded no entries", target.BaseURL)
		}
		return all, nil
	}

	return parseSitemap(data)
}

func (s *Service) fromFeed(ctx context.Context, target archive.Target) ([]indexEntry, error) {
	data, err := s.client.Get(ctx, target.BaseURL+"feed.xml")
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	return parseFeed(data)
}

// filter applies keyword exclusion, subtracts known URLs, deduplicates,
// orders oldest-first, and truncates to the target's max-items limit.
func (s *Service) filter(
	target archive.Target,
	state archive.CrawlState,
	entries []indexEntry,
) archive.DiscoveryResult {
	seen := make(map[string]struct{}, len(entries))
	candidates := make([]archive.Candidate, 0, len(entries))
	skipped := 0

	for _, e := range entries {
		if e.URL == target.BaseURL {
			continue
		}
		if _, dup := seen[e.URL]; dup {
			continue
		}
		seen[e.URL] = struct{}{}

		c := archive.Candidate{
			URL:       e.URL,
			Slug:      archive.SlugOf(e.URL),
			Published: e.Published,
			TitleHint: e.Title,
		}
		if archive.ContainsKeyword(c, target.Keywords) {
			continue
		}
		if state.Knows(c.URL) {
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	// Oldest first; entries without an index timestamp sort ahead,
	// stable by index order, so incremental growth is deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Published.Before(candidates[j].Published)
	})

	if target.MaxItems > 0 && len(candidates) > target.MaxItems {
		candidates = candidates[:target.MaxItems]
	}
	return archive.DiscoveryResult{Candidates: candidates, SkippedKnown: skipped}
}
