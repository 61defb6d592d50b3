// Package pipeline turns one candidate URL into durable output: fetch,
// transform, asset download, content write, metadata append. State is
// advanced by the caller only after Process returns successfully.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/sequence"
)

// Config controls per-task behavior.
type Config struct {
	// BlockResources asks the fetch collaborator to suppress
	// image/font/media loads; assets are downloaded separately.
	BlockResources bool
	// FetchTimeout bounds the collaborator fetch inside a task.
	FetchTimeout time.Duration
}

// Pipeline processes fetch tasks for any target.
type Pipeline struct {
	fetcher     archive.Fetcher
	transformer archive.Transformer
	assets      *AssetDownloader
	clock       archive.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Pipeline.
func New(
	fetcher archive.Fetcher,
	transformer archive.Transformer,
	assets *AssetDownloader,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:     fetcher,
		transformer: transformer,
		assets:      assets,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Process runs the full per-post flow for task against target. Any
// failure leaves no metadata entry, so the caller never advances state
// for a partially written post.
func (p *Pipeline) Process(
	ctx context.Context,
	target archive.Target,
	task sequence.Numbered,
) (*archive.PostRecord, error) {
	res, err := p.fetcher.Fetch(ctx, task.Candidate.URL, archive.FetchOptions{
		BlockResources: p.cfg.BlockResources,
		Timeout:        p.cfg.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	published := res.Published
	if published.IsZero() {
		published = task.Candidate.Published
	}

	rawHTML, assets := p.localizeAssets(ctx, target, task.Candidate.Slug, published, res)

	body, err := p.transformer.Transform(rawHTML)
	if err != nil {
		return nil, archive.NewFetchError(task.Candidate.URL, archive.FailurePermanent,
			fmt.Errorf("transform: %w", err))
	}

	record := archive.PostRecord{
		URL:       task.Candidate.URL,
		Title:     res.Title,
		Subtitle:  res.Subtitle,
		Published: published,
		Likes:     res.Likes,
		Number:    task.Number,
		FileName:  fileName(task.Number, task.Candidate.Slug),
		Assets:    assets,
		Markdown:  composeDocument(res.Title, res.Subtitle, published, res.Likes, body),
	}

	if err := p.writePost(target, record); err != nil {
		return nil, err
	}
	if err := appendMetadata(target, record); err != nil {
		return nil, fmt.Errorf("append metadata for %s: %w", record.URL, err)
	}
	return &record, nil
}

// localizeAssets downloads every referenced image and rewrites the
// content to point at the local copies. A failed download keeps the
// remote URL rather than failing the post.
func (p *Pipeline) localizeAssets(
	ctx context.Context,
	target archive.Target,
	slug string,
	published time.Time,
	res archive.FetchResult,
) (string, []string) {
	if p.assets == nil || len(res.Images) == 0 {
		return res.RawHTML, nil
	}

	local := make(map[string]string, len(res.Images))
	var downloaded []string
	for _, img := range res.Images {
		abs := absoluteURL(res.URL, img)
		rel, err := p.assets.Download(ctx, target, slug, published, abs)
		if err != nil {
			p.logger.Warn("asset download failed, keeping remote reference",
				zap.String("url", abs),
				zap.Error(err),
			)
			continue
		}
		local[img] = rel
		downloaded = append(downloaded, rel)
	}
	if len(local) == 0 {
		return res.RawHTML, nil
	}

	rewritten, err := rewriteImageSources(res.RawHTML, local)
	if err != nil {
		p.logger.Warn("image rewrite failed, keeping original content", zap.Error(err))
		return res.RawHTML, downloaded
	}
	return rewritten, downloaded
}

// writePost writes the markdown document into the target directory.
func (p *Pipeline) writePost(target archive.Target, rec archive.PostRecord) error {
	if err := os.MkdirAll(target.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir %s: %w", target.OutputDir, err)
	}
	full := filepath.Join(target.OutputDir, rec.FileName)
	if err := os.WriteFile(full, []byte(rec.Markdown), 0o600); err != nil {
		return fmt.Errorf("write post %s: %w", full, err)
	}
	return nil
}

// fileName pads the sequence number so lexical sort order equals
// chronological order.
func fileName(number int, slug string) string {
	return fmt.Sprintf("%03d-%s.md", number, archive.SafeFileName(slug))
}

// composeDocument prepends the metadata header block to the converted
// content.
func composeDocument(title, subtitle string, published time.Time, likes int, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if subtitle != "" {
		fmt.Fprintf(&b, "## %s\n\n", subtitle)
	}
	if !published.IsZero() {
		fmt.Fprintf(&b, "**%s**\n\n", published.Format("January 2, 2006"))
	}
	fmt.Fprintf(&b, "**Likes:** %d\n\n", likes)
	b.WriteString(body)
	return b.String()
}

func rewriteImageSources(rawHTML string, local map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			return
		}
		if rel, mapped := local[src]; mapped {
			sel.SetAttr("src", rel)
		}
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize content: %w", err)
	}
	return out, nil
}

func absoluteURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
