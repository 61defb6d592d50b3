package headless

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

const samplePostHTML = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Fallback Title">
<meta property="article:published_time" content="2024-01-03T12:00:00Z">
</head><body>
<article>
<h1 class="post-title">On Incremental Archives</h1>
<h3 class="subtitle">Why state files beat re-crawls</h3>
<time datetime="2024-01-03T12:00:00Z">Jan 3, 2024</time>
<a class="post-ufi-button"><span class="label">1,204</span></a>
<div class="available-content"><div class="body markup">
<p>First paragraph.</p>
<img src="https://cdn.example.com/a.png">
<img src="https://cdn.example.com/a.png">
<img src="data:image/gif;base64,R0lGOD">
<img src="https://cdn.example.com/b.jpg">
</div></div>
</article>
</body></html>`

const paywalledHTML = `<!DOCTYPE html>
<html><body>
<h1 class="post-title">Premium Only</h1>
<div data-testid="paywall"><p>This post is for paid subscribers</p></div>
</body></html>`

func TestExtractPost(t *testing.T) {
	t.Parallel()

	res, err := extractPost(samplePostHTML, "https://example.substack.com/p/archives", false)
	require.NoError(t, err)

	require.Equal(t, "On Incremental Archives", res.Title)
	require.Equal(t, "Why state files beat re-crawls", res.Subtitle)
	require.Equal(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), res.Published)
	require.Equal(t, 1204, res.Likes)
	require.Contains(t, res.RawHTML, "First paragraph.")

	// Duplicates and data: URIs are dropped.
	require.Equal(t, []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.jpg",
	}, res.Images)
}

func TestExtractPostPaywallWithoutLogin(t *testing.T) {
	t.Parallel()

	_, err := extractPost(paywalledHTML, "https://example.substack.com/p/premium", false)
	require.Error(t, err)
	require.Equal(t, archive.FailureAuthRequired, archive.ClassOf(err))

	var fetchErr *archive.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, "https://example.substack.com/p/premium", fetchErr.URL)
}

func TestExtractPostNoContent(t *testing.T) {
	t.Parallel()

	_, err := extractPost("<html><body><p>not a post</p></body></html>",
		"https://example.substack.com/p/missing", true)
	require.Error(t, err)
	require.Equal(t, archive.FailurePermanent, archive.ClassOf(err))
}

func TestExtractPostFallsBackToMetaTitle(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta property="og:title" content="Meta Title"></head>
<body><article><p>body</p></article></body></html>`
	res, err := extractPost(html, "https://example.substack.com/p/meta", true)
	require.NoError(t, err)
	require.Equal(t, "Meta Title", res.Title)
	require.True(t, res.Published.IsZero())
	require.Zero(t, res.Likes)
}
