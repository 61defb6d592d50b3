package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/sequence"
)

type fakeFetcher struct {
	result archive.FetchResult
	err    error
	opts   archive.FetchOptions
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, opts archive.FetchOptions) (archive.FetchResult, error) {
	f.opts = opts
	if f.err != nil {
		return archive.FetchResult{}, f.err
	}
	res := f.result
	res.URL = url
	return res, nil
}

func (f *fakeFetcher) Login(context.Context) error { return nil }

type fakeTransformer struct {
	err error
}

func (f *fakeTransformer) Transform(rawHTML string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "converted: " + rawHTML, nil
}

type fakeAssetClient struct {
	data map[string][]byte
}

func (f *fakeAssetClient) Get(_ context.Context, url string) ([]byte, error) {
	data, ok := f.data[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: status 404", url)
	}
	return data, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTarget(t *testing.T) archive.Target {
	t.Helper()
	return archive.Target{
		BaseURL:   "https://foo.substack.com/",
		Writer:    "foo",
		OutputDir: filepath.Join(t.TempDir(), "foo"),
	}
}

func task(url, slug string, number int) sequence.Numbered {
	return sequence.Numbered{
		Candidate: archive.Candidate{URL: url, Slug: slug},
		Number:    number,
	}
}

func TestProcessWritesPostAndMetadata(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	fetcher := &fakeFetcher{result: archive.FetchResult{
		RawHTML:   "<p>hello</p>",
		Title:     "Hello World",
		Subtitle:  "a greeting",
		Published: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Likes:     7,
	}}
	p := New(fetcher, &fakeTransformer{}, nil, fixedClock{}, Config{BlockResources: true}, zap.NewNop())

	rec, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/hello-world", "hello-world", 3))
	require.NoError(t, err)
	require.Equal(t, "003-hello-world.md", rec.FileName)
	require.Equal(t, 3, rec.Number)
	require.True(t, fetcher.opts.BlockResources)

	data, err := os.ReadFile(filepath.Join(target.OutputDir, rec.FileName))
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# Hello World")
	require.Contains(t, content, "## a greeting")
	require.Contains(t, content, "**January 3, 2024**")
	require.Contains(t, content, "**Likes:** 7")
	require.Contains(t, content, "converted: <p>hello</p>")

	meta, err := os.ReadFile(filepath.Join(target.OutputDir, MetadataFileName))
	require.NoError(t, err)
	var records []archive.PostRecord
	require.NoError(t, json.Unmarshal(meta, &records))
	require.Len(t, records, 1)
	require.Equal(t, "Hello World", records[0].Title)
	require.Empty(t, records[0].Markdown, "markdown content must not be persisted in metadata")
}

func TestProcessFallsBackToCandidateDate(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	fetcher := &fakeFetcher{result: archive.FetchResult{RawHTML: "<p>x</p>", Title: "T"}}
	p := New(fetcher, &fakeTransformer{}, nil, fixedClock{}, Config{}, zap.NewNop())

	tk := task("https://foo.substack.com/p/x", "x", 1)
	tk.Candidate.Published = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	rec, err := p.Process(context.Background(), target, tk)
	require.NoError(t, err)
	require.Equal(t, tk.Candidate.Published, rec.Published)
}

func TestProcessFetchErrorLeavesNoArtifacts(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	fetcher := &fakeFetcher{err: archive.NewFetchError("u", archive.FailureTransient, errors.New("timeout"))}
	p := New(fetcher, &fakeTransformer{}, nil, fixedClock{}, Config{}, zap.NewNop())

	_, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.Error(t, err)
	require.Equal(t, archive.FailureTransient, archive.ClassOf(err))

	_, statErr := os.Stat(target.OutputDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessTransformErrorIsPermanent(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	fetcher := &fakeFetcher{result: archive.FetchResult{RawHTML: "<p>x</p>", Title: "T"}}
	p := New(fetcher, &fakeTransformer{err: errors.New("bad html")}, nil, fixedClock{}, Config{}, zap.NewNop())

	_, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.Error(t, err)
	require.Equal(t, archive.FailurePermanent, archive.ClassOf(err))

	_, statErr := os.Stat(filepath.Join(target.OutputDir, MetadataFileName))
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessWriteFailureLeavesNoMetadata(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	// A regular file where the output directory should be makes the
	// post write fail after fetch and transform have both succeeded.
	require.NoError(t, os.WriteFile(target.OutputDir, []byte("in the way"), 0o600))

	fetcher := &fakeFetcher{result: archive.FetchResult{RawHTML: "<p>x</p>", Title: "T"}}
	p := New(fetcher, &fakeTransformer{}, nil, fixedClock{}, Config{}, zap.NewNop())

	_, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.Error(t, err)

	info, statErr := os.Stat(target.OutputDir)
	require.NoError(t, statErr)
	require.False(t, info.IsDir(), "failed write must not replace the blocking file")
}

func TestProcessMetadataFailureAfterPostWrite(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	// A directory squatting on the metadata path fails the metadata
	// append after the post file itself was written.
	require.NoError(t, os.MkdirAll(filepath.Join(target.OutputDir, MetadataFileName), 0o750))

	fetcher := &fakeFetcher{result: archive.FetchResult{RawHTML: "<p>x</p>", Title: "T"}}
	p := New(fetcher, &fakeTransformer{}, nil, fixedClock{}, Config{}, zap.NewNop())

	_, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "metadata")

	// The post file may exist, but Process reported failure, so the
	// caller never advances state and the URL stays a candidate.
	_, statErr := os.Stat(filepath.Join(target.OutputDir, "001-x.md"))
	require.NoError(t, statErr)
}

func TestProcessDownloadsAndRewritesImages(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	imgURL := "https://cdn.example.com/pic.png"
	fetcher := &fakeFetcher{result: archive.FetchResult{
		RawHTML: `<p>text</p><img src="` + imgURL + `">`,
		Title:   "T",
		Images:  []string{imgURL},
	}}
	assets := NewAssetDownloader(&fakeAssetClient{data: map[string][]byte{
		imgURL: []byte("png-bytes"),
	}}, zap.NewNop())
	p := New(fetcher, &fakeTransformer{}, assets, fixedClock{}, Config{}, zap.NewNop())

	rec, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.NoError(t, err)
	require.Len(t, rec.Assets, 1)
	require.Contains(t, rec.Markdown, rec.Assets[0])
	require.NotContains(t, rec.Markdown, imgURL)

	saved, err := os.ReadFile(filepath.Join(target.OutputDir, filepath.FromSlash(rec.Assets[0])))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(saved))
}

func TestProcessKeepsRemoteURLWhenDownloadFails(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	imgURL := "https://cdn.example.com/missing.png"
	fetcher := &fakeFetcher{result: archive.FetchResult{
		RawHTML: `<img src="` + imgURL + `">`,
		Title:   "T",
		Images:  []string{imgURL},
	}}
	assets := NewAssetDownloader(&fakeAssetClient{}, zap.NewNop())
	p := New(fetcher, &fakeTransformer{}, assets, fixedClock{}, Config{}, zap.NewNop())

	rec, err := p.Process(context.Background(), target, task("https://foo.substack.com/p/x", "x", 1))
	require.NoError(t, err)
	require.Empty(t, rec.Assets)
	require.Contains(t, rec.Markdown, imgURL)
}

func TestAppendMetadataUpsertsAndSorts(t *testing.T) {
	t.Parallel()

	target := newTarget(t)
	require.NoError(t, os.MkdirAll(target.OutputDir, 0o750))

	recB := archive.PostRecord{URL: "https://foo.substack.com/p/b", Number: 2, Title: "B"}
	recA := archive.PostRecord{URL: "https://foo.substack.com/p/a", Number: 1, Title: "A"}
	require.NoError(t, appendMetadata(target, recB))
	require.NoError(t, appendMetadata(target, recA))

	// Re-archiving a post replaces its entry instead of duplicating it.
	recB.Title = "B v2"
	require.NoError(t, appendMetadata(target, recB))

	records, err := loadMetadata(filepath.Join(target.OutputDir, MetadataFileName))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "A", records[0].Title)
	require.Equal(t, "B v2", records[1].Title)

	// Rewrites are atomic: no temp files survive.
	entries, err := os.ReadDir(target.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, MetadataFileName, entries[0].Name())
}

func TestAssetFileNameDeterministic(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	a := assetFileName("my-post", published, "https://cdn.example.com/pic.png")
	b := assetFileName("my-post", published, "https://cdn.example.com/pic.png")
	c := assetFileName("my-post", published, "https://cdn.example.com/other.png")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.True(t, filepath.Ext(a) == ".png")
	require.Contains(t, a, "20240103")

	// Extension defaults to .jpg when the URL has none.
	d := assetFileName("my-post", published, "https://cdn.example.com/image")
	require.Equal(t, ".jpg", filepath.Ext(d))
}
