package headless

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// contentSelectors locate the post body, tried in order from most to
// least specific. Free posts render the full body inside
// available-content; older themes only carry the article element.
var contentSelectors = []string{
	"div.available-content div.body.markup",
	"div.available-content",
	"article div.body.markup",
	"article",
}

// extractPost parses a rendered post page into a FetchResult. A paywall
// on an unauthenticated session is an auth_required failure; a page
// with no recognizable post body is permanent.
func extractPost(html, url string, loggedIn bool) (archive.FetchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return archive.FetchResult{}, archive.NewFetchError(url, archive.FailurePermanent,
			fmt.Errorf("parse page: %w", err))
	}

	if isPaywalled(doc) && !loggedIn {
		return archive.FetchResult{}, archive.NewFetchError(url, archive.FailureAuthRequired,
			fmt.Errorf("post is behind a paywall and the session is not logged in"))
	}

	content := findContent(doc)
	if content == nil {
		return archive.FetchResult{}, archive.NewFetchError(url, archive.FailurePermanent,
			fmt.Errorf("no post content found on page"))
	}

	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return archive.FetchResult{}, archive.NewFetchError(url, archive.FailurePermanent,
			fmt.Errorf("serialize content: %w", err))
	}

	return archive.FetchResult{
		URL:       url,
		RawHTML:   contentHTML,
		Title:     extractTitle(doc),
		Subtitle:  extractSubtitle(doc),
		Published: extractDate(doc),
		Likes:     extractLikes(doc),
		Images:    extractImages(content),
	}, nil
}

func isPaywalled(doc *goquery.Document) bool {
	if doc.Find(`[data-testid="paywall"]`).Length() > 0 {
		return true
	}
	return doc.Find("div.paywall, h2.paywall-title").Length() > 0
}

func findContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{"h1.post-title", "h2.post-title", "h1"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func extractSubtitle(doc *goquery.Document) string {
	for _, sel := range []string{"h3.subtitle", "h2.subtitle"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// extractDate prefers the machine-readable datetime attribute over the
// rendered text, which varies by theme and locale.
func extractDate(doc *goquery.Document) time.Time {
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := dateparse.ParseAny(dt); err == nil {
			return t.UTC()
		}
	}
	if dt, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := dateparse.ParseAny(dt); err == nil {
			return t.UTC()
		}
	}
	if text := strings.TrimSpace(doc.Find("time").First().Text()); text != "" {
		if t, err := dateparse.ParseAny(text); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func extractLikes(doc *goquery.Document) int {
	for _, sel := range []string{
		"a.post-ufi-button .label",
		"div.like-button-container .label",
	} {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		text = strings.ReplaceAll(text, ",", "")
		if n, err := strconv.Atoi(text); err == nil {
			return n
		}
	}
	return 0
}

func extractImages(content *goquery.Selection) []string {
	var urls []string
	seen := make(map[string]struct{})
	content.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})
	return urls
}
