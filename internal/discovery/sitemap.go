package discovery

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// indexEntry is one post reference extracted from a site index.
type indexEntry struct {
	URL       string
	Title     string
	Published time.Time
}

type sitemapDoc struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapIndexDoc struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapURL `xml:"sitemap"`
}

type feedDoc struct {
	XMLName xml.Name    `xml:"rss"`
	Channel feedChannel `xml:"channel"`
}

type feedChannel struct {
	Items []feedItem `xml:"item"`
}

type feedItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

// parseSitemap decodes a urlset document into entries.
func parseSitemap(data []byte) ([]indexEntry, error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	entries := make([]indexEntry, 0, len(doc.URLs))
	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		entries = append(entries, indexEntry{
			URL:       loc,
			Published: parseLenientDate(u.LastMod),
		})
	}
	return entries, nil
}

// parseSitemapIndex decodes a sitemapindex document and returns the
// child sitemap locations, or nil when the document is not an index.
func parseSitemapIndex(data []byte) []string {
	var doc sitemapIndexDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	locs := make([]string, 0, len(doc.Sitemaps))
	for _, s := range doc.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs
}

// parseFeed decodes an RSS feed document into entries.
func parseFeed(data []byte) ([]indexEntry, error) {
	var doc feedDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	entries := make([]indexEntry, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		entries = append(entries, indexEntry{
			URL:       link,
			Title:     strings.TrimSpace(item.Title),
			Published: parseLenientDate(item.PubDate),
		})
	}
	return entries, nil
}

// parseLenientDate accepts whatever timestamp shape the index carries.
// Unparseable or empty values yield the zero time.
func parseLenientDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
