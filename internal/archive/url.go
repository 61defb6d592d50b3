package archive

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NormalizeBaseURL validates a target base address and guarantees a
// trailing slash so index paths join cleanly.
func NormalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// WriterName derives the short per-target name from a base URL.
// foo.substack.com yields "foo"; blog.example.com yields "example";
// other subdomained custom domains yield "sub-domain"; bare domains
// yield their first label.
func WriterName(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")

	switch {
	case len(parts) >= 3 && parts[len(parts)-2] == "substack" && parts[len(parts)-1] == "com":
		return parts[0]
	case len(parts) == 2 && parts[0] == "substack":
		return "substack"
	case len(parts) == 3:
		switch parts[0] {
		case "blog", "newsletter", "mail", "read":
			return parts[1]
		default:
			return parts[0] + "-" + parts[1]
		}
	case len(parts) >= 2:
		return parts[0]
	case len(parts) == 1 && parts[0] != "":
		return parts[0]
	default:
		return "unknown"
	}
}

// SlugOf returns the last path segment of a post URL.
func SlugOf(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// SafeFileName strips characters that cannot appear in a filename.
func SafeFileName(s string) string {
	cleaned := invalidFilenameChars.ReplaceAllString(s, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "post"
	}
	return cleaned
}

// ContainsKeyword reports whether any keyword appears in the URL or
// title hint, case-insensitive.
func ContainsKeyword(c Candidate, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		lower := strings.ToLower(kw)
		if strings.Contains(strings.ToLower(c.URL), lower) {
			return true
		}
		if c.TitleHint != "" && strings.Contains(strings.ToLower(c.TitleHint), lower) {
			return true
		}
	}
	return false
}
