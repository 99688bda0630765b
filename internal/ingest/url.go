package ingest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanString collapses interior whitespace runs to a single space and trims
// the ends. Idempotent: CleanString(CleanString(x)) == CleanString(x).
func CleanString(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// CleanURL canonicalizes an article link for deduplication: whitespace is
// normalized and tracking parameters (utm_*, fbclid, gclid) are stripped.
// Unparseable input is returned cleaned but otherwise untouched.
func CleanURL(raw string) string {
	cleaned := CleanString(raw)
	u, err := url.Parse(cleaned)
	if err != nil {
		return cleaned
	}
	q := u.Query()
	changed := false
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "fbclid" || lower == "gclid" {
			q.Del(key)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ValidateURL checks that raw parses as an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// HostOf extracts the lowercase hostname, or "" when raw does not parse.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
