// Package article extracts the main content of a news page.
package article

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/meridian-news/ingest/internal/ingest"
)

// Parser runs a readability-style extractor over fetched HTML and renders the
// surviving fragment to normalized markdown text for analysis and storage.
// A fresh converter is built per document so one Parser can serve the whole
// worker batch concurrently.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts {title, text, publishedTime} from an HTML document.
// Documents where no main content survives return ingest.ErrNoArticle.
func (p *Parser) Parse(html []byte, pageURL string) (ingest.ParsedArticle, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return ingest.ParsedArticle{}, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := readability.FromReader(strings.NewReader(string(html)), parsedURL)
	if err != nil {
		return ingest.ParsedArticle{}, fmt.Errorf("%w: readability: %v", ingest.ErrParse, err)
	}

	text, err := md.NewConverter("", true, nil).ConvertString(doc.Content)
	if err != nil {
		// Markdown conversion is best-effort; fall back to the plain text
		// readability already produced.
		text = doc.TextContent
	}

	title := ingest.CleanString(doc.Title)
	text = CleanText(text)
	if title == "" || text == "" {
		return ingest.ParsedArticle{}, fmt.Errorf("%w: empty title or body after normalization", ingest.ErrNoArticle)
	}

	result := ingest.ParsedArticle{Title: title, Text: text}
	if doc.PublishedTime != nil {
		t := doc.PublishedTime.UTC()
		result.PublishedTime = &t
	} else if t := publishedTimeFromMeta(html); t != nil {
		result.PublishedTime = t
	}
	return result, nil
}

// metaTimeSelectors are checked in order when readability finds no date.
var metaTimeSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="date"]`,
	`time[datetime]`,
}

// publishedTimeFromMeta scans document metadata for a publish timestamp.
func publishedTimeFromMeta(html []byte) *time.Time {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil
	}
	for _, sel := range metaTimeSelectors {
		node := doc.Find(sel).First()
		value, ok := node.Attr("content")
		if !ok {
			value, ok = node.Attr("datetime")
		}
		if !ok || value == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
	}
	return nil
}
