// Package feed decodes publisher RSS/Atom/RDF documents into validated
// entries ready for article insertion.
package feed

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/meridian-news/ingest/internal/ingest"
)

// unknownField substitutes for feed entries that omit a title.
const unknownField = "UNKNOWN"

// Parser wraps the universal gofeed decoder with the validation and
// canonicalization rules the scheduler relies on. A fresh gofeed parser is
// built per document so one Parser can serve many scraper goroutines.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a feed document. Malformed entries are dropped, not raised;
// the document itself failing to decode is ingest.ErrParse, and a document
// where no entry survives validation is ingest.ErrValidation. Output order
// matches feed order.
func (p *Parser) Parse(data []byte) ([]ingest.FeedEntry, error) {
	doc, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode feed: %v", ingest.ErrParse, err)
	}

	entries := make([]ingest.FeedEntry, 0, len(doc.Items))
	for _, item := range doc.Items {
		entry, ok := normalizeItem(item)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries survived validation", ingest.ErrValidation)
	}
	return entries, nil
}

// normalizeItem applies the tolerated decoding rules to one feed item and
// validates the result. Returns ok=false for entries that must be dropped.
func normalizeItem(item *gofeed.Item) (ingest.FeedEntry, bool) {
	title := ingest.CleanString(item.Title)
	if title == "" {
		title = unknownField
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}
	link = ingest.CleanURL(link)
	if err := ingest.ValidateURL(link); err != nil {
		return ingest.FeedEntry{}, false
	}

	entry := ingest.FeedEntry{
		Title: title,
		Link:  link,
		GUID:  item.GUID,
	}
	// pubDate, published, and updated are all mapped by gofeed; unparseable
	// dates come back nil and the entry is still accepted.
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		entry.PubDate = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		entry.PubDate = &t
	}
	return entry, true
}
