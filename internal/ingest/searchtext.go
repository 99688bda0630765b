package ingest

import "strings"

// genericLocations are discarded when building search text; they carry no
// geographic signal for the embedding.
var genericLocations = map[string]struct{}{
	"GLOBAL": {},
	"WORLD":  {},
	"NONE":   {},
	"N/A":    {},
	"":       {},
}

// SearchTextInput is the slice of analysis fields the embedding cares about.
type SearchTextInput struct {
	Title              string
	PrimaryLocation    string
	EventSummaryPoints []string
	ThematicKeywords   []string
	TopicTags          []string
	KeyEntities        []string
	ContentFocus       []string
}

// SearchTextFromAnalysis adapts a full Analysis for BuildSearchText.
func SearchTextFromAnalysis(title string, a Analysis) SearchTextInput {
	return SearchTextInput{
		Title:              title,
		PrimaryLocation:    a.PrimaryLocation,
		EventSummaryPoints: a.EventSummaryPoints,
		ThematicKeywords:   a.ThematicKeywords,
		TopicTags:          a.TopicTags,
		KeyEntities:        a.KeyEntities,
		ContentFocus:       a.ContentFocus,
	}
}

// BuildSearchText deterministically flattens analysis fields into the single
// string fed to the embedding model. Parts are joined by ". " unless the
// previous part already ends with a period; the result always ends with a
// period when non-empty.
func BuildSearchText(in SearchTextInput) string {
	parts := make([]string, 0, 8)

	if t := strings.TrimSpace(in.Title); t != "" {
		parts = append(parts, t)
	}
	loc := strings.TrimSpace(in.PrimaryLocation)
	if _, generic := genericLocations[strings.ToUpper(loc)]; !generic {
		parts = append(parts, loc)
	}
	for _, p := range in.EventSummaryPoints {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") {
			p += "."
		}
		parts = append(parts, p)
	}
	for _, group := range [][]string{in.KeyEntities, in.ThematicKeywords, in.TopicTags, in.ContentFocus} {
		for _, s := range group {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
	}

	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			if strings.HasSuffix(parts[i-1], ".") {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(p)
	}
	out := b.String()
	if out != "" && !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}
