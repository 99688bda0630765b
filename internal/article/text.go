package article

import (
	"regexp"
	"strings"
)

var spaceTabRun = regexp.MustCompile(`[ \t]+`)

// CleanText normalizes extracted article text: runs of spaces and tabs
// collapse to a single space, every line is trimmed, and at most two
// consecutive blank lines survive. Idempotent.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimSpace(spaceTabRun.ReplaceAllString(line, " "))
		if line == "" {
			blanks++
			if blanks > 2 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.Trim(strings.Join(out, "\n"), "\n")
}
