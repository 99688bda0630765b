package article

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-news/ingest/internal/ingest"
)

func articleHTML(title, body string) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
  <nav>Site navigation that should disappear</nav>
  <article>
    <h1>%s</h1>
    %s
  </article>
  <footer>Copyright footer</footer>
</body>
</html>`, title, title, body))
}

func TestParseExtractsMainContent(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("<p>The central bank held rates steady on Thursday, citing cooling inflation and a resilient labor market across member states.</p>\n", 8)
	got, err := NewParser().Parse(articleHTML("Rates Held Steady", body), "https://example.com/story")
	require.NoError(t, err)
	require.Contains(t, got.Title, "Rates Held Steady")
	require.Contains(t, got.Text, "central bank held rates steady")
	require.NotContains(t, got.Text, "Site navigation")
}

func TestParsePublishedTimeFromMeta(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("<p>Officials confirmed the agreement late on Wednesday after months of negotiation between the parties involved.</p>\n", 8)
	html := []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Deal Reached</title>
  <meta property="article:published_time" content="2025-03-04T10:30:00Z"/>
</head>
<body><article><h1>Deal Reached</h1>%s</article></body>
</html>`, body))

	got, err := NewParser().Parse(html, "https://example.com/deal")
	require.NoError(t, err)
	require.NotNil(t, got.PublishedTime)
	require.Equal(t, 2025, got.PublishedTime.Year())
	require.Equal(t, 3, int(got.PublishedTime.Month()))
}

func TestParseEmptyDocument(t *testing.T) {
	t.Parallel()
	_, err := NewParser().Parse([]byte("<html><head><title></title></head><body></body></html>"), "https://example.com/empty")
	require.ErrorIs(t, err, ingest.ErrNoArticle)
}

func TestCleanText(t *testing.T) {
	t.Parallel()
	in := "  First\t\tline  \n\n\n\n\nSecond   line\nThird\n\n"
	require.Equal(t, "First line\n\n\nSecond line\nThird", CleanText(in))
}

func TestCleanTextIdempotent(t *testing.T) {
	t.Parallel()
	in := "a  b\n\n\n\n\nc\td \n"
	once := CleanText(in)
	require.Equal(t, once, CleanText(once))
}

func TestCleanTextBlankLineCap(t *testing.T) {
	t.Parallel()
	out := CleanText("a\n\n\n\n\n\n\nb")
	require.NotContains(t, out, "\n\n\n\n")
	require.Equal(t, "a\n\n\nb", out)
}
