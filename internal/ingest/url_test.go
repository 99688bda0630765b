package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Hello World", CleanString("  Hello \t\n World  "))
	require.Equal(t, "", CleanString(" \n\t "))

	once := CleanString("  a   b  ")
	require.Equal(t, once, CleanString(once), "CleanString must be idempotent")
}

func TestCleanURLStripsTrackingParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "utm params removed",
			in:   "https://example.com/a?utm_source=x&utm_medium=rss",
			want: "https://example.com/a",
		},
		{
			name: "fbclid and gclid removed, others kept",
			in:   "https://example.com/a?fbclid=abc&gclid=def&page=2",
			want: "https://example.com/a?page=2",
		},
		{
			name: "mixed case tracking key removed",
			in:   "https://example.com/a?UTM_Campaign=x",
			want: "https://example.com/a",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  https://example.com/a  ",
			want: "https://example.com/a",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CleanURL(tc.in))
		})
	}
}

func TestCleanURLIdempotent(t *testing.T) {
	t.Parallel()
	in := "https://example.com/story?utm_source=feed&id=9"
	once := CleanURL(in)
	require.Equal(t, once, CleanURL(once))
}

func TestValidateURL(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateURL("https://example.com/a"))
	require.Error(t, ValidateURL("ftp://example.com/a"))
	require.Error(t, ValidateURL("not a url"))
	require.Error(t, ValidateURL("/relative/path"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", HostOf("https://EXAMPLE.com/a?x=1"))
	require.Equal(t, "", HostOf("://bad"))
}
