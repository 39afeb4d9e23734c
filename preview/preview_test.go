package preview

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type fakeBlobs struct {
	data map[string]string
	sets int
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{data: make(map[string]string)} }

func (f *fakeBlobs) Get(ctx context.Context, key string) (string, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeBlobs) Set(ctx context.Context, key, value string) {
	f.data[key] = value
	f.sets++
}

func TestGetServesFromCache(t *testing.T) {
	blobs := newFakeBlobs()
	rawURL := "https://example.com/a?b=c"
	blobs.data[keyPrefix+url.QueryEscape(rawURL)] = `{"url":"https://example.com/a?b=c","title":"Cached","excerpt":"hi"}`

	svc := NewService(blobs)
	p, err := svc.Get(context.Background(), rawURL)
	require.NoError(t, err)
	require.Equal(t, "Cached", p.Title)
	require.Equal(t, 0, blobs.sets, "a cache hit never re-extracts")
}

func TestCacheKeyIsURLEncoded(t *testing.T) {
	rawURL := "https://example.com/path?q=a b&x=1"
	key := keyPrefix + url.QueryEscape(rawURL)
	require.NotContains(t, key[len(keyPrefix):], " ")
	require.True(t, strings.HasPrefix(key, "preview:"))
}

func TestExcerptOf(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
		content string
		want    string
	}{
		{
			name:    "extractor excerpt preferred",
			excerpt: "  summary  ",
			content: "<p>ignored</p>",
			want:    "summary",
		},
		{
			name:    "derived from content html",
			content: "<p>hello   <b>world</b></p>",
			want:    "hello world",
		},
		{
			name: "empty everything",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, excerptOf(tt.excerpt, tt.content))
		})
	}
}

func TestExcerptTruncatesOnWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerptOf(long, "")
	require.LessOrEqual(t, len(got), maxExcerptLen+len("…"))
	require.True(t, strings.HasSuffix(got, "…"))
	require.NotContains(t, got, "  ")
}

func TestExcerptTruncatesOnRuneBoundary(t *testing.T) {
	// Multibyte prose with no spaces: the cut must land between runes, never
	// inside one.
	long := strings.Repeat("日本語のテキスト", 40)
	got := excerptOf(long, "")
	require.True(t, utf8.ValidString(got))
	require.True(t, strings.HasSuffix(got, "…"))
	require.LessOrEqual(t, len(got), maxExcerptLen+len("…"))
}
