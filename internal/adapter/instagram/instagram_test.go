package instagram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

func gridHTML(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><main><article>`)
	b.WriteString(`<a href="/about/">About</a>`)
	b.WriteString(`<a href="/p/noalt/"><img src="https://cdn.example/noalt.jpg"></a>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<a href="/p/post%d/"><img src="https://cdn.example/%d.jpg" alt="Post number %d %s"></a>`,
			i, i, i, strings.Repeat("x", 120))
	}
	b.WriteString(`</article></main></body></html>`)
	return b.String()
}

func TestParsePosts(t *testing.T) {
	t.Parallel()

	posts, err := ParsePosts(gridHTML(3), 10)
	require.NoError(t, err)
	require.Len(t, posts, 4)

	require.Equal(t, "Instagram Post", posts[0].Title)
	require.Equal(t, "Instagram content", posts[0].Description)
	require.Equal(t, "https://www.instagram.com/p/noalt/", posts[0].URL)

	p := posts[1]
	require.Len(t, []rune(p.Title), 100)
	require.True(t, strings.HasPrefix(p.Title, "Post number 0"))
	require.Greater(t, len(p.Description), 100)
	require.Equal(t, "https://cdn.example/0.jpg", p.ImageURL)
	require.Equal(t, feed.ContentSocial, p.ContentType)
	require.Equal(t, "Instagram", p.SourceName)
}

func TestParsePostsCapsCount(t *testing.T) {
	t.Parallel()

	posts, err := ParsePosts(gridHTML(20), 10)
	require.NoError(t, err)
	require.Len(t, posts, 10)
}

func TestFetchStampsPublishedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	r := &fakeRenderer{page: Page{URL: DefaultPage, HTML: gridHTML(2)}}
	a := New(Config{}, r, fakeClock{now: now}, nil)

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, DefaultPage, r.requested)
	for _, c := range got {
		require.Equal(t, now, c.PublishedAt)
	}
}

func TestFetchLoginWallIsEmpty(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{page: Page{URL: "https://www.instagram.com/accounts/login/?next=/creators/", HTML: gridHTML(2)}}
	a := New(Config{}, r, fakeClock{}, nil)

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFetchRenderFailure(t *testing.T) {
	t.Parallel()

	a := New(Config{}, &fakeRenderer{err: errors.New("chrome not found")}, fakeClock{}, nil)
	_, err := a.Fetch(context.Background())
	require.ErrorIs(t, err, feed.ErrTransport)
}

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(BrowserConfig{MaxParallel: -1})
	require.Error(t, err)

	c, err := NewChromedp(BrowserConfig{MaxParallel: 2})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 2, cap(c.limiter))
	require.Equal(t, 30*time.Second, c.cfg.NavigationTimeout)
	require.Equal(t, 5*time.Second, c.cfg.WaitTimeout)

	require.NoError(t, c.acquire(context.Background()))
	c.release()
}

// --- helpers/fakes ---

type fakeRenderer struct {
	page      Page
	err       error
	requested string
}

func (f *fakeRenderer) Render(_ context.Context, pageURL string) (Page, error) {
	f.requested = pageURL
	return f.page, f.err
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }
