package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

const blogRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>City Desk</title><link>https://desk.example</link>
<item><title>Flood warning issued</title><link>https://desk.example/flood</link>
<category>weather</category>
<description>&lt;img src="https://desk.example/flood.jpg"&gt; Rivers &lt;b&gt;rising&lt;/b&gt;</description>
<pubDate>Tue, 10 Sep 2024 08:00:00 GMT</pubDate></item>
<item><title>Second item</title><link>https://desk.example/2</link><description>two</description></item>
</channel></rss>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(blogRSS))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMapsItems(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	a, err := New(Config{Sources: []Source{
		{Name: "Desk", URL: srv.URL + "/feed", ContentType: "news"},
		{URL: srv.URL + "/unnamed", ContentType: "VIDEO"},
		{Name: "Down", URL: srv.URL + "/down"},
	}, ItemsPerSource: 1}, feedclient.New(feedclient.Config{}, srv.Client()), nil)
	require.NoError(t, err)

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	require.Equal(t, "Flood warning issued", first.Title)
	require.Equal(t, "Desk", first.SourceName)
	require.Equal(t, feed.ContentNews, first.ContentType)
	require.Equal(t, "Rivers rising", first.Description)
	require.Equal(t, "https://desk.example/flood.jpg", first.ImageURL)
	require.Equal(t, []string{"weather"}, first.Tags)

	require.Equal(t, "City Desk", got[1].SourceName, "falls back to the feed title")
	require.Equal(t, feed.ContentVideo, got[1].ContentType)
}

func TestFetchAllSourcesDown(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	a, err := New(Config{Sources: []Source{{Name: "Down", URL: srv.URL + "/down"}}},
		feedclient.New(feedclient.Config{}, srv.Client()), nil)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background())
	require.ErrorIs(t, err, feed.ErrTransport)
}

func TestNewValidatesSources(t *testing.T) {
	t.Parallel()

	client := feedclient.New(feedclient.Config{}, nil)
	_, err := New(Config{Sources: []Source{{Name: "x"}}}, client, nil)
	require.Error(t, err)

	_, err = New(Config{Sources: []Source{{Name: "x", URL: "https://x.example", ContentType: "podcast"}}}, client, nil)
	require.Error(t, err)

	sources := []Source{{Name: "x", URL: "https://x.example", ContentType: "social"}}
	a, err := New(Config{Sources: sources}, client, nil)
	require.NoError(t, err)
	require.Equal(t, "social", sources[0].ContentType, "caller slice is untouched")
	require.Equal(t, "SOCIAL", a.cfg.Sources[0].ContentType)
}
