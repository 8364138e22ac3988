package nitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/classify"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

const timelineRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>timeline</title><link>https://nitter.example</link>
<item><title>Huge fire reported near the central station</title><link>https://nitter.example/acct/status/1</link>
<description>&lt;p&gt;Huge fire reported&lt;/p&gt;&lt;img src="https://nitter.example/pic/1.jpg"&gt;</description>
<pubDate>Tue, 10 Sep 2024 08:00:00 GMT</pubDate></item>
<item><title>Just had a great lunch</title><link>https://nitter.example/acct/status/2</link>
<description>lunch</description></item>
</channel></rss>`

func TestFetchUsesFirstLiveInstanceAndDropsDefaultCategory(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	var hits atomic.Int32
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(timelineRSS))
	}))
	defer live.Close()

	a := New(Config{
		Instances: []string{dead.URL, live.URL + "/"},
		Accounts:  []string{"BBCBreaking"},
	}, feedclient.New(feedclient.Config{}, nil), classify.New(classify.Hazard), nil)

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, hits.Load(), "probe plus one account feed")
	require.Len(t, got, 1)

	c := got[0]
	require.Equal(t, "@BBCBreaking: Huge fire reported near the central station", c.Title)
	require.Equal(t, "X (Twitter)", c.SourceName)
	require.Equal(t, feed.ContentSocial, c.ContentType)
	require.Equal(t, "https://nitter.example/pic/1.jpg", c.ImageURL)
	require.Equal(t, "Huge fire reported", c.Description)
}

func TestFetchWithoutClassifierKeepsEverything(t *testing.T) {
	t.Parallel()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(timelineRSS))
	}))
	defer live.Close()

	a := New(Config{Instances: []string{live.URL}, Accounts: []string{"a", "b"}, ItemsPerAccount: 1},
		feedclient.New(feedclient.Config{}, live.Client()), nil, nil)

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "@b: Huge fire reported near the central station", got[1].Title)
}

func TestFetchNoInstanceReachable(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer dead.Close()

	a := New(Config{Instances: []string{dead.URL}}, feedclient.New(feedclient.Config{}, dead.Client()), nil, nil)
	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	require.Len(t, DefaultInstances(), 5)
	require.Contains(t, DefaultAccounts(), "NDTV")
	require.Equal(t, Name, New(Config{}, feedclient.New(feedclient.Config{}, nil), nil, nil).Name())
}
