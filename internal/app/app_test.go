package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/rss"
	"github.com/JakeFAU/realtime-content-feed/internal/config"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>City Desk</title>
  <link>https://citydesk.example</link>
  <description>Local news</description>
  <item>
    <title>Fire guts warehouse in Lucknow</title>
    <link>https://citydesk.example/fire</link>
    <description>Flames spread through the godown overnight.</description>
    <pubDate>Tue, 10 Sep 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Flood alert issued for Patna</title>
    <link>https://citydesk.example/flood</link>
    <description>Heavy rain expected.</description>
    <pubDate>Tue, 10 Sep 2024 09:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func TestBuildScrapeAndQuery(t *testing.T) {
	t.Parallel()

	feedSrv := newFeedServer(t)
	archiveDir := t.TempDir()
	cfg := testConfig(t, feedSrv.URL)
	cfg.Archive = config.ArchiveConfig{Enabled: true, Backend: config.BackendLocal, Prefix: "raw", BaseDir: archiveDir}

	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	require.Equal(t, []string{"rss"}, a.Engine().Adapters())

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scrape", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var scrape struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scrape))
	require.Equal(t, 2, scrape.Count)

	key, err := a.Keys().Issue(context.Background(), "tests")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?category=FIRE", nil)
	req.Header.Set("X-API-Key", key.Key)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Fire guts warehouse in Lucknow")
	require.NotContains(t, rec.Body.String(), "Patna")

	archived, err := filepath.Glob(filepath.Join(archiveDir, "raw", "rss", "*", "*.json"))
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestBuildRejectsBadGazetteer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://unused.invalid")
	cfg.Geo.GazetteerFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "gazetteer load failed")
}

func TestBuildLoadsGazetteer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "places.yaml")
	body := "places:\n  - city: Springfield\n    country: USA\n    lat: 39.8\n    lng: -89.6\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg := testConfig(t, "http://unused.invalid")
	cfg.Geo.GazetteerFile = path
	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestBuildRejectsInvalidRSSSource(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://unused.invalid")
	cfg.Adapters.RSS.Sources = []rss.Source{{Name: "bad", URL: "https://x.example", ContentType: "PODCAST"}}
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "rss adapter init failed")
}

func TestScheduleRunsPeriodically(t *testing.T) {
	t.Parallel()

	feedSrv := newFeedServer(t)
	a, err := BuildWithLogger(context.Background(), testConfig(t, feedSrv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.schedule(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		recs, err := a.store.Query(context.Background(), store.Filter{}, 10, 0)
		return err == nil && len(recs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// --- helpers/fakes ---

func testConfig(t *testing.T, feedURL string) config.Config {
	t.Helper()
	return config.Config{
		Server:     config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Auth:       config.AuthConfig{Enabled: true},
		Engine:     config.EngineConfig{Concurrency: 1, AdapterTimeoutSeconds: 5},
		Classifier: config.ClassifierConfig{Taxonomy: "hazard"},
		Adapters: config.AdaptersConfig{
			RSS: config.RSSConfig{
				Enabled:        true,
				ItemsPerSource: 10,
				Sources:        []rss.Source{{Name: "City Desk", URL: strings.TrimRight(feedURL, "/") + "/feed.xml"}},
			},
		},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 2},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
	}
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}
