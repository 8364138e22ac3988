// Package googlenews pulls search-result feeds from Google News and turns
// their items into raw candidates.
package googlenews

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/enrich"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Name is the adapter's source name.
const Name = "googlenews"

const (
	searchBase = "https://news.google.com/rss/search"
	sourceName = "Google News"
)

// Query is one feed to pull. URL wins over Term when both are set.
type Query struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Term   string `mapstructure:"term"`
	Region string `mapstructure:"region"`
}

// Resolve returns the feed URL for q.
func (q Query) Resolve() string {
	if q.URL != "" {
		return q.URL
	}
	return SearchURL(q.Term, q.Region)
}

// SearchURL builds a Google News search feed URL restricted to the last day.
// Region "IN" targets the Indian edition, anything else the US one.
func SearchURL(term, region string) string {
	hl, gl := "en-US", "US"
	if strings.EqualFold(region, "IN") {
		hl, gl = "en-IN", "IN"
	}
	v := url.Values{}
	v.Set("q", strings.TrimSpace(term+" when:1d"))
	v.Set("hl", hl)
	v.Set("gl", gl)
	v.Set("ceid", gl+":en")
	return searchBase + "?" + v.Encode()
}

// DefaultQueries mirrors the breaking, regional and topical searches the
// feed shipped with.
func DefaultQueries() []Query {
	qs := []Query{
		{Name: "breaking-in", URL: "https://news.google.com/rss/search?q=when:1h&hl=en-IN&gl=IN&ceid=IN:en"},
		{Name: "lucknow", Term: "Lucknow news", Region: "IN"},
		{Name: "breaking-us", URL: "https://news.google.com/rss/search?q=when:1h&hl=en-US&gl=US&ceid=US:en"},
	}
	for _, topic := range []string{"technology", "business", "politics", "crime", "education", "health", "sports", "entertainment"} {
		qs = append(qs, Query{Name: topic, Term: topic, Region: "US"})
	}
	return append(qs, Query{Name: "cricket", Term: "cricket", Region: "IN"})
}

// Config controls the adapter.
type Config struct {
	Queries       []Query
	ItemsPerQuery int
	FeedTimeout   time.Duration
	Enrich        bool
}

// Enricher follows article links.
type Enricher interface {
	Enrich(ctx context.Context, pageURL string) (enrich.Article, error)
}

// Adapter implements feed.Adapter for Google News.
type Adapter struct {
	cfg      Config
	client   *feedclient.Client
	enricher Enricher
	logger   *zap.Logger
}

// New builds the adapter. enricher may be nil, which disables enrichment.
func New(cfg Config, client *feedclient.Client, enricher Enricher, logger *zap.Logger) *Adapter {
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries()
	}
	if cfg.ItemsPerQuery <= 0 {
		cfg.ItemsPerQuery = 20
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, client: client, enricher: enricher, logger: logger.Named(Name)}
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch pulls every configured query. Individual query failures are logged
// and skipped; an error is returned only when every query failed. Once ctx
// expires the candidates gathered so far are returned without an error.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.RawCandidate, error) {
	var (
		out  []feed.RawCandidate
		errs []error
	)
	for _, q := range a.cfg.Queries {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("deadline reached, returning partial results", zap.Int("collected", len(out)), zap.Error(err))
			break
		}
		parsed, err := a.client.FetchWithTimeout(ctx, q.Resolve(), a.cfg.FeedTimeout)
		if err != nil {
			a.logger.Warn("query failed", zap.String("query", q.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("query %s: %w", q.Name, err))
			continue
		}
		for _, item := range feedclient.Head(parsed.Items, a.cfg.ItemsPerQuery) {
			out = append(out, a.candidate(ctx, item))
		}
	}
	if ctx.Err() == nil && len(errs) > 0 && len(errs) == len(a.cfg.Queries) {
		return nil, errors.Join(errs...)
	}
	out = lo.Filter(out, func(c feed.RawCandidate, _ int) bool { return c.URL != "" && c.Title != "" })
	return lo.UniqBy(out, func(c feed.RawCandidate) string { return c.URL }), nil
}

func (a *Adapter) candidate(ctx context.Context, item *rss.Item) feed.RawCandidate {
	title, publisher := SplitPublisher(item.Title)
	image := feedclient.FirstImage(item.Summary)
	if strings.Contains(image, "googleusercontent") {
		image = ""
	}
	description := feedclient.StripHTML(item.Summary)

	if a.enricher != nil && item.Link != "" {
		art, err := a.enricher.Enrich(ctx, item.Link)
		if err != nil {
			a.logger.Debug("enrich failed", zap.String("url", item.Link), zap.Error(err))
		} else {
			if art.Text != "" {
				description = art.Text
			}
			if image == "" {
				image = art.Image
			}
		}
	}

	src := sourceName
	if publisher != "" {
		src = publisher
	}
	return feed.RawCandidate{
		Title:        title,
		URL:          strings.TrimSpace(item.Link),
		ContentType:  feed.ContentNews,
		PublishedAt:  feedclient.Published(item),
		Description:  description,
		ImageURL:     image,
		SourceName:   src,
		LocationText: title,
		Tags:         item.Categories,
	}
}

// SplitPublisher separates the " - Publisher" suffix Google News appends to
// every headline.
func SplitPublisher(title string) (headline, publisher string) {
	title = strings.TrimSpace(title)
	i := strings.LastIndex(title, " - ")
	if i <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
}
