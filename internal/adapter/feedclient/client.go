// Package feedclient fetches and parses RSS/Atom feeds for the source
// adapters.
package feedclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/SlyMarbo/rss"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// DefaultUserAgent mimics a desktop browser; several feed hosts reject
// unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const maxFeedBytes = 10 << 20

// Config controls feed requests.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client performs bounded feed requests.
type Client struct {
	http *http.Client
	cfg  Config
}

// New builds a Client. A nil httpClient uses a fresh http.Client.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, cfg: cfg}
}

// Fetch downloads and parses the feed at url using the client timeout.
func (c *Client) Fetch(ctx context.Context, url string) (*rss.Feed, error) {
	return c.FetchWithTimeout(ctx, url, c.cfg.Timeout)
}

// FetchWithTimeout is Fetch with an explicit per-request timeout. Network
// failures wrap feed.ErrTransport and malformed bodies wrap feed.ErrParse.
func (c *Client) FetchWithTimeout(ctx context.Context, url string, timeout time.Duration) (*rss.Feed, error) {
	body, err := c.get(ctx, url, timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := rss.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", feed.ErrParse, url, err)
	}
	return parsed, nil
}

// Probe reports whether url answers with a 2xx status within timeout.
func (c *Client) Probe(ctx context.Context, url string, timeout time.Duration) error {
	_, err := c.get(ctx, url, timeout)
	return err
}

func (c *Client) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", feed.ErrTransport, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", feed.ErrTransport, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", feed.ErrTransport, err)
	}
	return body, nil
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}

// StripHTML returns the whitespace-collapsed text of an HTML fragment.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Truncate cuts s to at most n runes, appending suffix when cut.
func Truncate(s string, n int, suffix string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}

// Head returns at most n items.
func Head(items []*rss.Item, n int) []*rss.Item {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// Published returns the item's date in UTC, or the zero time when the feed
// carried no valid date.
func Published(item *rss.Item) time.Time {
	if item.Date.IsZero() {
		return time.Time{}
	}
	return item.Date.UTC()
}
