// Package enrich follows an item's link and extracts a fuller body and a
// preview image from the article page.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/metrics"
)

// Paragraph selectors in priority order; the first that yields usable
// paragraphs wins.
var paragraphSelectors = []string{
	"article p",
	"main p",
	"div.content p",
	"div.story-body p",
	"p",
}

// Config controls page fetches.
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	MaxParagraphs   int
	MinParagraphLen int
	// RespectRobots skips pages disallowed by the host's robots.txt.
	RespectRobots bool
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Article is what enrichment recovered. Empty fields mean nothing usable
// was found.
type Article struct {
	Text  string
	Image string
}

// Enricher fetches article pages with colly.
type Enricher struct {
	cfg     Config
	base    *colly.Collector
	limiter Limiter
	logger  *zap.Logger
}

// New builds an Enricher. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.MaxParagraphs <= 0 {
		cfg.MaxParagraphs = 15
	}
	if cfg.MinParagraphLen <= 0 {
		cfg.MinParagraphLen = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(newHTTPTransport())
	return &Enricher{cfg: cfg, base: c, limiter: limiter, logger: logger.Named("enrich")}
}

// Enrich fetches pageURL. An error means the page could not be retrieved;
// callers keep the item either way.
func (e *Enricher) Enrich(ctx context.Context, pageURL string) (Article, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, pageURL); err != nil {
			return Article{}, fmt.Errorf("%w: %v", feed.ErrTransport, err)
		}
	}

	var (
		body       []byte
		paragraphs []string
		ogImage    string
		fetchErr   error
	)
	c := e.base.Clone()
	if e.cfg.UserAgent != "" {
		c.UserAgent = e.cfg.UserAgent
	}
	c.SetRequestTimeout(e.cfg.Timeout)
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	c.OnHTML(`meta[property="og:image"]`, func(h *colly.HTMLElement) {
		if ogImage == "" {
			ogImage = strings.TrimSpace(h.Attr("content"))
		}
	})
	c.OnHTML("html", func(h *colly.HTMLElement) {
		paragraphs = e.paragraphs(h.DOM)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := visit(ctx, c, pageURL, e.cfg.Timeout); err != nil {
		metrics.ObserveEnrich(pageURL, "error")
		return Article{}, err
	}
	if fetchErr != nil {
		metrics.ObserveEnrich(pageURL, "error")
		return Article{}, fmt.Errorf("%w: %v", feed.ErrTransport, fetchErr)
	}
	metrics.ObserveEnrich(pageURL, "ok")

	art := Article{Text: strings.Join(paragraphs, "\n\n"), Image: ogImage}
	if art.Text == "" || art.Image == "" {
		e.readabilityFallback(pageURL, body, &art)
	}
	return art, nil
}

func (e *Enricher) paragraphs(doc *goquery.Selection) []string {
	for _, sel := range paragraphSelectors {
		var out []string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) > e.cfg.MinParagraphLen {
				out = append(out, text)
			}
			return len(out) < e.cfg.MaxParagraphs
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (e *Enricher) readabilityFallback(pageURL string, body []byte, art *Article) {
	if len(body) == 0 {
		return
	}
	u, _ := url.Parse(pageURL)
	parsed, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		e.logger.Debug("readability extraction failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	if art.Text == "" {
		art.Text = strings.TrimSpace(parsed.TextContent)
	}
	if art.Image == "" {
		art.Image = strings.TrimSpace(parsed.Image)
	}
}

func visit(ctx context.Context, c *colly.Collector, pageURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: enrich %s: %v", feed.ErrTransport, pageURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: enrich %s: %v", feed.ErrTransport, pageURL, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
