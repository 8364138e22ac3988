// Package instagram scrapes public Instagram pages through a headless
// browser.
package instagram

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Name is the adapter's source name.
const Name = "instagram"

const (
	// DefaultPage is the public page read when none is configured.
	DefaultPage = "https://www.instagram.com/creators/"

	baseURL    = "https://www.instagram.com"
	sourceName = "Instagram"
	titleMax   = 100
)

// Page is a rendered document.
type Page struct {
	URL  string
	HTML string
}

// Renderer loads a page with JavaScript executed.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (Page, error)
}

// Config controls the adapter.
type Config struct {
	Page     string
	MaxPosts int
}

// Adapter implements feed.Adapter for Instagram.
type Adapter struct {
	cfg      Config
	renderer Renderer
	clock    feed.Clock
	logger   *zap.Logger
}

// New builds the adapter.
func New(cfg Config, renderer Renderer, clock feed.Clock, logger *zap.Logger) *Adapter {
	if cfg.Page == "" {
		cfg.Page = DefaultPage
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, renderer: renderer, clock: clock, logger: logger.Named(Name)}
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch renders the page and reads its post grid. A login wall yields an
// empty result rather than an error.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.RawCandidate, error) {
	page, err := a.renderer.Render(ctx, a.cfg.Page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrTransport, err)
	}
	if LoginWalled(page) {
		a.logger.Warn("login wall hit", zap.String("url", page.URL))
		return []feed.RawCandidate{}, nil
	}
	posts, err := ParsePosts(page.HTML, a.cfg.MaxPosts)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now().UTC()
	for i := range posts {
		posts[i].PublishedAt = now
	}
	if len(posts) == 0 {
		a.logger.Info("no posts found", zap.String("url", a.cfg.Page))
	}
	return posts, nil
}

// LoginWalled reports whether Instagram redirected to its login form.
func LoginWalled(p Page) bool {
	return strings.Contains(p.URL, "/accounts/login")
}

// ParsePosts reads up to limit post anchors (`article a` wrapping an image).
func ParsePosts(html string, limit int) ([]feed.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: instagram page: %v", feed.ErrParse, err)
	}
	out := []feed.RawCandidate{}
	doc.Find("article a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		img := s.Find("img").First()
		href, ok := s.Attr("href")
		if img.Length() == 0 || !ok || href == "" {
			return true
		}
		alt := strings.TrimSpace(img.AttrOr("alt", ""))
		src := strings.TrimSpace(img.AttrOr("src", ""))

		title, desc := "Instagram Post", "Instagram content"
		if alt != "" {
			title = feedclient.Truncate(alt, titleMax, "")
			desc = alt
		}
		out = append(out, feed.RawCandidate{
			Title:       title,
			URL:         absolute(href),
			ContentType: feed.ContentSocial,
			Description: desc,
			ImageURL:    src,
			SourceName:  sourceName,
		})
		return len(out) < limit
	})
	return out, nil
}

func absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return baseURL + href
}
