package instagram

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// Chromedp renders pages in headless Chrome.
type Chromedp struct {
	cfg         BrowserConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp prepares a Chrome allocator. The browser itself starts on the
// first Render.
func NewChromedp(cfg BrowserConfig) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (c *Chromedp) Close() {
	c.allocCancel()
}

// Render navigates to pageURL, gives the post grid a moment to appear and
// returns the DOM together with the final location.
func (c *Chromedp) Render(ctx context.Context, pageURL string) (Page, error) {
	if err := c.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx, c.setupAction(), chromedp.Navigate(pageURL)); err != nil {
		return Page{}, fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	// The grid is missing behind a login wall; carry on and let the parser
	// find nothing.
	waitCtx, waitCancel := context.WithTimeout(taskCtx, c.cfg.WaitTimeout)
	_ = chromedp.Run(waitCtx, chromedp.WaitReady("article", chromedp.ByQuery))
	waitCancel()

	var page Page
	if err := chromedp.Run(taskCtx,
		chromedp.Location(&page.URL),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	); err != nil {
		return Page{}, fmt.Errorf("read dom %s: %w", pageURL, err)
	}
	return page, nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Chromedp) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chromedp) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
