// Package rss is a generic adapter for any configured RSS or Atom feed.
package rss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	slyrss "github.com/SlyMarbo/rss"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Name is the adapter's source name.
const Name = "rss"

// Source is one configured feed.
type Source struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	ContentType string `mapstructure:"content_type"`
}

// Config controls the adapter.
type Config struct {
	Sources        []Source
	ItemsPerSource int
	FeedTimeout    time.Duration
}

// Adapter implements feed.Adapter over a list of arbitrary feeds.
type Adapter struct {
	cfg    Config
	client *feedclient.Client
	logger *zap.Logger
}

// New validates the source list and builds the adapter.
func New(cfg Config, client *feedclient.Client, logger *zap.Logger) (*Adapter, error) {
	cfg.Sources = append([]Source(nil), cfg.Sources...)
	for i, src := range cfg.Sources {
		if strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("rss source %d: url is required", i)
		}
		if src.ContentType == "" {
			cfg.Sources[i].ContentType = string(feed.ContentNews)
			continue
		}
		ct, err := feed.ParseContentType(src.ContentType)
		if err != nil {
			return nil, fmt.Errorf("rss source %q: %w", src.Name, err)
		}
		cfg.Sources[i].ContentType = string(ct)
	}
	if cfg.ItemsPerSource <= 0 {
		cfg.ItemsPerSource = 20
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, client: client, logger: logger.Named(Name)}, nil
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch reads every configured source; it fails only if all of them do.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.RawCandidate, error) {
	var (
		out  []feed.RawCandidate
		errs []error
	)
	for _, src := range a.cfg.Sources {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("deadline reached, returning partial results", zap.Int("collected", len(out)), zap.Error(err))
			break
		}
		parsed, err := a.client.FetchWithTimeout(ctx, src.URL, a.cfg.FeedTimeout)
		if err != nil {
			a.logger.Warn("source failed", zap.String("source", src.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}
		name := lo.Ternary(src.Name != "", src.Name, strings.TrimSpace(parsed.Title))
		items := feedclient.Head(parsed.Items, a.cfg.ItemsPerSource)
		out = append(out, lo.Map(items, func(item *slyrss.Item, _ int) feed.RawCandidate {
			return candidate(name, feed.ContentType(src.ContentType), item)
		})...)
	}
	if ctx.Err() == nil && len(errs) > 0 && len(errs) == len(a.cfg.Sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func candidate(source string, ct feed.ContentType, item *slyrss.Item) feed.RawCandidate {
	body := lo.Ternary(item.Summary != "", item.Summary, item.Content)
	return feed.RawCandidate{
		Title:       strings.TrimSpace(item.Title),
		URL:         strings.TrimSpace(item.Link),
		ContentType: ct,
		PublishedAt: feedclient.Published(item),
		Description: feedclient.StripHTML(body),
		ImageURL:    feedclient.FirstImage(body),
		SourceName:  source,
		Tags:        item.Categories,
	}
}
