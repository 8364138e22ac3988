// Package youtube reads channel upload feeds.
package youtube

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

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Name is the adapter's source name.
const Name = "youtube"

const (
	feedBase       = "https://www.youtube.com/feeds/videos.xml"
	thumbnailURL   = "https://i.ytimg.com/vi/%s/maxresdefault.jpg"
	descriptionMax = 200
)

// Channel is a YouTube channel to follow.
type Channel struct {
	Name string `mapstructure:"name"`
	ID   string `mapstructure:"id"`
}

// FeedURL returns the channel's upload feed.
func (c Channel) FeedURL() string {
	return feedBase + "?channel_id=" + url.QueryEscape(c.ID)
}

// DefaultChannels are the technology channels followed out of the box.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "The Verge", ID: "UCddiUEpeqJcYeBxX1IVBKvQ"},
		{Name: "MKBHD", ID: "UCBJycsmduvYEL83R_U4JriQ"},
		{Name: "TechCrunch", ID: "UCCFWe75PZJkwandI8tV1R-A"},
	}
}

// Config controls the adapter.
type Config struct {
	Channels        []Channel
	ItemsPerChannel int
	FeedTimeout     time.Duration
	FeedBase        string // overrides the upload feed endpoint
}

// Adapter implements feed.Adapter for YouTube.
type Adapter struct {
	cfg    Config
	client *feedclient.Client
	logger *zap.Logger
}

// New builds the adapter.
func New(cfg Config, client *feedclient.Client, logger *zap.Logger) *Adapter {
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels()
	}
	if cfg.ItemsPerChannel <= 0 {
		cfg.ItemsPerChannel = 4
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, client: client, logger: logger.Named(Name)}
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch pulls the newest uploads of each channel.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.RawCandidate, error) {
	var (
		out  []feed.RawCandidate
		errs []error
	)
	for _, ch := range a.cfg.Channels {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("deadline reached, returning partial results", zap.Int("collected", len(out)), zap.Error(err))
			break
		}
		parsed, err := a.client.FetchWithTimeout(ctx, a.feedURL(ch), a.cfg.FeedTimeout)
		if err != nil {
			a.logger.Warn("channel feed failed", zap.String("channel", ch.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name, err))
			continue
		}
		items := feedclient.Head(parsed.Items, a.cfg.ItemsPerChannel)
		out = append(out, lo.Map(items, func(item *rss.Item, _ int) feed.RawCandidate {
			return candidate(ch, item)
		})...)
	}
	if ctx.Err() == nil && len(errs) > 0 && len(errs) == len(a.cfg.Channels) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (a *Adapter) feedURL(ch Channel) string {
	if a.cfg.FeedBase != "" {
		return a.cfg.FeedBase + "?channel_id=" + url.QueryEscape(ch.ID)
	}
	return ch.FeedURL()
}

func candidate(ch Channel, item *rss.Item) feed.RawCandidate {
	desc := strings.TrimSpace(feedclient.StripHTML(lo.Ternary(item.Summary != "", item.Summary, item.Content)))
	if desc == "" {
		desc = strings.TrimSpace(item.Title)
	}
	var image string
	if id := VideoID(item); id != "" {
		image = fmt.Sprintf(thumbnailURL, id)
	}
	return feed.RawCandidate{
		Title:       strings.TrimSpace(item.Title),
		URL:         strings.TrimSpace(item.Link),
		ContentType: feed.ContentVideo,
		PublishedAt: feedclient.Published(item),
		Description: feedclient.Truncate(desc, descriptionMax, "..."),
		ImageURL:    image,
		SourceName:  "YouTube - " + ch.Name,
	}
}

// VideoID extracts the video id from an entry's "yt:video:<id>" identifier
// or, failing that, from the watch link.
func VideoID(item *rss.Item) string {
	if id, ok := strings.CutPrefix(item.ID, "yt:video:"); ok && id != "" {
		return id
	}
	u, err := url.Parse(item.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}
