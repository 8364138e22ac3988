// Package nitter reads X (Twitter) timelines through public Nitter mirrors.
package nitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/classify"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Name is the adapter's source name.
const Name = "nitter"

const (
	sourceName = "X (Twitter)"
	probePath  = "/elonmusk/rss"
)

// DefaultInstances lists the mirrors probed in order.
func DefaultInstances() []string {
	return []string{
		"https://nitter.net",
		"https://nitter.cz",
		"https://nitter.privacydev.net",
		"https://nitter.projectsegfau.lt",
		"https://nitter.poast.org",
	}
}

// DefaultAccounts are the timelines followed out of the box.
func DefaultAccounts() []string {
	return []string{"verge", "TechCrunch", "elonmusk", "OpenAI", "BBCBreaking", "CNN", "NDTV"}
}

// Classifier decides whether a post is worth keeping.
type Classifier interface {
	Classify(text string) classify.Result
	Taxonomy() classify.Taxonomy
}

// Config controls the adapter.
type Config struct {
	Instances       []string
	Accounts        []string
	ItemsPerAccount int
	ProbeTimeout    time.Duration
	FeedTimeout     time.Duration
}

// Adapter implements feed.Adapter for Nitter mirrors.
type Adapter struct {
	cfg        Config
	client     *feedclient.Client
	classifier Classifier
	logger     *zap.Logger
}

// New builds the adapter.
func New(cfg Config, client *feedclient.Client, classifier Classifier, logger *zap.Logger) *Adapter {
	if len(cfg.Instances) == 0 {
		cfg.Instances = DefaultInstances()
	}
	if len(cfg.Accounts) == 0 {
		cfg.Accounts = DefaultAccounts()
	}
	if cfg.ItemsPerAccount <= 0 {
		cfg.ItemsPerAccount = 5
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, client: client, classifier: classifier, logger: logger.Named(Name)}
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch finds a live mirror and reads every account from it. No reachable
// mirror is not an error; the adapter just has nothing to report.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.RawCandidate, error) {
	instance, ok := a.probe(ctx)
	if !ok {
		a.logger.Warn("no nitter instance reachable", zap.Int("instances", len(a.cfg.Instances)))
		return []feed.RawCandidate{}, nil
	}
	a.logger.Debug("using instance", zap.String("instance", instance))

	var (
		out  []feed.RawCandidate
		errs []error
	)
	for _, account := range a.cfg.Accounts {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("deadline reached, returning partial results", zap.Int("collected", len(out)), zap.Error(err))
			break
		}
		parsed, err := a.client.FetchWithTimeout(ctx, instance+"/"+account+"/rss", a.cfg.FeedTimeout)
		if err != nil {
			a.logger.Warn("account feed failed", zap.String("account", account), zap.Error(err))
			errs = append(errs, fmt.Errorf("account %s: %w", account, err))
			continue
		}
		items := feedclient.Head(parsed.Items, a.cfg.ItemsPerAccount)
		candidates := lo.Map(items, func(item *rss.Item, _ int) feed.RawCandidate {
			return candidate(account, item)
		})
		out = append(out, lo.Filter(candidates, func(c feed.RawCandidate, _ int) bool {
			return a.relevant(c)
		})...)
	}
	if ctx.Err() == nil && len(errs) > 0 && len(errs) == len(a.cfg.Accounts) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (a *Adapter) probe(ctx context.Context) (string, bool) {
	for _, instance := range a.cfg.Instances {
		instance = strings.TrimRight(instance, "/")
		if err := a.client.Probe(ctx, instance+probePath, a.cfg.ProbeTimeout); err != nil {
			a.logger.Debug("instance unreachable", zap.String("instance", instance), zap.Error(err))
			continue
		}
		return instance, true
	}
	return "", false
}

func (a *Adapter) relevant(c feed.RawCandidate) bool {
	if a.classifier == nil {
		return true
	}
	res := a.classifier.Classify(c.Title + " " + c.Description)
	return res.Category != a.classifier.Taxonomy().Default
}

func candidate(account string, item *rss.Item) feed.RawCandidate {
	text := feedclient.StripHTML(item.Title)
	return feed.RawCandidate{
		Title:       "@" + account + ": " + text,
		URL:         strings.TrimSpace(item.Link),
		ContentType: feed.ContentSocial,
		PublishedAt: feedclient.Published(item),
		Description: feedclient.StripHTML(item.Summary),
		ImageURL:    feedclient.FirstImage(item.Summary),
		SourceName:  sourceName,
	}
}
