// Package auth validates API keys and meters their usage.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
)

// Rejection reasons. Each maps to a distinct caller-facing message.
var (
	ErrKeyRequired = errors.New("api key required")
	ErrKeyInvalid  = errors.New("invalid api key")
	ErrKeyInactive = errors.New("api key is inactive")
	ErrOwnerEmpty  = errors.New("owner name required")
)

// KeyGenerator produces opaque key tokens.
type KeyGenerator interface {
	NewKey() (string, error)
}

// Config tunes the usage counter.
type Config struct {
	// CounterBuffer is the capacity of the pending increment queue.
	CounterBuffer int
}

// Guard checks keys against the store. Request counting is best effort:
// increments are queued on a buffered channel drained by one goroutine and
// dropped when the queue is full.
type Guard struct {
	keys   store.KeyStore
	gen    KeyGenerator
	clock  feed.Clock
	logger *zap.Logger

	// mu guards closed; sends on increments happen under the read lock.
	mu         sync.RWMutex
	closed     bool
	increments chan string
	done       chan struct{}
}

// NewGuard builds a Guard and starts its counter goroutine. Call Close to
// drain pending increments.
func NewGuard(keys store.KeyStore, gen KeyGenerator, clock feed.Clock, cfg Config, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CounterBuffer <= 0 {
		cfg.CounterBuffer = 1024
	}
	g := &Guard{
		keys:       keys,
		gen:        gen,
		clock:      clock,
		logger:     logger.Named("auth"),
		increments: make(chan string, cfg.CounterBuffer),
		done:       make(chan struct{}),
	}
	go g.drain()
	return g
}

// Authenticate resolves key. An empty key is rejected without a store call.
func (g *Guard) Authenticate(ctx context.Context, key string) (feed.AccessKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return feed.AccessKey{}, ErrKeyRequired
	}
	k, err := g.keys.GetKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return feed.AccessKey{}, ErrKeyInvalid
		}
		return feed.AccessKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !k.Active {
		return feed.AccessKey{}, ErrKeyInactive
	}
	g.count(k)
	return k, nil
}

func (g *Guard) count(k feed.AccessKey) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.logger.Debug("guard closed; dropping increment", zap.String("owner", k.Owner))
		return
	}
	select {
	case g.increments <- k.Key:
	default:
		g.logger.Debug("usage counter queue full; dropping increment", zap.String("owner", k.Owner))
	}
}

// Issue creates and stores a new active key for owner.
func (g *Guard) Issue(ctx context.Context, owner string) (feed.AccessKey, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return feed.AccessKey{}, ErrOwnerEmpty
	}
	token, err := g.gen.NewKey()
	if err != nil {
		return feed.AccessKey{}, fmt.Errorf("generate api key: %w", err)
	}
	k := feed.AccessKey{
		Key:       token,
		Owner:     owner,
		Plan:      feed.DefaultPlan,
		Active:    true,
		CreatedAt: g.clock.Now(),
	}
	if err := g.keys.CreateKey(ctx, k); err != nil {
		return feed.AccessKey{}, fmt.Errorf("store api key: %w", err)
	}
	g.logger.Info("api key issued", zap.String("owner", owner))
	return k, nil
}

// Deactivate disables key. Keys are never deleted.
func (g *Guard) Deactivate(ctx context.Context, key string) error {
	if err := g.keys.SetKeyActive(ctx, key, false); err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	return nil
}

// Close stops accepting increments and waits for queued ones to be applied.
// Keys still authenticate after Close; their usage is no longer counted.
func (g *Guard) Close() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.increments)
	}
	g.mu.Unlock()
	<-g.done
}

func (g *Guard) drain() {
	defer close(g.done)
	for key := range g.increments {
		if err := g.keys.IncrementRequests(context.Background(), key); err != nil {
			g.logger.Warn("increment request counter", zap.Error(err))
		}
	}
}
