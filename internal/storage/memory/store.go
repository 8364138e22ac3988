// Package memory provides in-process implementations of the store
// interfaces for development, tests and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
)

// Store keeps records, run logs and access keys in maps guarded by a single
// RWMutex. Returned values are copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]feed.Record // keyed by URL
	logs    []feed.RunLogEntry
	keys    map[string]feed.AccessKey
}

var _ store.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]feed.Record),
		keys:    make(map[string]feed.AccessKey),
	}
}

// InsertIfAbsent stores rec unless a record with the same URL exists.
func (s *Store) InsertIfAbsent(_ context.Context, rec feed.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.URL]; exists {
		return false, nil
	}
	s.records[rec.URL] = copyRecord(rec)
	return true, nil
}

// GetByURL fetches a record by URL.
func (s *Store) GetByURL(_ context.Context, url string) (feed.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	if !ok {
		return feed.Record{}, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Query filters, sorts by PublishedAt descending (URL breaks ties) and pages.
func (s *Store) Query(_ context.Context, f store.Filter, limit, offset int) ([]feed.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	matched := make([]feed.Record, 0, len(s.records))
	for _, rec := range s.records {
		if f.Matches(rec) {
			matched = append(matched, copyRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(matched[j].PublishedAt)
		}
		return matched[i].URL < matched[j].URL
	})
	if offset >= len(matched) {
		return []feed.Record{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// Stats counts totals, HIGH severity, records scraped since the cutoff and
// records per category.
func (s *Store) Stats(_ context.Context, since time.Time) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := store.Stats{Categories: make(map[string]int64)}
	for _, rec := range s.records {
		out.Total++
		if rec.Severity == feed.SeverityHigh {
			out.HighSeverity++
		}
		if !rec.ScrapedAt.Before(since) {
			out.Recent++
		}
		out.Categories[rec.Category]++
	}
	return out, nil
}

// AppendRunLog appends an entry.
func (s *Store) AppendRunLog(_ context.Context, entry feed.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

// ListRunLogs returns up to limit entries, newest first.
func (s *Store) ListRunLogs(_ context.Context, limit int) ([]feed.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.logs) {
		limit = len(s.logs)
	}
	out := make([]feed.RunLogEntry, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

// CreateKey stores a new key.
func (s *Store) CreateKey(_ context.Context, key feed.AccessKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.Key]; exists {
		return store.ErrDuplicateKey
	}
	s.keys[key.Key] = key
	return nil
}

// GetKey fetches a key.
func (s *Store) GetKey(_ context.Context, key string) (feed.AccessKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[key]
	if !ok {
		return feed.AccessKey{}, store.ErrNotFound
	}
	return k, nil
}

// IncrementRequests bumps the request counter.
func (s *Store) IncrementRequests(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok {
		return store.ErrNotFound
	}
	k.Requests++
	s.keys[key] = k
	return nil
}

// SetKeyActive flips the active flag.
func (s *Store) SetKeyActive(_ context.Context, key string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok {
		return store.ErrNotFound
	}
	k.Active = active
	s.keys[key] = k
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

func copyRecord(rec feed.Record) feed.Record {
	if rec.Coordinates != nil {
		c := *rec.Coordinates
		rec.Coordinates = &c
	}
	return rec
}
