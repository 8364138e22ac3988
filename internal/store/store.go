package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Sentinel errors shared by every implementation.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("access key already exists")
)

// Filter is a conjunction of optional predicates. Empty fields do not
// filter. Substring matches are case-insensitive; Source, ContentType and
// Severity are exact.
type Filter struct {
	Category string
	City     string
	Country  string
	// Location matches city, country, location label, title or description.
	Location    string
	Source      string
	ContentType feed.ContentType
	Severity    feed.Severity
	// Search matches title or description.
	Search string
}

// Matches evaluates the filter against a record in memory.
func (f Filter) Matches(rec feed.Record) bool {
	if !containsFold(rec.Category, f.Category) ||
		!containsFold(rec.City, f.City) ||
		!containsFold(rec.Country, f.Country) {
		return false
	}
	if f.Source != "" && rec.SourceName != f.Source {
		return false
	}
	if f.ContentType != "" && rec.ContentType != f.ContentType {
		return false
	}
	if f.Severity != "" && rec.Severity != f.Severity {
		return false
	}
	if f.Search != "" && !containsFold(rec.Title, f.Search) && !containsFold(rec.Description, f.Search) {
		return false
	}
	if f.Location != "" {
		for _, field := range []string{rec.City, rec.Country, rec.Location, rec.Title, rec.Description} {
			if field != "" && containsFold(field, f.Location) {
				return true
			}
		}
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Stats aggregates counts across all stored records.
type Stats struct {
	Total        int64
	HighSeverity int64
	Recent       int64
	Categories   map[string]int64
}

// RecordStore persists canonical records with insert-if-absent semantics
// keyed on URL.
type RecordStore interface {
	// InsertIfAbsent stores rec unless its URL exists; an existing record is
	// never modified. Returns whether rec was inserted.
	InsertIfAbsent(ctx context.Context, rec feed.Record) (bool, error)
	// GetByURL loads a record or returns ErrNotFound.
	GetByURL(ctx context.Context, url string) (feed.Record, error)
	// Query returns matching records ordered by PublishedAt descending.
	Query(ctx context.Context, f Filter, limit, offset int) ([]feed.Record, error)
	// Stats counts records; Recent covers ScrapedAt at or after since.
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

// RunLogStore appends adapter run outcomes.
type RunLogStore interface {
	AppendRunLog(ctx context.Context, entry feed.RunLogEntry) error
	// ListRunLogs returns the newest entries first.
	ListRunLogs(ctx context.Context, limit int) ([]feed.RunLogEntry, error)
}

// KeyStore manages access keys. Keys are never deleted.
type KeyStore interface {
	// CreateKey returns ErrDuplicateKey when the key exists.
	CreateKey(ctx context.Context, key feed.AccessKey) error
	// GetKey returns ErrNotFound for unknown keys.
	GetKey(ctx context.Context, key string) (feed.AccessKey, error)
	IncrementRequests(ctx context.Context, key string) error
	SetKeyActive(ctx context.Context, key string, active bool) error
}

// Store bundles every repository used by the service.
type Store interface {
	RecordStore
	RunLogStore
	KeyStore
	Close()
}
