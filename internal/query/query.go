// Package query composes filters, pagination and geospatial radius
// filtering over the record store.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/geo"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
)

// Defaults for the two access modes.
const (
	DefaultPageLimit = 20
	DefaultListLimit = 50
	MaxLimit         = 500
	RecentWindow     = 24 * time.Hour
)

// ContentTypeAll disables the content type filter.
const ContentTypeAll = "ALL"

// Filter holds caller-supplied, independently optional predicates.
type Filter struct {
	Category    string
	City        string
	Country     string
	Location    string
	Source      string
	ContentType string
	Severity    string
	Search      string
}

// Radius restricts results to records within Km of a point.
type Radius struct {
	Center feed.Coordinates
	Km     float64
}

// PageResult is the paginated envelope.
type PageResult struct {
	Status  string        `json:"status"`
	Results int           `json:"results"`
	Page    int           `json:"page"`
	Data    []feed.Record `json:"data"`
}

// Stats is the dashboard summary.
type Stats struct {
	Total        int64            `json:"total_items"`
	HighSeverity int64            `json:"high_severity"`
	Recent       int64            `json:"recent_items"`
	Categories   map[string]int64 `json:"-"`
}

// Service answers read queries. It never writes.
type Service struct {
	records store.RecordStore
	clock   feed.Clock
}

// New wires a Service.
func New(records store.RecordStore, clock feed.Clock) *Service {
	return &Service{records: records, clock: clock}
}

// ToStore validates enumerated fields and converts f into a storage filter.
func (f Filter) ToStore() (store.Filter, error) {
	out := store.Filter{
		Category: strings.TrimSpace(f.Category),
		City:     strings.TrimSpace(f.City),
		Country:  strings.TrimSpace(f.Country),
		Location: strings.TrimSpace(f.Location),
		Source:   strings.TrimSpace(f.Source),
		Search:   strings.TrimSpace(f.Search),
	}
	if ct := strings.TrimSpace(f.ContentType); ct != "" && !strings.EqualFold(ct, ContentTypeAll) {
		parsed, err := feed.ParseContentType(ct)
		if err != nil {
			return store.Filter{}, err
		}
		out.ContentType = parsed
	}
	if sev := strings.TrimSpace(f.Severity); sev != "" {
		parsed, err := feed.ParseSeverity(sev)
		if err != nil {
			return store.Filter{}, err
		}
		out.Severity = parsed
	}
	return out, nil
}

// Page returns one page ordered by publishedAt descending. Non-positive page
// or limit fall back to 1 and DefaultPageLimit.
func (s *Service) Page(ctx context.Context, f Filter, page, limit int) (PageResult, error) {
	sf, err := f.ToStore()
	if err != nil {
		return PageResult{}, err
	}
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, DefaultPageLimit)
	offset := (page - 1) * limit

	recs, err := s.records.Query(ctx, sf, limit, offset)
	if err != nil {
		return PageResult{}, fmt.Errorf("query page: %w", err)
	}
	return PageResult{Status: "success", Results: len(recs), Page: page, Data: recs}, nil
}

// List returns up to limit records. When radius is set the storage limit is
// applied first and the result is then narrowed to records with coordinates
// inside the radius; the result is not refilled to reach limit.
func (s *Service) List(ctx context.Context, f Filter, limit int, radius *Radius) ([]feed.Record, error) {
	sf, err := f.ToStore()
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultListLimit)
	recs, err := s.records.Query(ctx, sf, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("query list: %w", err)
	}
	if radius == nil {
		return recs, nil
	}
	out := make([]feed.Record, 0, len(recs))
	for _, rec := range recs {
		if geo.Within(radius.Center, rec.Coordinates, radius.Km) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Stats counts all records, HIGH severity records, records scraped in the
// last RecentWindow and records per category.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.records.Stats(ctx, s.clock.Now().Add(-RecentWindow))
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return Stats{
		Total:        st.Total,
		HighSeverity: st.HighSeverity,
		Recent:       st.Recent,
		Categories:   st.Categories,
	}, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
