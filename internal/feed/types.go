package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType is the closed set of content kinds an adapter can yield.
type ContentType string

// Supported content types.
const (
	ContentNews   ContentType = "NEWS"
	ContentVideo  ContentType = "VIDEO"
	ContentSocial ContentType = "SOCIAL"
)

// ParseContentType validates a content type label (case-insensitive).
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToUpper(strings.TrimSpace(s))) {
	case ContentNews:
		return ContentNews, nil
	case ContentVideo:
		return ContentVideo, nil
	case ContentSocial:
		return ContentSocial, nil
	default:
		return "", fmt.Errorf("unknown content type %q", s)
	}
}

// Severity grades hazard-style categories.
type Severity string

// Severity levels.
const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ParseSeverity validates a severity label (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// GlobalLocation is the display label used when nothing was resolved.
const GlobalLocation = "Global"

// Coordinates is a WGS84 point. A record either has both values or none.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawCandidate is what an adapter yields before normalization.
type RawCandidate struct {
	Title       string
	URL         string
	ContentType ContentType
	PublishedAt time.Time
	Description string
	ImageURL    string
	SourceName  string
	// LocationText, when set, is scanned for a location instead of the
	// title and description.
	LocationText string
	Tags         []string
}

// Record is the canonical, persisted unit of aggregated content.
type Record struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Description string       `json:"description,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	SourceName  string       `json:"source"`
	ContentType ContentType  `json:"type"`
	PublishedAt time.Time    `json:"publishedAt"`
	ScrapedAt   time.Time    `json:"scrapedAt"`
	Category    string       `json:"category"`
	Severity    Severity     `json:"severity"`
	Score       int          `json:"score"`
	Location    string       `json:"location,omitempty"`
	City        string       `json:"city,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"-"`
}

type recordFields Record

type recordJSON struct {
	recordFields
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// MarshalJSON writes the coordinates as flat, nullable lat and lng fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{recordFields: recordFields(r)}
	if r.Coordinates != nil {
		out.Lat, out.Lng = &r.Coordinates.Lat, &r.Coordinates.Lng
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads flat lat and lng fields. Coordinates are set only when
// both are present.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record(in.recordFields)
	r.Coordinates = nil
	if in.Lat != nil && in.Lng != nil {
		r.Coordinates = &Coordinates{Lat: *in.Lat, Lng: *in.Lng}
	}
	return nil
}

// RunOutcome is the result label of one adapter invocation.
type RunOutcome string

// Run outcomes persisted in the run log.
const (
	OutcomeSuccess RunOutcome = "SUCCESS"
	OutcomeError   RunOutcome = "ERROR"
)

// RunLogEntry records one adapter invocation. Entries are append-only.
type RunLogEntry struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Outcome   RunOutcome `json:"status"`
	Message   string     `json:"message"`
	Count     int        `json:"count"`
	CreatedAt time.Time  `json:"createdAt"`
}

// DefaultPlan is assigned to newly issued keys.
const DefaultPlan = "free"

// AccessKey identifies an API caller. Only Requests changes after creation.
type AccessKey struct {
	Key       string    `json:"key"`
	Owner     string    `json:"owner"`
	Plan      string    `json:"plan"`
	Requests  int64     `json:"requests"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
