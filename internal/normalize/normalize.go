// Package normalize turns adapter output into canonical records.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/realtime-content-feed/internal/classify"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/geo"
)

// ErrInvalidCandidate marks a candidate without a title or URL.
var ErrInvalidCandidate = errors.New("invalid candidate")

// Classifier scores text into a category and severity.
type Classifier interface {
	Classify(text string) classify.Result
}

// Resolver extracts a location from text.
type Resolver interface {
	Resolve(text string) geo.Location
}

// Normalizer combines a raw candidate with classification and location
// output. Every adapter's candidates go through the same instance so a
// deployment uses one taxonomy throughout.
type Normalizer struct {
	classifier Classifier
	resolver   Resolver
	ids        feed.IDGenerator
	clock      feed.Clock
}

// New wires a Normalizer.
func New(classifier Classifier, resolver Resolver, ids feed.IDGenerator, clock feed.Clock) *Normalizer {
	return &Normalizer{classifier: classifier, resolver: resolver, ids: ids, clock: clock}
}

// Normalize validates raw and builds a Record with a fresh ID.
func (n *Normalizer) Normalize(raw feed.RawCandidate) (feed.Record, error) {
	title := strings.TrimSpace(raw.Title)
	url := strings.TrimSpace(raw.URL)
	if title == "" {
		return feed.Record{}, fmt.Errorf("%w: missing title", ErrInvalidCandidate)
	}
	if url == "" {
		return feed.Record{}, fmt.Errorf("%w: missing url", ErrInvalidCandidate)
	}

	id, err := n.ids.NewID()
	if err != nil {
		return feed.Record{}, fmt.Errorf("assign id: %w", err)
	}
	now := n.clock.Now()
	published := raw.PublishedAt
	if published.IsZero() {
		published = now
	}
	contentType := raw.ContentType
	if contentType == "" {
		contentType = feed.ContentNews
	}

	description := strings.TrimSpace(raw.Description)
	text := title + " " + description
	class := n.classifier.Classify(text)

	locText := text
	if raw.LocationText != "" {
		locText = raw.LocationText
	}
	loc := n.resolver.Resolve(locText)

	return feed.Record{
		ID:          id,
		Title:       title,
		URL:         url,
		Description: description,
		ImageURL:    strings.TrimSpace(raw.ImageURL),
		SourceName:  raw.SourceName,
		ContentType: contentType,
		PublishedAt: published.UTC(),
		ScrapedAt:   now,
		Category:    class.Category,
		Severity:    class.Severity,
		Score:       class.Score,
		Location:    loc.Label(),
		City:        loc.City,
		Country:     loc.Country,
		Coordinates: loc.Coordinates,
	}, nil
}
