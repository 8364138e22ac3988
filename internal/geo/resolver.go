// Package geo resolves approximate locations from free text and computes
// great-circle distances.
package geo

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Location is the resolver output. Zero value means nothing matched.
type Location struct {
	City        string
	Country     string
	Coordinates *feed.Coordinates
}

// Label returns the display label: city, else country, else Global.
func (l Location) Label() string {
	switch {
	case l.City != "":
		return l.City
	case l.Country != "":
		return l.Country
	default:
		return feed.GlobalLocation
	}
}

type countryRule struct {
	country string
	tokens  []string
}

// Checked in order, case-sensitive, when no city matched.
var countryFallbacks = []countryRule{
	{country: "India", tokens: []string{"India"}},
	{country: "USA", tokens: []string{"USA", "U.S."}},
	{country: "UK", tokens: []string{"UK"}},
	{country: "Canada", tokens: []string{"Canada"}},
	{country: "Australia", tokens: []string{"Australia"}},
}

type entry struct {
	place   Place
	pattern *regexp.Regexp
}

// Resolver matches text against an ordered gazetteer. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	entries []entry
}

// NewResolver compiles the gazetteer. A nil or empty list uses DefaultGazetteer.
func NewResolver(places []Place) *Resolver {
	if len(places) == 0 {
		places = DefaultGazetteer()
	}
	entries := make([]entry, 0, len(places))
	for _, p := range places {
		entries = append(entries, entry{
			place:   p,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p.City) + `\b`),
		})
	}
	return &Resolver{entries: entries}
}

// Resolve returns the first gazetteer city found as a whole word, falling back
// to a fixed list of country names.
func (r *Resolver) Resolve(text string) Location {
	if text == "" {
		return Location{}
	}
	for _, e := range r.entries {
		if !e.pattern.MatchString(text) {
			continue
		}
		loc := Location{City: e.place.City, Country: e.place.Country}
		if e.place.Lat != nil && e.place.Lng != nil {
			loc.Coordinates = &feed.Coordinates{Lat: *e.place.Lat, Lng: *e.place.Lng}
		}
		return loc
	}
	for _, rule := range countryFallbacks {
		for _, tok := range rule.tokens {
			if strings.Contains(text, tok) {
				return Location{Country: rule.country}
			}
		}
	}
	return Location{}
}
