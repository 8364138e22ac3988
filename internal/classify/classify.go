// Package classify assigns a category and severity to free text using
// ordered keyword taxonomies.
package classify

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// Taxonomy names accepted by ForName.
const (
	TaxonomyHazard  = "hazard"
	TaxonomyTopical = "topical"
)

// Category is one entry of a taxonomy. Keywords are lower-case.
type Category struct {
	Name     string
	Keywords []string
}

// Taxonomy is an ordered set of categories plus the closed default used when
// nothing matches. Declaration order breaks ties.
type Taxonomy struct {
	Name       string
	Categories []Category
	Default    string
}

// Names returns every category label including the default, in order.
func (t Taxonomy) Names() []string {
	out := make([]string, 0, len(t.Categories)+1)
	for _, c := range t.Categories {
		out = append(out, c.Name)
	}
	return append(out, t.Default)
}

// Result is the classifier output for one text.
type Result struct {
	Category string
	Severity feed.Severity
	Score    int
}

var alarmTokens = []string{"death", "dead", "critical"}

// Hazard is the incident-oriented taxonomy.
var Hazard = Taxonomy{
	Name: TaxonomyHazard,
	Categories: []Category{
		{Name: "CRIME", Keywords: []string{
			"murder", "homicide", "robbery", "theft", "assault", "stabbing", "shooting", "arrest", "police",
			"burglary", "gunshot", "suspect", "crime", "illegal", "drug", "trafficking", "kidnap",
		}},
		{Name: "ACCIDENT", Keywords: []string{
			"accident", "crash", "collision", "derailment", "wreck", "injured", "casualty", "vehicle", "car",
			"bus", "train", "plane", "highway", "traffic",
		}},
		{Name: "FIRE", Keywords: []string{
			"fire", "blaze", "explosion", "burning", "burn", "flames", "firefighter", "arson", "smoke",
		}},
		{Name: "EARTHQUAKE", Keywords: []string{
			"earthquake", "tremor", "quake", "seismic", "magnitude", "aftershock", "tectonic", "shaking",
		}},
		{Name: "FLOOD", Keywords: []string{
			"flood", "inundation", "overflow", "heavy rain", "storm", "tsunami", "water level", "drowning",
			"flash flood",
		}},
	},
	Default: "OTHER",
}

// Topical is the newsroom-section taxonomy.
var Topical = Taxonomy{
	Name: TaxonomyTopical,
	Categories: []Category{
		{Name: "Crime", Keywords: []string{
			"arrest", "murder", "killed", "police", "shooting", "robbery", "crime", "court", "jail", "prison",
			"suspect", "stabbed",
		}},
		{Name: "Politics", Keywords: []string{
			"election", "senate", "congress", "president", "minister", "vote", "law", "policy", "campaign",
			"democrat", "republican", "bjp", "modi",
		}},
		{Name: "Tech", Keywords: []string{
			"ai", "google", "apple", "microsoft", "crypto", "bitcoin", "software", "app", "startup", "cyber", "robot",
		}},
		{Name: "Business", Keywords: []string{
			"stock", "market", "economy", "inflation", "trade", "ceo", "revenue", "profit", "bank", "invest",
		}},
		{Name: "Health", Keywords: []string{
			"virus", "hospital", "doctor", "cancer", "vaccine", "health", "disease", "mental", "fitness",
		}},
		{Name: "Education", Keywords: []string{
			"school", "university", "college", "student", "exam", "teacher", "class", "degree",
		}},
		{Name: "Entertainment", Keywords: []string{
			"movie", "film", "actor", "music", "song", "star", "celebrity", "hollywood", "bollywood",
		}},
		{Name: "Sports", Keywords: []string{
			"match", "score", "team", "player", "league", "tournament", "cup", "medal", "olympic",
		}},
	},
	Default: "General",
}

// ForName returns the built-in taxonomy with the given name.
func ForName(name string) (Taxonomy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TaxonomyHazard:
		return Hazard, nil
	case TaxonomyTopical:
		return Topical, nil
	default:
		return Taxonomy{}, fmt.Errorf("unknown taxonomy %q", name)
	}
}

// Classifier scores text against a single taxonomy. It is stateless and safe
// for concurrent use.
type Classifier struct {
	taxonomy Taxonomy
}

// New returns a Classifier bound to the taxonomy.
func New(t Taxonomy) *Classifier {
	return &Classifier{taxonomy: t}
}

// Taxonomy exposes the taxonomy in use.
func (c *Classifier) Taxonomy() Taxonomy {
	return c.taxonomy
}

// Classify counts keyword hits per category (substring containment, one hit
// per keyword) and picks the highest; the first declared category wins ties.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)

	best, bestScore := "", 0
	for _, cat := range c.taxonomy.Categories {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	if bestScore == 0 {
		return Result{Category: c.taxonomy.Default, Severity: feed.SeverityLow}
	}

	severity := feed.SeverityMedium
	if bestScore > 2 || containsAny(lower, alarmTokens) {
		severity = feed.SeverityHigh
	}
	return Result{Category: best, Severity: severity, Score: bestScore}
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
