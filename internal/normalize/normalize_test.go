package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/classify"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/geo"
)

func newTestNormalizer() *Normalizer {
	return New(classify.New(classify.Hazard), geo.NewResolver(nil), &fakeIDGen{}, fakeClock{t: fixedNow})
}

func TestNormalizeBuildsRecord(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rec, err := newTestNormalizer().Normalize(feed.RawCandidate{
		Title:       "  Blaze at Mumbai warehouse ",
		URL:         "https://news.example/1",
		ContentType: feed.ContentNews,
		PublishedAt: published,
		Description: "Crews respond",
		SourceName:  "Example Times",
	})
	require.NoError(t, err)
	require.Equal(t, "id-1", rec.ID)
	require.Equal(t, "Blaze at Mumbai warehouse", rec.Title)
	require.Equal(t, published, rec.PublishedAt)
	require.Equal(t, fixedNow, rec.ScrapedAt)
	require.Equal(t, "FIRE", rec.Category)
	require.Equal(t, feed.SeverityMedium, rec.Severity)
	require.Equal(t, "Mumbai", rec.City)
	require.Equal(t, "India", rec.Country)
	require.Equal(t, "Mumbai", rec.Location)
	require.NotNil(t, rec.Coordinates)
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	_, err := n.Normalize(feed.RawCandidate{URL: "https://x"})
	require.True(t, errors.Is(err, ErrInvalidCandidate))

	_, err = n.Normalize(feed.RawCandidate{Title: "hello", URL: "  "})
	require.ErrorIs(t, err, ErrInvalidCandidate)
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	rec, err := newTestNormalizer().Normalize(feed.RawCandidate{Title: "A calm day", URL: "https://x/2"})
	require.NoError(t, err)
	require.Equal(t, fixedNow, rec.PublishedAt)
	require.Equal(t, feed.ContentNews, rec.ContentType)
	require.Equal(t, "OTHER", rec.Category)
	require.Equal(t, feed.SeverityLow, rec.Severity)
	require.Equal(t, feed.GlobalLocation, rec.Location)
	require.Nil(t, rec.Coordinates)
}

func TestNormalizeUsesLocationText(t *testing.T) {
	t.Parallel()

	rec, err := newTestNormalizer().Normalize(feed.RawCandidate{
		Title:        "Traffic update",
		URL:          "https://x/3",
		Description:  "Body mentions London twice: London.",
		LocationText: "Traffic update from Tokyo",
	})
	require.NoError(t, err)
	require.Equal(t, "Tokyo", rec.City)
	require.Equal(t, "Japan", rec.Country)
}

func TestNormalizeIDFailure(t *testing.T) {
	t.Parallel()

	n := New(classify.New(classify.Hazard), geo.NewResolver(nil), &fakeIDGen{err: errors.New("boom")}, fakeClock{t: fixedNow})
	_, err := n.Normalize(feed.RawCandidate{Title: "t", URL: "u"})
	require.ErrorContains(t, err, "assign id")
}

// --- helpers/fakes ---

var fixedNow = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeIDGen struct {
	n   int
	err error
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return "id-" + string(rune('0'+f.n)), nil
}

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }
