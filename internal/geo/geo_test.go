package geo

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

func TestResolveCityWholeWord(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	loc := r.Resolve("Heavy traffic reported in central mumbai today")
	require.Equal(t, "Mumbai", loc.City)
	require.Equal(t, "India", loc.Country)
	require.NotNil(t, loc.Coordinates)
	require.InDelta(t, 19.0760, loc.Coordinates.Lat, 1e-9)
	require.InDelta(t, 72.8777, loc.Coordinates.Lng, 1e-9)
	require.Equal(t, "Mumbai", loc.Label())
}

func TestResolveRejectsPartialWord(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	loc := r.Resolve("Punetown is not a city")
	require.Empty(t, loc.City)
}

func TestResolveFirstEntryWins(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	loc := r.Resolve("Flights from Delhi to London resume")
	require.Equal(t, "London", loc.City)
	require.Equal(t, "UK", loc.Country)
}

func TestResolveCountryFallback(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)

	loc := r.Resolve("Monsoon arrives early across India")
	require.Equal(t, Location{Country: "India"}, loc)
	require.Equal(t, "India", loc.Label())

	loc = r.Resolve("U.S. markets close higher")
	require.Equal(t, "USA", loc.Country)
	require.Nil(t, loc.Coordinates)

	// case-sensitive: lower-case "india" does not count
	loc = r.Resolve("indian summer")
	require.Equal(t, Location{}, loc)
}

func TestResolveNothing(t *testing.T) {
	t.Parallel()

	loc := NewResolver(nil).Resolve("A quiet day")
	require.Equal(t, Location{}, loc)
	require.Equal(t, feed.GlobalLocation, loc.Label())
}

func TestLoadGazetteer(t *testing.T) {
	t.Parallel()

	places, err := LoadGazetteer(filepath.Join("testdata", "gazetteer.yaml"))
	require.NoError(t, err)
	require.Len(t, places, 2)
	require.Equal(t, "India", places[1].Country)
	require.Nil(t, places[1].Lat)

	r := NewResolver(places)
	loc := r.Resolve("Parade in Springfield")
	require.Equal(t, "USA", loc.Country)
	require.NotNil(t, loc.Coordinates)

	loc = r.Resolve("Fair at Shelbyville")
	require.Equal(t, "Shelbyville", loc.City)
	require.Nil(t, loc.Coordinates)
}

func TestLoadGazetteerErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadGazetteer(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)

	_, err = LoadGazetteer(filepath.Join("testdata", "bad_coords.yaml"))
	require.ErrorContains(t, err, "lat and lng")
}

func TestDistance(t *testing.T) {
	t.Parallel()

	delhi := feed.Coordinates{Lat: 28.7041, Lng: 77.1025}
	require.InDelta(t, 0, Distance(delhi, delhi), 1e-9)

	// one degree of latitude on a 6371 km sphere
	d := Distance(feed.Coordinates{Lat: 0, Lng: 0}, feed.Coordinates{Lat: 1, Lng: 0})
	require.InDelta(t, EarthRadiusKm*math.Pi/180, d, 1e-6)

	mumbai := feed.Coordinates{Lat: 19.0760, Lng: 72.8777}
	require.InDelta(t, 1150, Distance(delhi, mumbai), 20)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	center := feed.Coordinates{Lat: 10, Lng: 10}
	require.True(t, Within(center, &center, 0))
	require.False(t, Within(center, nil, 1e6))
}
