package geo

import (
	"math"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance in kilometres.
func Distance(a, b feed.Coordinates) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether p is at most radiusKm from center. A nil point is
// never within range.
func Within(center feed.Coordinates, p *feed.Coordinates, radiusKm float64) bool {
	if p == nil {
		return false
	}
	return Distance(center, *p) <= radiusKm
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
