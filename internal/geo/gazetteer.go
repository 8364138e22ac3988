package geo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Place is one gazetteer entry. Lat/Lng are optional but set together.
type Place struct {
	City    string   `yaml:"city"`
	Country string   `yaml:"country"`
	Lat     *float64 `yaml:"lat"`
	Lng     *float64 `yaml:"lng"`
}

// defaultCountry is assumed for entries that omit one.
const defaultCountry = "India"

func place(city, country string, lat, lng float64) Place {
	return Place{City: city, Country: country, Lat: &lat, Lng: &lng}
}

// DefaultGazetteer returns the built-in ordered place list. The first entry
// matching a text wins, so more prominent cities come first.
func DefaultGazetteer() []Place {
	return []Place{
		place("New York", "USA", 40.7128, -74.0060),
		place("London", "UK", 51.5074, -0.1278),
		place("Mumbai", "India", 19.0760, 72.8777),
		place("Delhi", "India", 28.7041, 77.1025),
		place("Tokyo", "Japan", 35.6762, 139.6503),
		place("Paris", "France", 48.8566, 2.3522),
		place("Dubai", "UAE", 25.2048, 55.2708),
		place("Singapore", "Singapore", 1.3521, 103.8198),
		place("San Francisco", "USA", 37.7749, -122.4194),
		place("Bangalore", "India", 12.9716, 77.5946),
		place("Lucknow", "India", 26.8467, 80.9461),
		place("Hyderabad", "India", 17.3850, 78.4867),
		place("Chennai", "India", 13.0827, 80.2707),
		place("Kolkata", "India", 22.5726, 88.3639),
		place("Pune", "India", 18.5204, 73.8567),
		place("Ahmedabad", "India", 23.0225, 72.5714),
		place("Jaipur", "India", 26.9124, 75.7873),
		place("Surat", "India", 21.1702, 72.8311),
		place("Kanpur", "India", 26.4499, 80.3319),
		place("Nagpur", "India", 21.1458, 79.0882),
		place("Indore", "India", 22.7196, 75.8577),
		place("Thane", "India", 19.2183, 72.9781),
		place("Bhopal", "India", 23.2599, 77.4126),
		place("Visakhapatnam", "India", 17.6868, 83.2185),
		place("Patna", "India", 25.5941, 85.1376),
		place("Vadodara", "India", 22.3072, 73.1812),
		place("Ghaziabad", "India", 28.6692, 77.4538),
		place("Ludhiana", "India", 30.9010, 75.8573),
		place("Agra", "India", 27.1767, 78.0081),
		place("Nashik", "India", 19.9975, 73.7898),
	}
}

type gazetteerFile struct {
	Places []Place `yaml:"places"`
}

// LoadGazetteer reads an ordered place list from a YAML file of the form
// `places: [{city, country, lat, lng}, ...]`.
func LoadGazetteer(path string) ([]Place, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	var f gazetteerFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse gazetteer: %w", err)
	}
	for i, p := range f.Places {
		if p.City == "" {
			return nil, fmt.Errorf("gazetteer entry %d: city is required", i)
		}
		if (p.Lat == nil) != (p.Lng == nil) {
			return nil, fmt.Errorf("gazetteer entry %q: lat and lng must be set together", p.City)
		}
		if p.Country == "" {
			f.Places[i].Country = defaultCountry
		}
	}
	return f.Places, nil
}
