package geo

import (
	"math"
	"strings"
	"time"
)

// Location is a geographic point owned by exactly one ride: its pickup, its
// destination, or a waypoint. Coordinates are optional; a location may be
// known only by its place name when geocoding was unavailable.
type Location struct {
	ID        string
	Latitude  *float64
	Longitude *float64
	PlaceName string
	Address   string
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Waypoint is an ordered intermediate stop on a ride's route.
type Waypoint struct {
	ID               string
	StopOrder        int
	Location         Location
	EstimatedArrival *time.Time
}

// NewPoint builds a Location from raw coordinates.
func NewPoint(lat, lng float64, placeName string) Location {
	return Location{Latitude: &lat, Longitude: &lng, PlaceName: placeName}
}

// HaversineKM returns the great-circle distance between two coordinate pairs
// in kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// DistanceKM returns the great-circle distance between two locations, or -1
// when either is missing coordinates.
func DistanceKM(a, b Location) float64 {
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return -1
	}
	return HaversineKM(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
}

// namesMatch is the best-effort fallback when coordinates are missing:
// case-insensitive substring containment in either direction.
func namesMatch(a, b Location) bool {
	n1 := strings.ToLower(strings.TrimSpace(a.PlaceName))
	n2 := strings.ToLower(strings.TrimSpace(b.PlaceName))
	if n1 == "" || n2 == "" {
		return false
	}
	return strings.Contains(n1, n2) || strings.Contains(n2, n1)
}
