package geo

import "math"

// Matching thresholds.
const (
	// BoundingToleranceDeg pads the route bounding box; 0.01 degrees is
	// roughly 1.1 km at the equator.
	BoundingToleranceDeg = 0.01
	// RouteMatchKM: destinations this close count as a route match even when
	// the bounding-box test fails.
	RouteMatchKM = 1.0
	// SamePlaceKM: points this close are treated as the same place.
	SamePlaceKM = 0.05
)

// Route is a ride's published path: pickup, destination, and ordered
// intermediate stops.
type Route struct {
	Pickup      Location
	Destination Location
	Waypoints   []Waypoint
}

// Matches decides whether a rider's requested pickup and destination are
// compatible with this route. It is a pure function: no I/O, no errors.
//
// Policy, in order:
//  1. An omitted rider endpoint means no filter was requested; match.
//  2. A rider destination at (or within RouteMatchKM of) the ride
//     destination matches regardless of pickup.
//  3. With full coordinates, both rider endpoints must fall inside the
//     padded bounding box of the ride's pickup and destination, or a
//     waypoint must cover the rider's segment. Waypoints are checked in
//     stop order, but any satisfying waypoint suffices; the rider's segment
//     is not required to align with waypoint order.
//  4. Without full coordinates, fall back to case-insensitive place-name
//     containment. Deliberately loose: usability over exactness when
//     geocoding is unavailable.
func (r Route) Matches(riderPickup, riderDestination *Location) bool {
	if riderPickup == nil || riderDestination == nil {
		return true
	}

	if SamePlace(r.Destination, *riderDestination, RouteMatchKM) {
		return true
	}

	fullCoords := r.Pickup.HasCoordinates() && r.Destination.HasCoordinates() &&
		riderPickup.HasCoordinates() && riderDestination.HasCoordinates()
	if !fullCoords {
		return r.matchesByName(*riderPickup, *riderDestination)
	}

	if pointBetween(*riderPickup, r.Pickup, r.Destination) &&
		pointBetween(*riderDestination, r.Pickup, r.Destination) {
		return true
	}

	for _, wp := range r.Waypoints {
		if !wp.Location.HasCoordinates() {
			continue
		}
		if SamePlace(wp.Location, *riderDestination, RouteMatchKM) ||
			pointBetween(*riderPickup, r.Pickup, wp.Location) ||
			pointBetween(*riderDestination, wp.Location, r.Destination) {
			return true
		}
	}

	return false
}

// matchesByName is the coordinate-free fallback.
func (r Route) matchesByName(riderPickup, riderDestination Location) bool {
	if namesMatch(r.Destination, riderDestination) {
		return true
	}
	if namesMatch(r.Pickup, riderPickup) {
		return true
	}
	for _, wp := range r.Waypoints {
		if namesMatch(wp.Location, riderDestination) {
			return true
		}
	}
	return false
}

// SamePlace reports whether two locations are within withinKM of each other
// by great-circle distance, falling back to name containment when either is
// missing coordinates.
func SamePlace(a, b Location, withinKM float64) bool {
	if d := DistanceKM(a, b); d >= 0 {
		return d <= withinKM
	}
	return namesMatch(a, b)
}

// pointBetween is the padded bounding-box containment test. A degenerate
// segment (a == b) collapses to a point box that still carries the epsilon
// margin.
func pointBetween(p, a, b Location) bool {
	minLat := math.Min(*a.Latitude, *b.Latitude) - BoundingToleranceDeg
	maxLat := math.Max(*a.Latitude, *b.Latitude) + BoundingToleranceDeg
	minLng := math.Min(*a.Longitude, *b.Longitude) - BoundingToleranceDeg
	maxLng := math.Max(*a.Longitude, *b.Longitude) + BoundingToleranceDeg

	return *p.Latitude >= minLat && *p.Latitude <= maxLat &&
		*p.Longitude >= minLng && *p.Longitude <= maxLng
}
