package rollcall

import "math"

const (
	earthRadiusKM     = 6371.0
	earthRadiusMeters = earthRadiusKM * 1000
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point lies within the coordinate ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Geofence is a circular region within which a redemption must originate.
type Geofence struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Center returns the centre of the geofence.
func (g Geofence) Center() Point {
	return Point{Latitude: g.Latitude, Longitude: g.Longitude}
}

// Valid reports whether the centre is a valid point and the radius is non-negative.
func (g Geofence) Valid() bool {
	return g.Center().Valid() && g.RadiusMeters >= 0 && !math.IsNaN(g.RadiusMeters)
}

// haversine returns the central angle in radians between two coordinates.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	// Convert degrees to radians
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	// Rounding can push a just past 1 for near-antipodal points.
	return 2 * math.Asin(math.Sqrt(math.Min(1, a)))
}

// HaversineDistance calculates the distance in kilometers between two
// geographic coordinates using the Haversine formula.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return earthRadiusKM * haversine(lat1, lng1, lat2, lng2)
}

// DistanceMeters returns the great-circle distance in meters between two points.
func DistanceMeters(a, b Point) float64 {
	return earthRadiusMeters * haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// WithinRadius reports whether point lies no further than radiusMeters from
// center. It is pure and deterministic.
func WithinRadius(center, point Point, radiusMeters float64) bool {
	return DistanceMeters(center, point) <= radiusMeters
}

// IsDistantNetwork reports whether an IP-derived network location is more
// than thresholdKM away from the geofence centre. Locations without
// coordinates are never considered distant.
func IsDistantNetwork(fence Geofence, network NetworkLocation, thresholdKM float64) bool {
	if thresholdKM <= 0 {
		return false
	}
	if network.Latitude == 0 && network.Longitude == 0 {
		return false
	}

	distance := HaversineDistance(
		fence.Latitude, fence.Longitude,
		network.Latitude, network.Longitude,
	)

	return distance > thresholdKM
}
