package rollcall

import (
	"math"
	"testing"
)

// metersPerDegreeLat is the length of one degree of latitude on the sphere.
const metersPerDegreeLat = earthRadiusMeters * math.Pi / 180

// north returns p moved meters due north.
func north(p Point, meters float64) Point {
	return Point{Latitude: p.Latitude + meters/metersPerDegreeLat, Longitude: p.Longitude}
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name           string
		lat1, lng1     float64
		lat2, lng2     float64
		expectedKM     float64
		toleranceKM    float64 // absolute tolerance
		toleranceRatio float64 // relative tolerance
	}{
		{
			name:        "same point returns zero",
			lat1:        40.7128,
			lng1:        -74.0060,
			lat2:        40.7128,
			lng2:        -74.0060,
			expectedKM:  0,
			toleranceKM: 0.000001,
		},
		{
			name:           "NYC to London",
			lat1:           40.7128,
			lng1:           -74.0060,
			lat2:           51.5074,
			lng2:           -0.1278,
			expectedKM:     5570,
			toleranceRatio: 0.01,
		},
		{
			name:           "North Pole to South Pole (antipodal)",
			lat1:           90,
			lng1:           0,
			lat2:           -90,
			lng2:           0,
			expectedKM:     20015,
			toleranceRatio: 0.01,
		},
		{
			name:           "crossing International Date Line - Tokyo to Honolulu",
			lat1:           35.6762,
			lng1:           139.6503,
			lat2:           21.3069,
			lng2:           -157.8583,
			expectedKM:     6199,
			toleranceRatio: 0.02,
		},
		{
			name:           "across a campus - library to lecture hall",
			lat1:           40.7484,
			lng1:           -73.9857,
			lat2:           40.7580,
			lng2:           -73.9855,
			expectedKM:     1.07,
			toleranceRatio: 0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)

			tolerance := tt.toleranceKM
			if tt.toleranceRatio > 0 && tt.expectedKM > 0 {
				tolerance = tt.expectedKM * tt.toleranceRatio
			}

			if math.Abs(got-tt.expectedKM) > tolerance {
				t.Errorf("HaversineDistance(%v, %v, %v, %v) = %v km, want ~%v km (tolerance: %v km)",
					tt.lat1, tt.lng1, tt.lat2, tt.lng2, got, tt.expectedKM, tolerance)
			}
		})
	}
}

func TestDistanceMetersMatchesKilometres(t *testing.T) {
	a := Point{Latitude: 51.5074, Longitude: -0.1278}
	b := Point{Latitude: 48.8566, Longitude: 2.3522}

	km := HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	m := DistanceMeters(a, b)

	if math.Abs(m-km*1000) > 1e-6 {
		t.Errorf("DistanceMeters = %v, want %v", m, km*1000)
	}
}

func TestDistanceMetersSymmetry(t *testing.T) {
	pairs := [][2]Point{
		{{40.7128, -74.0060}, {51.5074, -0.1278}},
		{{-33.8688, 151.2093}, {35.6762, 139.6503}},
		{{0, 180}, {0, -180}},
	}

	for _, p := range pairs {
		d1 := DistanceMeters(p[0], p[1])
		d2 := DistanceMeters(p[1], p[0])
		if math.Abs(d1-d2) > 1e-6 {
			t.Errorf("distance not symmetric: %v vs %v", d1, d2)
		}
	}
}

func TestWithinRadiusSamePoint(t *testing.T) {
	points := []Point{
		{0, 0},
		{90, 0},
		{-90, 180},
		{12.9716, 77.5946},
		{-33.8688, 151.2093},
	}
	radii := []float64{0, 0.5, 50, 1e6}

	for _, p := range points {
		for _, r := range radii {
			if !WithinRadius(p, p, r) {
				t.Errorf("WithinRadius(%v, %v, %v) = false, want true", p, p, r)
			}
		}
	}
}

func TestWithinRadius(t *testing.T) {
	center := Point{Latitude: 12.9716, Longitude: 77.5946}

	tests := []struct {
		name   string
		point  Point
		radius float64
		want   bool
	}{
		{"10 m inside 50 m fence", north(center, 10), 50, true},
		{"49 m inside 50 m fence", north(center, 49), 50, true},
		{"51 m outside 50 m fence", north(center, 51), 50, false},
		{"500 m outside 50 m fence", north(center, 500), 50, false},
		{"500 m inside 1 km fence", north(center, 500), 1000, true},
		{"any offset outside zero radius", north(center, 1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinRadius(center, tt.point, tt.radius); got != tt.want {
				t.Errorf("WithinRadius = %v, want %v (distance %v m)",
					got, tt.want, DistanceMeters(center, tt.point))
			}
		})
	}
}

func TestWithinRadiusAgreesWithDistance(t *testing.T) {
	center := Point{Latitude: -1.2921, Longitude: 36.8219}

	for _, meters := range []float64{0, 3, 25, 100, 999, 5000} {
		p := north(center, meters)
		d := DistanceMeters(center, p)
		if !WithinRadius(center, p, d) {
			t.Errorf("point at exactly %v m should be within its own distance", d)
		}
		if d > 0 && WithinRadius(center, p, d*0.99) {
			t.Errorf("point at %v m should be outside %v m", d, d*0.99)
		}
	}
}

func TestWithinRadiusNearAntipodal(t *testing.T) {
	// No two points on the sphere are further apart than half its circumference.
	maxDistance := earthRadiusMeters * math.Pi

	pairs := [][2]Point{
		{{-89.6499997, -179.65}, {89.6499997, 0.35}},
		{{0, 0}, {0, 180}},
		{{45, 90}, {-45, -90}},
		{{-12.3456789, 100.1}, {12.3456789, -79.9}},
	}

	for _, p := range pairs {
		d := DistanceMeters(p[0], p[1])
		if math.IsNaN(d) || d > maxDistance+1e-6 {
			t.Errorf("DistanceMeters(%v, %v) = %v, want a value no larger than %v", p[0], p[1], d, maxDistance)
		}
		if !WithinRadius(p[0], p[1], 2.1e7) {
			t.Errorf("WithinRadius(%v, %v, 2.1e7) = false, want true", p[0], p[1])
		}
	}

	for lat := -89.9; lat < 90; lat += 0.37 {
		for lng := -179.9; lng < 0; lng += 1.3 {
			a := Point{Latitude: lat, Longitude: lng}
			b := Point{Latitude: -lat, Longitude: lng + 180}
			if d := DistanceMeters(a, b); math.IsNaN(d) {
				t.Fatalf("DistanceMeters(%v, %v) is NaN", a, b)
			}
		}
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{0, 0}, true},
		{Point{90, 180}, true},
		{Point{-90, -180}, true},
		{Point{90.0001, 0}, false},
		{Point{0, -180.5}, false},
		{Point{math.NaN(), 0}, false},
	}

	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("%v.Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestGeofenceValid(t *testing.T) {
	if !(Geofence{Latitude: 10, Longitude: 10, RadiusMeters: 0}).Valid() {
		t.Error("zero radius geofence should be valid")
	}
	if (Geofence{Latitude: 10, Longitude: 10, RadiusMeters: -1}).Valid() {
		t.Error("negative radius geofence should be invalid")
	}
	if (Geofence{Latitude: 100, Longitude: 10, RadiusMeters: 50}).Valid() {
		t.Error("geofence with invalid centre should be invalid")
	}
}

func TestIsDistantNetwork(t *testing.T) {
	campus := Geofence{Latitude: 40.7128, Longitude: -74.0060, RadiusMeters: 100}

	tests := []struct {
		name        string
		network     NetworkLocation
		thresholdKM float64
		want        bool
	}{
		{
			name:        "same city - not distant",
			network:     NetworkLocation{City: "New York", Latitude: 40.73, Longitude: -73.99},
			thresholdKM: 100,
			want:        false,
		},
		{
			name:        "other continent - distant",
			network:     NetworkLocation{City: "London", Latitude: 51.5074, Longitude: -0.1278},
			thresholdKM: 100,
			want:        true,
		},
		{
			name:        "no coordinates - never distant",
			network:     NetworkLocation{IP: "10.0.0.1"},
			thresholdKM: 100,
			want:        false,
		},
		{
			name:        "check disabled",
			network:     NetworkLocation{City: "London", Latitude: 51.5074, Longitude: -0.1278},
			thresholdKM: 0,
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDistantNetwork(campus, tt.network, tt.thresholdKM); got != tt.want {
				t.Errorf("IsDistantNetwork = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkWithinRadius(b *testing.B) {
	center := Point{Latitude: 40.7128, Longitude: -74.0060}
	p := north(center, 30)
	for i := 0; i < b.N; i++ {
		WithinRadius(center, p, 50)
	}
}
