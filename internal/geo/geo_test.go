package geo

import (
	"math"
	"testing"
)

// TestDistanceMeters verifies haversine distances against known references.
func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		a         Point
		b         Point
		expected  float64 // meters
		tolerance float64 // meters
	}{
		{
			name:      "identical points",
			a:         Point{Lat: 48.8566, Lng: 2.3522},
			b:         Point{Lat: 48.8566, Lng: 2.3522},
			expected:  0,
			tolerance: 0.001,
		},
		{
			name:      "paris to london",
			a:         Point{Lat: 48.8566, Lng: 2.3522},
			b:         Point{Lat: 51.5074, Lng: -0.1278},
			expected:  343500,
			tolerance: 1500,
		},
		{
			name:      "one degree of latitude",
			a:         Point{Lat: 0, Lng: 0},
			b:         Point{Lat: 1, Lng: 0},
			expected:  111195,
			tolerance: 100,
		},
		{
			name:      "short urban distance",
			a:         Point{Lat: 40.7580, Lng: -73.9855},
			b:         Point{Lat: 40.7614, Lng: -73.9776},
			expected:  770,
			tolerance: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("expected %.0fm ± %.0fm, got %.0fm", tt.expected, tt.tolerance, got)
			}
		})
	}
}

// TestDistanceMetersSymmetric verifies distance is symmetric.
func TestDistanceMetersSymmetric(t *testing.T) {
	a := Point{Lat: 35.6762, Lng: 139.6503}
	b := Point{Lat: 37.5665, Lng: 126.9780}

	ab := DistanceMeters(a, b)
	ba := DistanceMeters(b, a)

	if math.Abs(ab-ba) > 0.0001 {
		t.Errorf("distance not symmetric: %f vs %f", ab, ba)
	}
}

// TestPointValid tests WGS84 coordinate bounds validation.
func TestPointValid(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		valid bool
	}{
		{"origin", Point{0, 0}, true},
		{"north pole", Point{90, 0}, true},
		{"south pole", Point{-90, 0}, true},
		{"date line", Point{0, 180}, true},
		{"lat too high", Point{90.1, 0}, false},
		{"lat too low", Point{-90.1, 0}, false},
		{"lng too high", Point{0, 180.1}, false},
		{"lng too low", Point{0, -180.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.point.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

// TestBoundingBoxAround verifies the box contains the radius circle.
func TestBoundingBoxAround(t *testing.T) {
	origin := Point{Lat: 52.52, Lng: 13.405}
	radius := 5000.0

	box := BoundingBoxAround(origin, radius)

	if !box.Contains(origin) {
		t.Fatal("bounding box must contain its origin")
	}

	// Points just inside the radius along each axis must be inside the box.
	probes := []Point{
		{Lat: origin.Lat + 0.95*radius/EarthRadiusMeters*180/math.Pi, Lng: origin.Lng},
		{Lat: origin.Lat - 0.95*radius/EarthRadiusMeters*180/math.Pi, Lng: origin.Lng},
	}
	for _, p := range probes {
		if !box.Contains(p) {
			t.Errorf("box should contain point %+v within radius", p)
		}
	}

	// A point well outside the radius must be outside the box.
	far := Point{Lat: origin.Lat + 1.0, Lng: origin.Lng}
	if box.Contains(far) {
		t.Errorf("box should not contain point one degree away for a 5km radius")
	}
}

// TestBoundingBoxAroundPole verifies pole-crossing boxes widen to full longitude.
func TestBoundingBoxAroundPole(t *testing.T) {
	box := BoundingBoxAround(Point{Lat: 89.99, Lng: 0}, 50000)

	if box.MaxLat != 90 {
		t.Errorf("expected MaxLat clamped to 90, got %f", box.MaxLat)
	}
	if box.MinLng != -180 || box.MaxLng != 180 {
		t.Errorf("expected full longitude range at pole, got [%f, %f]", box.MinLng, box.MaxLng)
	}
}

// TestEncodeRegion verifies geohash region keys against known encodings.
func TestEncodeRegion(t *testing.T) {
	tests := []struct {
		name      string
		point     Point
		precision int
		expected  string
	}{
		{
			name:      "jutland reference point",
			point:     Point{Lat: 57.64911, Lng: 10.40744},
			precision: 5,
			expected:  "u4pru",
		},
		{
			name:      "origin",
			point:     Point{Lat: 0, Lng: 0},
			precision: 5,
			expected:  "s0000",
		},
		{
			name:      "default precision on zero",
			point:     Point{Lat: 0, Lng: 0},
			precision: 0,
			expected:  "s0000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeRegion(tt.point, tt.precision)
			if got != tt.expected {
				t.Errorf("EncodeRegion() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestEncodeRegionStability verifies nearby points share a coarse cell.
func TestEncodeRegionStability(t *testing.T) {
	a := EncodeRegion(Point{Lat: 40.7580, Lng: -73.9855}, 4)
	b := EncodeRegion(Point{Lat: 40.7614, Lng: -73.9776}, 4)

	if a != b {
		t.Errorf("expected nearby midtown points to share a precision-4 cell: %q vs %q", a, b)
	}
}
