// Package geo provides geographic primitives for distance computation and
// coarse region bucketing used by search and rank caching.
package geo

import (
	"math"
	"strings"
)

// EarthRadiusMeters is the mean earth radius used for haversine distance.
const EarthRadiusMeters = 6371000.0

// Point represents a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within WGS84 coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters returns the great-circle distance between two points in meters
// using the haversine formula.
func DistanceMeters(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BoundingBox describes a latitude/longitude rectangle used to pre-filter
// candidates before exact haversine distance is applied.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBoxAround returns a bounding box that fully contains the circle of
// radiusMeters around origin. Latitude bounds are clamped to the poles; when
// the box crosses a pole the longitude range degenerates to the full range.
func BoundingBoxAround(origin Point, radiusMeters float64) BoundingBox {
	if radiusMeters < 0 {
		radiusMeters = 0
	}

	latDelta := radiusMeters / EarthRadiusMeters * 180 / math.Pi

	box := BoundingBox{
		MinLat: origin.Lat - latDelta,
		MaxLat: origin.Lat + latDelta,
	}

	if box.MinLat <= -90 || box.MaxLat >= 90 {
		// Pole crossing: longitude filtering is meaningless here.
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		box.MinLng = -180
		box.MaxLng = 180
		return box
	}

	lngDelta := latDelta / math.Cos(origin.Lat*math.Pi/180)
	box.MinLng = origin.Lng - lngDelta
	box.MaxLng = origin.Lng + lngDelta
	return box
}

// Contains reports whether the point falls inside the bounding box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// RegionPrecision is the geohash precision used for rank-cache region keys.
// Five characters is roughly a 5km cell, matching typical search radii.
const RegionPrecision = 5

// base32 is the geohash base32 alphabet (excludes a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeRegion encodes a point into a geohash cell key at the given precision.
// Region keys namespace cached static ranks so hot cells can be invalidated
// independently.
func EncodeRegion(p Point, precision int) string {
	if precision < 1 {
		precision = RegionPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var cell strings.Builder
	cell.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for cell.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if p.Lng >= mid {
				ch |= 1 << (4 - bits)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if p.Lat >= mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			cell.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return cell.String()
}
