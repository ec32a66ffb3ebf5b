// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package geo

import (
	"context"
	"errors"
	"math"

	"github.com/danielhkuo/real-hero/models"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// DonorSearchRadiusMeters is how far from a request donors are alerted.
const DonorSearchRadiusMeters = 50000.0

var ErrNoResults = errors.New("geocoder returned no results")

// Geocoder resolves free-form address text to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.GeoPoint, error)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a lat/lng rectangle used to prefilter near queries in SQL.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box containing every point within meters of center.
// Near the poles the longitude span is widened to the full range.
func BoundingBox(center models.GeoPoint, meters float64) Box {
	dLat := meters / EarthRadiusMeters * 180 / math.Pi
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}

	cos := math.Cos(center.Lat * math.Pi / 180)
	if cos > 1e-6 {
		dLng := dLat / cos
		if dLng < 180 {
			box.MinLng = center.Lng - dLng
			box.MaxLng = center.Lng + dLng
		}
	}
	return box
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p models.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Valid reports whether p is a usable coordinate.
func Valid(p models.GeoPoint) bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
