// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package geo provides distance math and address geocoding.

Geocoding is optional enrichment: callers log and ignore Geocode errors.

	g := geo.NewNominatim(cfg.GeocoderURL)
	p, err := g.Geocode(ctx, "City Hospital, Pune")

Near queries prefilter with BoundingBox and then sort by Distance.
*/
package geo
