// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/danielhkuo/real-hero/models"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Nominatim geocodes through an OpenStreetMap Nominatim server.
type Nominatim struct {
	client *resty.Client
}

func NewNominatim(baseURL string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Real-Hero-Backend")

	return &Nominatim{client: client}
}

// Geocode returns the first hit for query.
func (n *Nominatim) Geocode(ctx context.Context, query string) (models.GeoPoint, error) {
	var hits []nominatimHit
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"q":      query,
			"limit":  "1",
		}).
		SetResult(&hits).
		Get("/search")
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("geocode request failed: %w", err)
	}
	if resp.IsError() {
		return models.GeoPoint{}, fmt.Errorf("geocode request failed: status %d", resp.StatusCode())
	}
	if len(hits) == 0 {
		return models.GeoPoint{}, ErrNoResults
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid latitude %q: %w", hits[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid longitude %q: %w", hits[0].Lon, err)
	}

	p := models.GeoPoint{Lat: lat, Lng: lng}
	if !Valid(p) {
		return models.GeoPoint{}, fmt.Errorf("geocoder returned out-of-range point %v", p)
	}
	return p, nil
}
