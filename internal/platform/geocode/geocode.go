// Package geocode resolves postal addresses to coordinates through the
// Google Maps Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

const endpoint = "https://maps.googleapis.com/maps/api/geocode/json"

type Client struct {
	apiKey string
	client *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves address to a position. It returns an error when the key
// is missing, the call fails, or no result matches.
func (c *Client) Geocode(ctx context.Context, address string) (*fhir.Position, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("geocoding api key is not configured")
	}
	if address == "" {
		return nil, fmt.Errorf("address is empty")
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if body.Status != "OK" || len(body.Results) == 0 {
		return nil, fmt.Errorf("no geocode result for address (status %s)", body.Status)
	}

	loc := body.Results[0].Geometry.Location
	return &fhir.Position{Latitude: loc.Lat, Longitude: loc.Lng}, nil
}
