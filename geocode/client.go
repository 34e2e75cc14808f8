// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves a coordinate to the name of the locality it lies in.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/jcodagnone/koppel/backend"
	"github.com/jcodagnone/koppel/spatial"
)

const backendName = "geocode"

// DefaultURL is the public BAG42 reverse geocoder, which speaks the Google format.
const DefaultURL = "http://bag42.nl/api/v0/geocode/json"

// localityType marks the address component holding the city or town.
const localityType = "locality"

// ReverseGeocoder resolves a point to a locality name.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p spatial.Point) (string, error)
}

// Client queries a Google compatible reverse geocoding endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new reverse geocoding client. The key is optional.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geocodeResponse struct {
	Results []struct {
		AddressComponents []addressComponent `json:"address_components"`
		FormattedAddress  string             `json:"formatted_address"`
	} `json:"results"`
	Status string `json:"status"` // OK, ZERO_RESULTS, etc. Not every provider sends it.
}

// locality returns the long name of the first component typed as a locality,
// scanning results in order.
func (r *geocodeResponse) locality() (string, bool) {
	for _, result := range r.Results {
		for _, c := range result.AddressComponents {
			if slices.Contains(c.Types, localityType) && c.LongName != "" {
				return c.LongName, true
			}
		}
	}

	return "", false
}

// ReverseGeocode returns the locality containing p.
func (g *Client) ReverseGeocode(ctx context.Context, p spatial.Point) (string, error) {
	if err := p.Validate(); err != nil {
		return "", backend.Invalid(backendName, err.Error())
	}

	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", backend.Invalid(backendName, fmt.Sprintf("parsing endpoint <%s>: %v", g.endpoint, err))
	}

	params := u.Query()
	params.Set("latlng", p.LatLng())

	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}

	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", backend.Invalid(backendName, fmt.Sprintf("creating request: %v", err))
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", backend.Unavailable(backendName, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)

		return "", backend.ClassifyHTTPError(backendName, resp.StatusCode)
	}

	var gr geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", backend.Malformed(backendName, err)
	}

	switch gr.Status {
	case "", "OK", "ZERO_RESULTS":
	case "OVER_QUERY_LIMIT":
		return "", &backend.Error{Kind: backend.KindUnavailable, Backend: backendName, Message: "status " + gr.Status}
	default:
		return "", &backend.Error{Kind: backend.KindBackendError, Backend: backendName, Message: "status " + gr.Status}
	}

	name, ok := gr.locality()
	if !ok {
		return "", backend.NoLocality(backendName, p.LatLng())
	}

	return name, nil
}
