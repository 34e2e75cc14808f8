// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package search is a client for the index search API: proximity lookups by
// coordinate and name lookups narrowed to a city.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jcodagnone/koppel/backend"
	"github.com/jcodagnone/koppel/spatial"
)

const backendName = "search"

// DefaultURL is the search endpoint of a locally running index API.
const DefaultURL = "http://localhost:5001/api/v1/search"

// Hit is a single record returned by the index. Its fields are not interpreted.
type Hit map[string]any

// ResultSet is the decoded answer of a search call.
type ResultSet struct {
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// First returns the first hit, or nil when there are none.
func (r *ResultSet) First() Hit {
	if r == nil || len(r.Hits) == 0 {
		return nil
	}

	return r.Hits[0]
}

// Filter narrows a search the same way for both query paths.
type Filter struct {
	RadiusKm      float64
	ReferenceYear int
	DocTypes      []string
	Indexes       []string
}

func (f *Filter) validate() error {
	if !(f.RadiusKm > 0) {
		return backend.Invalid(backendName, fmt.Sprintf("radius must be positive (got %v)", f.RadiusKm))
	}

	if len(f.DocTypes) == 0 {
		return backend.Invalid(backendName, "at least one document type is required")
	}

	return nil
}

func (f *Filter) encode(params url.Values) {
	if len(f.Indexes) > 0 {
		params.Set("indexes", strings.Join(f.Indexes, ","))
	}

	params.Set("geo_distance", strconv.FormatFloat(f.RadiusKm, 'f', -1, 64)+"km")
	params.Set("reference_year", strconv.Itoa(f.ReferenceYear))
	params.Set("doc_types", strings.Join(f.DocTypes, ","))
}

// GeoQuery searches around a coordinate.
type GeoQuery struct {
	Point spatial.Point
	Filter
}

// TextQuery searches by name within a city.
type TextQuery struct {
	Query string
	City  string
	Filter
}

// Client talks to the search endpoint. It is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a search client. An empty endpoint means DefaultURL and a nil
// httpClient means http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// SearchGeo returns the records within q.RadiusKm of q.Point.
func (c *Client) SearchGeo(ctx context.Context, q GeoQuery) (*ResultSet, error) {
	if err := q.Point.Validate(); err != nil {
		return nil, backend.Invalid(backendName, err.Error())
	}

	if err := q.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("geo_location", q.Point.LatLng())
	q.encode(params)

	return c.get(ctx, params)
}

// SearchText returns the records matching q.Query in q.City.
func (c *Client) SearchText(ctx context.Context, q TextQuery) (*ResultSet, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, backend.Invalid(backendName, "query is empty")
	}

	if err := q.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q.Query)

	if q.City != "" {
		params.Set("city", q.City)
	}

	q.encode(params)

	return c.get(ctx, params)
}

func (c *Client) get(ctx context.Context, params url.Values) (*ResultSet, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, backend.Invalid(backendName, fmt.Sprintf("parsing endpoint <%s>: %v", c.endpoint, err))
	}

	query := u.Query()
	for k, v := range params {
		query[k] = v
	}

	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backend.Invalid(backendName, fmt.Sprintf("creating request: %v", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backend.Unavailable(backendName, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, backend.ClassifyHTTPError(backendName, resp.StatusCode)
	}

	var ret ResultSet
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, backend.Malformed(backendName, err)
	}

	return &ret, nil
}
