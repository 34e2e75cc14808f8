// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package linkage links input entities to records of the search index.
//
// Each entity is looked up by proximity first. Only when that lookup reports
// zero hits the coordinate is reverse geocoded to a locality and the entity
// name is searched within it. The first hit of the path that answered wins.
package linkage

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/jcodagnone/koppel/backend"
	"github.com/jcodagnone/koppel/geocode"
	"github.com/jcodagnone/koppel/search"
)

// ErrEmptyHits is reported when a search claims results but returns none.
var ErrEmptyHits = errors.New("search reported a positive total without hits")

// ErrNoResultSet is reported when a search answers without error and without a result set.
var ErrNoResultSet = errors.New("search returned no result set")

// GeoSearcher looks records up around a coordinate.
type GeoSearcher interface {
	SearchGeo(ctx context.Context, q search.GeoQuery) (*search.ResultSet, error)
}

// TextSearcher looks records up by name within a city.
type TextSearcher interface {
	SearchText(ctx context.Context, q search.TextQuery) (*search.ResultSet, error)
}

// Options configures resolution and batching.
type Options struct {
	// RadiusKm is the proximity radius of both searches
	RadiusKm float64

	// ReferenceYear selects the index snapshot
	ReferenceYear int

	// DocTypes restricts the kind of records returned
	DocTypes []string

	// Indexes to search, empty lets the backend decide
	Indexes []string

	// Retry is applied to every backend call
	Retry backend.RetryPolicy

	// Max number of entities resolved at the same time, 0 means NumCPU
	Concurrency int

	// Show a progress bar on a terminal stderr, log lines otherwise
	ShowProgress bool
}

// DefaultOptions secondary school branches of the 2014 DUO index within 300 metres.
func DefaultOptions() Options {
	return Options{
		RadiusKm:      0.3,
		ReferenceYear: 2014,
		DocTypes:      []string{"vo_branch"},
		Indexes:       []string{"duo2"},
		Retry:         backend.DefaultRetryPolicy(),
		Concurrency:   8,
	}
}

func (o *Options) filter() search.Filter {
	return search.Filter{
		RadiusKm:      o.RadiusKm,
		ReferenceYear: o.ReferenceYear,
		DocTypes:      o.DocTypes,
		Indexes:       o.Indexes,
	}
}

func (o *Options) concurrency() int {
	if o.Concurrency <= 0 {
		return runtime.NumCPU()
	}

	return o.Concurrency
}

// Resolver links a single entity. It keeps no state between calls and is safe
// for concurrent use as long as its backends are.
type Resolver struct {
	geo      GeoSearcher
	text     TextSearcher
	geocoder geocode.ReverseGeocoder
	options  Options
}

// NewResolver creates a resolver over the three backends.
func NewResolver(geo GeoSearcher, text TextSearcher, geocoder geocode.ReverseGeocoder, options Options) *Resolver {
	return &Resolver{
		geo:      geo,
		text:     text,
		geocoder: geocoder,
		options:  options,
	}
}

// Resolve links e to at most one search hit. Failures never escape: they are
// reported through the outcome status.
func (r *Resolver) Resolve(ctx context.Context, e *InputEntity) (ret *Outcome) {
	ret = &Outcome{Origin: e}
	if e == nil {
		return ret.fail(errors.New("nil entity"))
	}

	defer func() {
		if p := recover(); p != nil {
			ret = &Outcome{Origin: e, Status: StatusError, Err: fmt.Errorf("resolving %q: panic: %v", e.Name, p)}
		}
	}()

	filter := r.options.filter()

	geo, err := backend.Retry(ctx, r.options.Retry, "geo search", func() (*search.ResultSet, error) {
		return r.geo.SearchGeo(ctx, search.GeoQuery{Point: e.Position, Filter: filter})
	})
	if err != nil {
		return ret.fail(fmt.Errorf("geo search: %w", err))
	}

	if geo == nil {
		return ret.fail(fmt.Errorf("geo search: %w", ErrNoResultSet))
	}

	if geo.Total != 0 {
		return ret.first(geo, SourceGeo)
	}

	locality, err := backend.Retry(ctx, r.options.Retry, "reverse geocode", func() (string, error) {
		return r.geocoder.ReverseGeocode(ctx, e.Position)
	})
	if err != nil {
		if backend.IsNoLocality(err) {
			ret.Status = StatusNoResult
			ret.Err = err

			return ret
		}

		return ret.fail(fmt.Errorf("reverse geocode: %w", err))
	}

	ret.Locality = locality

	text, err := backend.Retry(ctx, r.options.Retry, "text search", func() (*search.ResultSet, error) {
		return r.text.SearchText(ctx, search.TextQuery{Query: e.Name, City: locality, Filter: filter})
	})
	if err != nil {
		return ret.fail(fmt.Errorf("text search: %w", err))
	}

	if text == nil {
		return ret.fail(fmt.Errorf("text search: %w", ErrNoResultSet))
	}

	if text.Total == 0 && len(text.Hits) == 0 {
		ret.Status = StatusNoResult

		return ret
	}

	return ret.first(text, SourceText)
}

func (o *Outcome) fail(err error) *Outcome {
	o.Status = StatusError
	o.Err = err

	return o
}

// first takes the first hit of a set the backend reported as non-empty.
func (o *Outcome) first(rs *search.ResultSet, src Source) *Outcome {
	hit := rs.First()
	if hit == nil {
		return o.fail(fmt.Errorf("%s search: %w (total %d)", src, ErrEmptyHits, rs.Total))
	}

	o.Status = StatusMatched
	o.Source = src
	o.Match = hit

	return o
}
