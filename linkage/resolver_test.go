// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package linkage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/koppel/backend"
	"github.com/jcodagnone/koppel/search"
	"github.com/jcodagnone/koppel/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements the three backends with canned answers.
type fakeBackend struct {
	mu sync.Mutex

	geo    *search.ResultSet
	geoErr []error // consumed one per call, nil once exhausted

	locality   string
	geocodeErr error

	text    *search.ResultSet
	textErr error

	geoCalls     int
	geocodeCalls int
	textCalls    int
	lastGeo      search.GeoQuery
	lastText     search.TextQuery
}

func (f *fakeBackend) SearchGeo(_ context.Context, q search.GeoQuery) (*search.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.geoCalls++
	f.lastGeo = q

	if len(f.geoErr) > 0 {
		err := f.geoErr[0]
		f.geoErr = f.geoErr[1:]

		if err != nil {
			return nil, err
		}
	}

	return f.geo, nil
}

func (f *fakeBackend) ReverseGeocode(_ context.Context, _ spatial.Point) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.geocodeCalls++

	return f.locality, f.geocodeErr
}

func (f *fakeBackend) SearchText(_ context.Context, q search.TextQuery) (*search.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.textCalls++
	f.lastText = q

	return f.text, f.textErr
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = backend.NoRetry()

	return opts
}

func newTestResolver(f *fakeBackend) *Resolver {
	return NewResolver(f, f, f, testOptions())
}

func lyceum() *InputEntity {
	return &InputEntity{
		Name:     "Lyceum X",
		Position: spatial.Point{Lat: 52.1, Lng: 5.1},
		Fields: map[string]any{
			"naam":    "Lyceum X",
			"positie": map[string]any{"lat": 52.1, "lng": 5.1},
		},
	}
}

var emptySet = &search.ResultSet{Total: 0, Hits: []search.Hit{}}

func TestResolveGeoMatch(t *testing.T) {
	f := &fakeBackend{geo: &search.ResultSet{Total: 1, Hits: []search.Hit{{"id": "a1"}}}}
	e := lyceum()

	got := newTestResolver(f).Resolve(context.Background(), e)

	assert.Same(t, e, got.Origin)
	assert.Equal(t, StatusMatched, got.Status)
	assert.Equal(t, SourceGeo, got.Source)
	assert.Equal(t, search.Hit{"id": "a1"}, got.Match)
	require.NoError(t, got.Err)

	assert.Equal(t, 1, f.geoCalls)
	assert.Equal(t, 0, f.geocodeCalls)
	assert.Equal(t, 0, f.textCalls)

	want := search.GeoQuery{
		Point: spatial.Point{Lat: 52.1, Lng: 5.1},
		Filter: search.Filter{
			RadiusKm:      0.3,
			ReferenceYear: 2014,
			DocTypes:      []string{"vo_branch"},
			Indexes:       []string{"duo2"},
		},
	}
	if diff := cmp.Diff(want, f.lastGeo); diff != "" {
		t.Errorf("geo query mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveFirstHitOfMany(t *testing.T) {
	f := &fakeBackend{geo: &search.ResultSet{Total: 3, Hits: []search.Hit{{"id": "a1"}, {"id": "a2"}, {"id": "a3"}}}}

	got := newTestResolver(f).Resolve(context.Background(), lyceum())
	assert.Equal(t, search.Hit{"id": "a1"}, got.Match)
}

func TestResolveTextFallback(t *testing.T) {
	f := &fakeBackend{
		geo:      emptySet,
		locality: "Utrecht",
		text:     &search.ResultSet{Total: 1, Hits: []search.Hit{{"id": "b2"}}},
	}
	e := lyceum()

	got := newTestResolver(f).Resolve(context.Background(), e)

	assert.Same(t, e, got.Origin)
	assert.Equal(t, StatusMatched, got.Status)
	assert.Equal(t, SourceText, got.Source)
	assert.Equal(t, "Utrecht", got.Locality)
	assert.Equal(t, search.Hit{"id": "b2"}, got.Match)

	assert.Equal(t, 1, f.geocodeCalls)
	assert.Equal(t, 1, f.textCalls)
	assert.Equal(t, "Lyceum X", f.lastText.Query)
	assert.Equal(t, "Utrecht", f.lastText.City)
	assert.InDelta(t, 0.3, f.lastText.RadiusKm, 1e-9)
	assert.Equal(t, 2014, f.lastText.ReferenceYear)
	assert.Equal(t, []string{"vo_branch"}, f.lastText.DocTypes)
}

func TestResolveLocalityPassedVerbatim(t *testing.T) {
	f := &fakeBackend{
		geo:      emptySet,
		locality: "'s-Hertogenbosch & Rosmalen",
		text:     emptySet,
	}

	_ = newTestResolver(f).Resolve(context.Background(), lyceum())
	assert.Equal(t, "'s-Hertogenbosch & Rosmalen", f.lastText.City)
}

func TestResolveNoLocality(t *testing.T) {
	f := &fakeBackend{
		geo:        emptySet,
		geocodeErr: backend.NoLocality("geocode", "52.1,5.1"),
	}
	e := lyceum()

	got := newTestResolver(f).Resolve(context.Background(), e)

	assert.Same(t, e, got.Origin)
	assert.Nil(t, got.Match)
	assert.Equal(t, StatusNoResult, got.Status)
	assert.True(t, backend.IsNoLocality(got.Err))
	assert.Equal(t, 0, f.textCalls)
}

func TestResolveNoResults(t *testing.T) {
	f := &fakeBackend{geo: emptySet, locality: "Utrecht", text: emptySet}

	got := newTestResolver(f).Resolve(context.Background(), lyceum())

	assert.Nil(t, got.Match)
	assert.Equal(t, StatusNoResult, got.Status)
	assert.NoError(t, got.Err)
	assert.Equal(t, "Utrecht", got.Locality)
}

func TestResolveFailures(t *testing.T) {
	unavailable := backend.Unavailable("search", errors.New("connection refused"))

	tests := []struct {
		name         string
		f            *fakeBackend
		geocodeCalls int
		textCalls    int
	}{
		{
			name: "geo search fails",
			f:    &fakeBackend{geoErr: []error{unavailable}},
		},
		{
			name: "geo total without hits",
			f:    &fakeBackend{geo: &search.ResultSet{Total: 2, Hits: []search.Hit{}}},
		},
		{
			name:         "geocode fails",
			f:            &fakeBackend{geo: emptySet, geocodeErr: backend.ClassifyHTTPError("geocode", 500)},
			geocodeCalls: 1,
		},
		{
			name:         "text search fails",
			f:            &fakeBackend{geo: emptySet, locality: "Utrecht", textErr: unavailable},
			geocodeCalls: 1,
			textCalls:    1,
		},
		{
			name:         "text total without hits",
			f:            &fakeBackend{geo: emptySet, locality: "Utrecht", text: &search.ResultSet{Total: 1}},
			geocodeCalls: 1,
			textCalls:    1,
		},
		{
			name: "backend returns nothing",
			f:    &fakeBackend{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := lyceum()
			got := newTestResolver(tt.f).Resolve(context.Background(), e)

			assert.Same(t, e, got.Origin)
			assert.Nil(t, got.Match)
			assert.Equal(t, StatusError, got.Status)
			assert.Error(t, got.Err)
			assert.Equal(t, tt.geocodeCalls, tt.f.geocodeCalls)
			assert.Equal(t, tt.textCalls, tt.f.textCalls)
		})
	}
}

func TestResolveEmptyHitsError(t *testing.T) {
	f := &fakeBackend{geo: &search.ResultSet{Total: 1}}

	got := newTestResolver(f).Resolve(context.Background(), lyceum())
	assert.ErrorIs(t, got.Err, ErrEmptyHits)
}

func TestResolveNilResultSet(t *testing.T) {
	f := &fakeBackend{}

	got := newTestResolver(f).Resolve(context.Background(), lyceum())
	assert.Equal(t, StatusError, got.Status)
	require.ErrorIs(t, got.Err, ErrNoResultSet)
	assert.Contains(t, got.Err.Error(), "geo search")
	assert.Equal(t, 0, f.geocodeCalls)

	f = &fakeBackend{geo: emptySet, locality: "Utrecht"}

	got = newTestResolver(f).Resolve(context.Background(), lyceum())
	assert.Equal(t, StatusError, got.Status)
	require.ErrorIs(t, got.Err, ErrNoResultSet)
	assert.Contains(t, got.Err.Error(), "text search")
	assert.Equal(t, "Utrecht", got.Locality)
	assert.Equal(t, 1, f.textCalls)
}

func TestResolveNilEntity(t *testing.T) {
	got := newTestResolver(&fakeBackend{}).Resolve(context.Background(), nil)
	assert.Equal(t, StatusError, got.Status)
	assert.Nil(t, got.Origin)
}

func TestResolveRetriesUnavailable(t *testing.T) {
	f := &fakeBackend{
		geoErr: []error{backend.Unavailable("search", errors.New("reset")), nil},
		geo:    &search.ResultSet{Total: 1, Hits: []search.Hit{{"id": "a1"}}},
	}

	opts := testOptions()
	opts.Retry = backend.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	got := NewResolver(f, f, f, opts).Resolve(context.Background(), lyceum())
	assert.Equal(t, StatusMatched, got.Status)
	assert.Equal(t, 2, f.geoCalls)
}

func TestResolveIdempotent(t *testing.T) {
	f := &fakeBackend{
		geo:      emptySet,
		locality: "Utrecht",
		text:     &search.ResultSet{Total: 1, Hits: []search.Hit{{"id": "b2"}}},
	}
	r := newTestResolver(f)
	e := lyceum()

	first := r.Resolve(context.Background(), e)
	second := r.Resolve(context.Background(), e)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Resolve() not idempotent (-first +second):\n%s", diff)
	}
}
