// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package linkage

import (
	"encoding/json"

	"github.com/jcodagnone/koppel/search"
)

// Status tells matched records apart from the two ways of not matching.
type Status string

const (
	// StatusMatched a hit was found.
	StatusMatched Status = "matched"
	// StatusNoResult every backend answered, none had a hit.
	StatusNoResult Status = "no_result"
	// StatusError a backend failed before a decision could be made.
	StatusError Status = "error"
)

// Source is the query path that produced the match.
type Source string

const (
	SourceGeo  Source = "geo"
	SourceText Source = "text"
)

// Outcome is the result of linking one InputEntity.
type Outcome struct {
	Origin   *InputEntity
	Match    search.Hit
	Status   Status
	Source   Source
	Locality string
	Err      error
}

// Matched reports whether the outcome carries a match.
func (o *Outcome) Matched() bool {
	return o.Status == StatusMatched
}

// MarshalJSON renders the outcome for API and CLI consumers.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	var errMsg string
	if o.Err != nil {
		errMsg = o.Err.Error()
	}

	return json.Marshal(struct {
		Origin   *InputEntity `json:"origin"`
		Match    search.Hit   `json:"match"`
		Status   Status       `json:"status"`
		Source   Source       `json:"source,omitempty"`
		Locality string       `json:"locality,omitempty"`
		Error    string       `json:"error,omitempty"`
	}{o.Origin, o.Match, o.Status, o.Source, o.Locality, errMsg})
}

// Metrics tallies the outcomes of a batch.
type Metrics struct {
	Total       int `json:"total"`
	Matched     int `json:"matched"`
	MatchedGeo  int `json:"matched_geo"`
	MatchedText int `json:"matched_text"`
	NoResult    int `json:"no_result"`
	Errors      int `json:"errors"`
}

// Merge combines two Metrics.
func (m *Metrics) Merge(o *Metrics) *Metrics {
	if o == nil {
		return m
	}

	m.Total += o.Total
	m.Matched += o.Matched
	m.MatchedGeo += o.MatchedGeo
	m.MatchedText += o.MatchedText
	m.NoResult += o.NoResult
	m.Errors += o.Errors

	return m
}

func (m *Metrics) add(o *Outcome) {
	m.Total++

	switch o.Status {
	case StatusMatched:
		m.Matched++

		if o.Source == SourceGeo {
			m.MatchedGeo++
		} else {
			m.MatchedText++
		}
	case StatusNoResult:
		m.NoResult++
	default:
		m.Errors++
	}
}

// Summarize tallies outcomes.
func Summarize(outcomes []*Outcome) Metrics {
	var m Metrics

	for _, o := range outcomes {
		if o != nil {
			m.add(o)
		}
	}

	return m
}
