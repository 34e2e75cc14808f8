// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"
	"strconv"

	"github.com/uber/h3-go/v4"
)

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// LatLng renders the point the way search and geocoding endpoints expect it: "lat,lng".
// Coordinates keep their full precision.
func (p Point) LatLng() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Validate checks that the point is a finite coordinate on Earth.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("spatial: coordinate is not a finite number: %s", p.LatLng())
	}

	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("spatial: latitude must be between -90 and 90 (got %f)", p.Lat)
	}

	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("spatial: longitude must be between -180 and 180 (got %f)", p.Lng)
	}

	return nil
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("converting %s to h3 cell at res %d: %w", p.LatLng(), res, err)
	}

	return cell, nil
}
