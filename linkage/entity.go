// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package linkage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jcodagnone/koppel/spatial"
	"github.com/jcodagnone/koppel/utils/textutils"
)

// Keys accepted for the record list, the name and the position. The Dutch ones
// come from the upload format of the participant lists.
var (
	listKeys     = []string{"deelnemers", "entities"}
	nameKeys     = []string{"naam", "name"}
	positionKeys = []string{"positie", "position"}
)

// InputEntity is a record to be linked. It is not modified once parsed.
type InputEntity struct {
	Name     string
	Position spatial.Point

	// Fields holds the record as it was supplied.
	Fields map[string]any
}

// MarshalJSON echoes the original record when there is one.
func (e *InputEntity) MarshalJSON() ([]byte, error) {
	if e.Fields != nil {
		return json.Marshal(e.Fields)
	}

	return json.Marshal(struct {
		Name     string        `json:"name"`
		Position spatial.Point `json:"position"`
	}{e.Name, e.Position})
}

// utf8BOM is prepended by some spreadsheet exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseDataset reads a JSON dataset. The records are either the top level array or
// an array stored under "deelnemers" or "entities".
func ParseDataset(r io.Reader) ([]*InputEntity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, errors.New("dataset is empty")
	}

	if data[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parsing dataset: %w", err)
		}

		data = nil

		for _, k := range listKeys {
			if v, ok := wrapper[k]; ok {
				data = v

				break
			}
		}

		if data == nil {
			return nil, fmt.Errorf("dataset object has none of the keys %s", strings.Join(listKeys, ", "))
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing dataset records: %w", err)
	}

	ret := make([]*InputEntity, 0, len(records))

	var errs []error

	for i, rec := range records {
		e, err := newInputEntity(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))

			continue
		}

		ret = append(ret, e)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return ret, nil
}

func lookup(rec map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

func newInputEntity(rec map[string]any) (*InputEntity, error) {
	if rec == nil {
		return nil, errors.New("record is null")
	}

	v, ok := lookup(rec, nameKeys)
	if !ok {
		return nil, errors.New("name is missing")
	}

	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("name is not a string: %T", v)
	}

	name = textutils.NormalizeName(name)
	if name == "" {
		return nil, errors.New("name is empty")
	}

	v, ok = lookup(rec, positionKeys)
	if !ok {
		return nil, errors.New("position is missing")
	}

	pos, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("position is not an object: %T", v)
	}

	lat, err := toFloat(pos["lat"])
	if err != nil {
		return nil, fmt.Errorf("position lat: %w", err)
	}

	lng, err := toFloat(pos["lng"])
	if err != nil {
		return nil, fmt.Errorf("position lng: %w", err)
	}

	p := spatial.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &InputEntity{Name: name, Position: p, Fields: rec}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
