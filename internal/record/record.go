// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package record defines the field map that flows through the telemetry
// pipeline: event payloads, the per-view metric record and outgoing beacons
// are all Records keyed by snake_case field name.
package record

import (
	"math"
	"strconv"
	"strings"
)

// Record maps field names to values. Values are strings, bools, numbers
// (int, int64, float64), nested Records, []any, or nil.
type Record map[string]any

// Clone returns a shallow copy of r. A nil Record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every field of src into r, overwriting existing values.
func (r Record) Merge(src Record) {
	for k, v := range src {
		r[k] = v
	}
}

// DeletePrefix removes every field whose name starts with one of prefixes.
func (r Record) DeletePrefix(prefixes ...string) {
	for k := range r {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				delete(r, k)
				break
			}
		}
	}
}

// Has reports whether key is present with a non-nil value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the value of key if it is a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Bool returns the value of key if it is a bool.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Float returns the value of key coerced to float64. Numeric strings are
// accepted; NaN is treated as absent.
func (r Record) Float(key string) (float64, bool) {
	return ToFloat(r[key])
}

// Int returns the value of key coerced to int64.
func (r Record) Int(key string) (int64, bool) {
	f, ok := ToFloat(r[key])
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// FloatOr returns Float(key) or def when absent.
func (r Record) FloatOr(key string, def float64) float64 {
	if f, ok := r.Float(key); ok {
		return f
	}
	return def
}

// Add increments a numeric field by delta, treating an absent field as zero.
func (r Record) Add(key string, delta float64) float64 {
	v := r.FloatOr(key, 0) + delta
	r[key] = v
	return v
}

// ToFloat coerces a field value to float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToInt coerces a field value to an integer, truncating fractions.
func ToInt(v any) (int64, bool) {
	f, ok := ToFloat(v)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}
