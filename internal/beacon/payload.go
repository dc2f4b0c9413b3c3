// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package beacon

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// MaxFieldLength is the length string values are truncated to when a
// batch is over budget after periodic events were removed.
const MaxFieldLength = 51200

// ErrPayloadTooLarge is returned when a batch cannot be shrunk under the budget.
var ErrPayloadTooLarge = errors.New("beacon: payload exceeds size budget")

// Payload is the JSON body of a beacon POST.
type Payload struct {
	Metadata Metadata        `json:"metadata"`
	Events   []record.Record `json:"events"`
}

// Metadata describes the transmission itself.
type Metadata struct {
	TransmissionTimestamp int64  `json:"transmission_timestamp"`
	RTTMs                 *int64 `json:"rtt_ms,omitempty"`
}

// periodic events are dropped first when a batch is over budget.
func periodic(name event.Name) bool {
	return name == event.Heartbeat || event.IsRequest(name)
}

// createPayload serializes batch. When the body exceeds maxKB it drops
// periodic events, then truncates long strings. It returns the body and
// the number of events it carries. The queued Fields are never modified.
func createPayload(batch []Beacon, nowMs, rttMs int64, maxKB int) ([]byte, int, error) {
	p := Payload{Metadata: Metadata{TransmissionTimestamp: nowMs}}
	if rttMs > 0 {
		p.Metadata.RTTMs = &rttMs
	}

	p.Events = make([]record.Record, 0, len(batch))
	for _, b := range batch {
		p.Events = append(p.Events, b.Fields)
	}
	body, err := marshalWithin(p, maxKB)
	if err == nil || !errors.Is(err, ErrPayloadTooLarge) {
		return body, len(p.Events), err
	}

	p.Events = p.Events[:0]
	for _, b := range batch {
		if !periodic(b.Name) {
			p.Events = append(p.Events, b.Fields)
		}
	}
	body, err = marshalWithin(p, maxKB)
	if err == nil || !errors.Is(err, ErrPayloadTooLarge) {
		return body, len(p.Events), err
	}

	for i, fields := range p.Events {
		p.Events[i] = truncateStrings(fields).(record.Record)
	}
	body, err = marshalWithin(p, maxKB)
	return body, len(p.Events), err
}

func marshalWithin(p Payload, maxKB int) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal beacon payload: %w", err)
	}
	if float64(len(body))/1024 > float64(maxKB) {
		return body, ErrPayloadTooLarge
	}
	return body, nil
}

// truncateStrings returns a copy of v with every string longer than
// MaxFieldLength characters cut to that length, descending into maps and
// slices.
func truncateStrings(v any) any {
	switch t := v.(type) {
	case string:
		return truncate(t)
	case record.Record:
		out := make(record.Record, len(t))
		for k, val := range t {
			out[k] = truncateStrings(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = truncateStrings(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = truncateStrings(val)
		}
		return out
	default:
		return v
	}
}

// truncate cuts s to MaxFieldLength characters without splitting a rune.
func truncate(s string) string {
	if len(s) <= MaxFieldLength || utf8.RuneCountInString(s) <= MaxFieldLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxFieldLength {
			return s[:i]
		}
		n++
	}
	return s
}
