// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/tracker"
)

// StateProvider is the read-only view of the player the monitor polls
// before handling each tracked event. Calls must return immediately.
type StateProvider interface {
	// PlayheadTime returns the content playhead in milliseconds.
	PlayheadTime() (float64, bool)
	// StateData returns player and video fields to merge into the view.
	StateData() record.Record
	// AdData returns the ad state while an ad is loaded.
	AdData() (record.Record, bool)
}

// NopState reports nothing. It is used when no provider is given.
type NopState struct{}

func (NopState) PlayheadTime() (float64, bool) { return 0, false }
func (NopState) StateData() record.Record      { return nil }
func (NopState) AdData() (record.Record, bool) { return nil, false }

// EmitTranslator rewrites an outgoing record. Returning false drops it.
type EmitTranslator func(name event.Name, fields record.Record) (record.Record, bool)

// StateDataTranslator rewrites the provider's state data before merging.
type StateDataTranslator func(record.Record) record.Record

// Hooks are optional callbacks applied along the pipeline.
type Hooks struct {
	ErrorTranslator     tracker.ErrorTranslator
	EmitTranslator      EmitTranslator
	StateDataTranslator StateDataTranslator
}
