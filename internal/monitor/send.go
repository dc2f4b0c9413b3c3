// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"fmt"
	"math"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/tracker"
)

// refresh pulls player state and merges the event payload. It runs in the
// before phase of every tracked event.
func (m *Monitor) refresh(_ event.Name, payload record.Record) {
	if head, ok := m.state.PlayheadTime(); ok && !math.IsNaN(head) && !math.IsInf(head, 0) {
		m.data["player_playhead_time"] = int64(math.Round(head))
	}
	if sd := m.stateData(); sd != nil {
		m.data.Merge(sd)
	}
	m.data.Merge(payload)
	sanitize(m.data)
}

func (m *Monitor) stateData() (out record.Record) {
	sd := m.state.StateData()
	if sd == nil || m.hooks.StateDataTranslator == nil {
		return sd
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("state data translator failed, using untranslated data")
			out = sd
		}
	}()
	return m.hooks.StateDataTranslator(sd.Clone())
}

// afterSend runs in the after phase of every sent event.
func (m *Monitor) afterSend(name event.Name, _ record.Record) {
	if m.flags.SuppressSend {
		m.flags.SuppressSend = false
		return
	}
	if name == event.Error && !m.flags.Errored {
		if sev, _ := m.data.String("player_error_severity"); sev == tracker.SeverityWarning {
			m.log.Debug().Msg("warning error not sent while the view has no fatal error")
			return
		}
	}
	if err := m.send(name); err != nil {
		m.log.Debug().Err(err).Str("event", string(name)).Msg("beacon not sent")
	}
}

// send builds the outgoing record for name and hands it to the dispatcher.
func (m *Monitor) send(name event.Name) error {
	if m.disabled {
		return nil
	}
	if !m.viewActive() {
		return ErrNoViewID
	}
	if name == event.Heartbeat {
		m.touchIdentity()
	}

	out := m.data.Clone()
	out["event"] = string(name)
	prepareOutgoing(out)

	if m.hooks.EmitTranslator != nil {
		translated, keep, err := m.translateEmit(name, out)
		switch {
		case err != nil:
			m.log.Error().Err(err).Msg("emit translator failed, sending untranslated record")
		case !keep:
			return nil
		default:
			out = translated
		}
	}

	err := m.sender.Send(name, out, clock.NowMillis(m.clock))
	m.increment("view_sequence_number")
	m.increment("player_sequence_number")

	switch {
	case name == event.ViewEnd:
		delete(m.data, "view_id")
		m.stopHeartbeat()
	case !event.IsRequest(name):
		m.restartHeartbeat()
	}
	return err
}

func (m *Monitor) translateEmit(name event.Name, out record.Record) (res record.Record, keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, keep, err = out, true, fmt.Errorf("emit translator panic: %v", r)
		}
	}()
	res, keep = m.hooks.EmitTranslator(name, out.Clone())
	if res == nil {
		keep = false
	}
	return res, keep, nil
}

func (m *Monitor) increment(key string) {
	n, _ := m.data.Int(key)
	m.data[key] = n + 1
}
