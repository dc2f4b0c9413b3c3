// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"time"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/eventbus"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/tracker"
)

// host is the tracker.Host view of a Monitor. Its methods are only called
// from handlers and timers, with m.mu held.
type host struct {
	m *Monitor
}

var _ tracker.Host = (*host)(nil)

func (h *host) On(name event.Name, fn eventbus.Handler) eventbus.Handle {
	return h.m.bus.On(name, fn)
}

func (h *host) One(name event.Name, fn eventbus.Handler) eventbus.Handle {
	return h.m.bus.One(name, fn)
}

func (h *host) Emit(name event.Name, data record.Record) { h.m.emit(name, data) }
func (h *host) Data() record.Record                      { return h.m.data }
func (h *host) State() *tracker.State                    { return &h.m.flags }
func (h *host) Now() int64                               { return clock.NowMillis(h.m.clock) }
func (h *host) AdData() (record.Record, bool)            { return h.m.state.AdData() }
func (h *host) Log() *logging.Limited                    { return h.m.log }
func (h *host) EndView()                                 { h.m.endView() }
func (h *host) ResetView(keepPrefixes ...string)         { h.m.resetView(keepPrefixes...) }

// AfterFunc runs f under the monitor lock unless the monitor has been
// destroyed by then.
func (h *host) AfterFunc(d time.Duration, f func()) clock.Timer {
	m := h.m
	return m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.destroyed {
			return
		}
		f()
	})
}
