// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/persist"
	"github.com/tomtom215/viewbeacon/internal/record"
)

var (
	// ErrUnknownPlayer is returned for a player id with no monitor.
	ErrUnknownPlayer = errors.New("monitor: unknown player")

	// ErrDuplicatePlayer is returned when a player id is already monitored.
	ErrDuplicatePlayer = errors.New("monitor: player already monitored")
)

// Manager is a registry of monitors keyed by player id. Monitors created
// through it share its identity store, so every player on a page reports
// the same viewer and session.
type Manager struct {
	mu       sync.Mutex
	deps     Deps
	monitors map[string]*Monitor
}

// NewManager creates a registry whose monitors are built from deps. State
// and Hooks in deps act as defaults for Monitor. Without a Store, the
// manager keeps identity in memory for all of its monitors.
func NewManager(deps Deps) *Manager {
	if deps.Store == nil {
		c := deps.Clock
		if c == nil {
			c = clock.New()
		}
		deps.Store = persist.NewMemoryStore(c)
	}
	return &Manager{deps: deps, monitors: make(map[string]*Monitor)}
}

// Monitor starts monitoring player id. A nil state falls back to the
// manager default.
func (mg *Manager) Monitor(id string, opts config.Options, state StateProvider, hooks *Hooks) (*Monitor, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, ok := mg.monitors[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
	}

	deps := mg.deps
	if state != nil {
		deps.State = state
	}
	if hooks != nil {
		deps.Hooks = *hooks
	}
	m, err := New(id, opts, deps)
	if err != nil {
		return nil, fmt.Errorf("monitor %s: %w", id, err)
	}
	mg.monitors[id] = m
	return m, nil
}

// Get returns the monitor for id.
func (mg *Manager) Get(id string) (*Monitor, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	m, ok := mg.monitors[id]
	return m, ok
}

// Emit forwards an event to the monitor for id.
func (mg *Manager) Emit(id string, name event.Name, data record.Record) error {
	m, ok := mg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if m.isDestroyed() {
		return fmt.Errorf("%w: %s", ErrDestroyed, id)
	}
	m.Emit(name, data)
	return nil
}

// Destroy stops and removes the monitor for id.
func (mg *Manager) Destroy(id string, unloading bool) error {
	mg.mu.Lock()
	m, ok := mg.monitors[id]
	delete(mg.monitors, id)
	mg.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	m.Destroy(unloading)
	return nil
}

// DestroyAll stops every monitor, as on page unload.
func (mg *Manager) DestroyAll(unloading bool) {
	mg.mu.Lock()
	monitors := mg.monitors
	mg.monitors = make(map[string]*Monitor)
	mg.mu.Unlock()

	for _, m := range monitors {
		m.Destroy(unloading)
	}
}

// Len returns the number of monitored players.
func (mg *Manager) Len() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.monitors)
}
