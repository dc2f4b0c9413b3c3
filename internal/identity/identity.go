// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package identity keeps the anonymous viewer id, the sampling number and
// the sliding viewing session in a single persisted slot.
//
// The slot is serialized as a URL query string:
//
//	mux_viewer_id=...&mux_sample_number=0.42&session_id=...&session_start=...&session_expires=...
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/persist"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// SlotKey is the store key holding the serialized identity.
const SlotKey = "viewbeacon"

const (
	// ViewerTTL is how long an idle viewer id survives.
	ViewerTTL = 365 * 24 * time.Hour
	// SessionTTL is the sliding session window.
	SessionTTL = 15 * time.Minute
)

// Identity is a snapshot of the persisted viewer and session state.
// Timestamps are milliseconds since the Unix epoch.
type Identity struct {
	ViewerID       string
	SampleNumber   float64
	SessionID      string
	SessionStart   int64
	SessionExpires int64
}

// Fields returns the identity as view record fields.
func (id Identity) Fields() record.Record {
	return record.Record{
		"mux_viewer_id":     id.ViewerID,
		"mux_sample_number": id.SampleNumber,
		"session_id":        id.SessionID,
		"session_start":     id.SessionStart,
		"session_expires":   id.SessionExpires,
	}
}

func (id Identity) encode() string {
	v := url.Values{}
	v.Set("mux_viewer_id", id.ViewerID)
	v.Set("mux_sample_number", strconv.FormatFloat(id.SampleNumber, 'f', -1, 64))
	v.Set("session_id", id.SessionID)
	v.Set("session_start", strconv.FormatInt(id.SessionStart, 10))
	v.Set("session_expires", strconv.FormatInt(id.SessionExpires, 10))
	return v.Encode()
}

func decode(s string) (Identity, error) {
	v, err := url.ParseQuery(s)
	if err != nil {
		return Identity{}, fmt.Errorf("parse identity slot: %w", err)
	}
	id := Identity{
		ViewerID:  v.Get("mux_viewer_id"),
		SessionID: v.Get("session_id"),
	}
	// Missing or malformed numbers are regenerated by the caller.
	id.SampleNumber, _ = strconv.ParseFloat(v.Get("mux_sample_number"), 64)
	id.SessionStart, _ = strconv.ParseInt(v.Get("session_start"), 10, 64)
	id.SessionExpires, _ = strconv.ParseInt(v.Get("session_expires"), 10, 64)
	return id, nil
}

// Manager loads, refreshes and saves the identity slot.
type Manager struct {
	store persist.Store
	clock clock.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a Manager over store.
// DETERMINISM: a non-zero seed makes generated sample numbers reproducible.
func NewManager(store persist.Store, c clock.Clock, seed int64) *Manager {
	if c == nil {
		c = clock.New()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		store: store,
		clock: c,
		//nolint:gosec // G404: sampling does not need a cryptographic source
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Touch returns the current identity, creating the viewer or starting a new
// session as needed, and slides the session expiry forward.
func (m *Manager) Touch(ctx context.Context) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id Identity
	raw, err := m.store.Get(ctx, SlotKey)
	switch {
	case err == nil:
		if id, err = decode(raw); err != nil {
			id = Identity{}
		}
	case !errors.Is(err, persist.ErrNotFound):
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}

	now := clock.NowMillis(m.clock)
	if id.ViewerID == "" {
		id.ViewerID = uuid.NewString()
	}
	if id.SampleNumber <= 0 || id.SampleNumber >= 1 {
		id.SampleNumber = m.rng.Float64()
	}
	if id.SessionID == "" || id.SessionExpires <= now {
		id.SessionID = uuid.NewString()
		id.SessionStart = now
	}
	id.SessionExpires = now + SessionTTL.Milliseconds()

	if err := m.store.Set(ctx, SlotKey, id.encode(), ViewerTTL); err != nil {
		return id, fmt.Errorf("save identity: %w", err)
	}
	return id, nil
}
