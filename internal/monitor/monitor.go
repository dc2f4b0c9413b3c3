// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package monitor ties the event bus, metric trackers, deduplication and
// beacon dispatch together for one player.
//
// A Monitor owns a single view record. Playback events flow through
// Emit; tracked events pull fresh player state in their before phase,
// trackers update metrics in the main phase, and the after phase sends
// the record as a beacon. All entry points, including timer callbacks,
// are serialized by one mutex.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/beacon"
	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/dedup"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/eventbus"
	"github.com/tomtom215/viewbeacon/internal/identity"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/persist"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/tracker"
)

const (
	// HeartbeatInterval is how long a view may go without a beacon before
	// an hb event is sent.
	HeartbeatInterval = 10 * time.Second

	// APIVersion is reported as mux_api_version.
	APIVersion = "2.1"

	// Version is reported as mux_embed_version.
	Version = "1.0.0"
)

var (
	// ErrNoViewID is returned when a beacon is sent outside a view.
	ErrNoViewID = errors.New("monitor: no active view")

	// ErrDestroyed is returned for operations on a destroyed monitor.
	ErrDestroyed = errors.New("monitor: destroyed")
)

// viewPrefixes are cleared when a new view starts. Player instance fields
// survive.
var viewPrefixes = []string{"view_", "video_", "player_error_", "ad_", "request_"}

// Deps are the collaborators of a Monitor. Every field is optional.
type Deps struct {
	Clock clock.Clock
	State StateProvider
	Hooks Hooks

	// Store persists viewer identity. Without one, a badger store is
	// opened at Options.StoragePath, or identity is kept in memory.
	Store persist.Store

	// Transport delivers beacons. Defaults to HTTP to the beacon URL.
	Transport beacon.Transport

	// Logger is the base logger for SDK messages.
	Logger *zerolog.Logger

	// RandomSeed makes backoff jitter and generated identity reproducible.
	RandomSeed int64
}

// Monitor tracks one player.
type Monitor struct {
	mu sync.Mutex

	id    string
	opts  config.Options
	hooks Hooks
	state StateProvider
	clock clock.Clock
	log   *logging.Limited

	bus      *eventbus.Bus
	data     record.Record
	flags    tracker.State
	trackers *tracker.Set

	identity   *identity.Manager
	ownedStore persist.Store
	dispatcher *beacon.Dispatcher
	sender     *dedup.Sender

	hbTimer    clock.Timer
	hbGen      int
	viewStarts []eventbus.Handle
	paused     bool
	ignoring   bool
	disabled   bool
	destroyed  bool
}

// New creates a monitor for player id and starts its first view.
func New(id string, opts config.Options, deps Deps) (*Monitor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := deps.Clock
	if c == nil {
		c = clock.New()
	}
	st := deps.State
	if st == nil {
		st = NopState{}
	}
	base := deps.Logger
	if base == nil {
		l := logging.WithComponent("monitor").With().Str("player_id", id).Logger()
		base = &l
	}
	log := logging.NewLimited(logging.LimitedConfig{Debug: opts.Debug, Base: base})

	m := &Monitor{
		id:    id,
		opts:  opts,
		hooks: deps.Hooks,
		state: st,
		clock: c,
		log:   log,
		bus:   eventbus.New(),
	}

	store, err := m.openStore(deps.Store)
	if err != nil {
		return nil, err
	}
	m.identity = identity.NewManager(store, c, deps.RandomSeed)

	transport := deps.Transport
	if transport == nil {
		envKey, _ := opts.Data["env_key"].(string)
		transport = beacon.NewHTTPTransport(beacon.HTTPConfig{
			URL: beacon.URL(opts.BeaconDomain, opts.BeaconCollectionDomain, envKey),
		}, log)
	}
	m.dispatcher = beacon.New(beacon.Config{
		MaxQueueLength:         opts.MaxQueueLength,
		MaxBeaconSize:          opts.MaxBeaconSize,
		MaxPayloadKBSize:       opts.MaxPayloadKBSize,
		BaseTimeBetweenBeacons: opts.BaseTimeBetweenBeacons,
		MaxBackoff:             opts.MaxBackoff,
		RandomSeed:             deps.RandomSeed,
	}, transport, c, log)
	m.sender = dedup.NewSender(m.dispatcher, log)

	m.data = record.Record{
		"player_instance_id":     uuid.NewString(),
		"player_sequence_number": int64(1),
		"player_init_time":       clock.NowMillis(c),
		"mux_api_version":        APIVersion,
		"mux_embed_version":      Version,
		"beacon_domain":          opts.BeaconDomain,
	}
	m.data.Merge(opts.Data)
	sanitize(m.data)

	// Send hooks go first so that tracker after-phase cleanup runs once
	// the beacon has been built.
	m.registerHandlers()
	m.trackers = tracker.Attach(&host{m: m}, tracker.Config{
		MinimumRebufferDuration:         config.Millis(opts.MinimumRebufferDuration),
		SustainedRebufferThreshold:      config.Millis(opts.SustainedRebufferThreshold),
		PlaybackHeartbeatTime:           config.Millis(opts.PlaybackHeartbeatTimeMs),
		DisableRebufferTracking:         opts.DisableRebufferTracking,
		DisablePlayheadRebufferTracking: opts.DisablePlayheadRebufferTracking,
		ErrorTranslator:                 deps.Hooks.ErrorTranslator,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applySampling()
	m.emit(event.ViewInit, record.Record(opts.Data).Clone())
	return m, nil
}

func (m *Monitor) openStore(store persist.Store) (persist.Store, error) {
	switch {
	case m.opts.DisableCookies:
		m.ownedStore = persist.NewMemoryStore(m.clock)
	case store != nil:
		return store, nil
	case m.opts.StoragePath != "":
		bs, err := persist.OpenBadgerStore(m.opts.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open identity store: %w", err)
		}
		m.ownedStore = bs
	default:
		m.ownedStore = persist.NewMemoryStore(m.clock)
	}
	return m.ownedStore, nil
}

// applySampling disables sending for unsampled viewers and, when asked
// to, for viewers with Do Not Track set.
func (m *Monitor) applySampling() {
	if m.opts.RespectDoNotTrack && m.opts.DoNotTrack {
		m.disabled = true
		m.log.Info().Msg("do not track is set, beacons disabled")
		return
	}
	id, err := m.identity.Touch(context.Background())
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to load viewer identity")
	}
	if id.SampleNumber >= m.opts.SampleRate {
		m.disabled = true
		m.log.Info().Float64("sample_rate", m.opts.SampleRate).Msg("viewer not sampled, beacons disabled")
	}
}

func (m *Monitor) registerHandlers() {
	for _, name := range event.Refreshed() {
		m.bus.On(event.Before(name), m.refresh)
		if event.Sent(name) {
			m.bus.On(event.After(name), m.afterSend)
		}
	}
	m.bus.On(event.Before(event.ViewInit), m.startView)

	m.bus.On(event.Play, func(event.Name, record.Record) { m.paused = false })
	m.bus.On(event.Playing, func(event.Name, record.Record) {
		m.paused = false
		m.flags.PlayheadProgressing = true
	})
	m.bus.On(event.Pause, func(event.Name, record.Record) {
		m.paused = true
		m.flags.PlayheadProgressing = false
	})
	for _, name := range []event.Name{event.Ended, event.Error, event.ViewEnd} {
		m.bus.On(name, func(event.Name, record.Record) { m.flags.PlayheadProgressing = false })
	}
}

// Emit reports a player event.
func (m *Monitor) Emit(name event.Name, data record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == event.ViewInit && m.viewActive() {
		m.emit(event.ViewEnd, nil)
	}
	m.emit(name, data)
}

// VideoChange ends the current view and starts one for a new video.
func (m *Monitor) VideoChange(data record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeView(data)
}

// ProgramChange starts a new view within the same live stream and resumes
// playback reporting in it.
func (m *Monitor) ProgramChange(data record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		m.log.Warn().Msg("program change reported while paused")
	}
	next := data.Clone()
	next["view_program_changed"] = true
	m.changeView(next)
	m.emit(event.Play, nil)
	m.emit(event.Playing, nil)
}

// PageHidden sends a heartbeat and flushes, dropping the heartbeat if
// nothing else is pending.
func (m *Monitor) PageHidden() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed || !m.viewActive() || m.disabled {
		return
	}
	m.emit(event.Heartbeat, nil)
	m.dispatcher.FlushEvents(true)
}

// Destroy ends the view and stops the monitor. With unloading set,
// remaining beacons are sent without waiting for a response.
func (m *Monitor) Destroy(unloading bool) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	if m.viewActive() {
		m.emit(event.ViewEnd, nil)
	}
	m.stopHeartbeat()
	m.destroyed = true
	m.bus.Reset()
	owned := m.ownedStore
	m.mu.Unlock()

	m.dispatcher.Destroy(unloading)
	if owned != nil {
		if err := owned.Close(); err != nil {
			m.log.Warn().Err(err).Msg("failed to close identity store")
		}
	}
}

// ID returns the player id.
func (m *Monitor) ID() string { return m.id }

// ViewID returns the active view id, or "" between views.
func (m *Monitor) ViewID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := m.data.String("view_id")
	return id
}

// Snapshot returns a copy of the view record.
func (m *Monitor) Snapshot() record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

// Disabled reports whether beacons are suppressed by sampling or Do Not Track.
func (m *Monitor) Disabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabled
}

// Dispatcher exposes the beacon queue, mainly for draining in tests and tools.
func (m *Monitor) Dispatcher() *beacon.Dispatcher { return m.dispatcher }

func (m *Monitor) viewActive() bool {
	id, ok := m.data.String("view_id")
	return ok && id != ""
}

// emit dispatches an event. m.mu must be held.
func (m *Monitor) emit(name event.Name, data record.Record) {
	if m.destroyed || (m.ignoring && name != event.ViewInit) {
		return
	}
	p := data.Clone()
	if _, ok := p.Int("viewer_time"); !ok {
		p["viewer_time"] = clock.NowMillis(m.clock)
	}
	m.bus.Emit(name, p)
}

func (m *Monitor) changeView(data record.Record) {
	if m.viewActive() {
		m.emit(event.ViewEnd, nil)
	}
	m.emit(event.ViewInit, data)
}

// startView resets the record for a new view. It runs in the before
// phase of viewinit, ahead of tracker resets.
func (m *Monitor) startView(_ event.Name, payload record.Record) {
	m.stopHeartbeat()
	m.data.DeletePrefix(viewPrefixes...)
	m.data.Merge(payload)
	sanitize(m.data)
	m.data["view_id"] = uuid.NewString()
	m.data["view_sequence_number"] = int64(1)
	m.ignoring = false
	m.paused = false
	m.sender.Reset()
	m.touchIdentity()
	m.armViewStart()
}

// armViewStart waits for the first play or ad break to mark the view as
// started.
func (m *Monitor) armViewStart() {
	for _, h := range m.viewStarts {
		m.bus.Off(h)
	}
	m.viewStarts = []eventbus.Handle{
		m.bus.One(event.Play, m.viewStart),
		m.bus.One(event.AdBreakStart, m.viewStart),
	}
}

func (m *Monitor) viewStart(_ event.Name, payload record.Record) {
	for _, h := range m.viewStarts {
		m.bus.Off(h)
	}
	m.viewStarts = nil

	at, ok := payload.Int("viewer_time")
	if !ok {
		at = clock.NowMillis(m.clock)
	}
	m.data["view_start"] = at
	m.emit(event.ViewStart, record.Record{"viewer_time": at})
}

func (m *Monitor) touchIdentity() {
	id, err := m.identity.Touch(context.Background())
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to refresh viewer identity")
		return
	}
	m.data.Merge(id.Fields())
}

func (m *Monitor) restartHeartbeat() {
	m.stopHeartbeat()
	gen := m.hbGen
	m.hbTimer = m.clock.AfterFunc(HeartbeatInterval, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.hbGen || !m.viewActive() {
			return
		}
		m.emit(event.Heartbeat, nil)
	})
}

func (m *Monitor) stopHeartbeat() {
	m.hbGen++
	if m.hbTimer != nil {
		m.hbTimer.Stop()
		m.hbTimer = nil
	}
}

// endView sends viewend and drops events until the next viewinit.
func (m *Monitor) endView() {
	m.emit(event.ViewEnd, nil)
	m.ignoring = true
}

// resetView ends the view and starts another carrying over fields with
// the given prefixes.
func (m *Monitor) resetView(keepPrefixes ...string) {
	kept := record.Record{}
	for k, v := range m.data {
		for _, p := range keepPrefixes {
			if strings.HasPrefix(k, p) {
				kept[k] = v
				break
			}
		}
	}
	m.changeView(kept)
}

func (m *Monitor) isDestroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}
