// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Defaults for the rate limit applied to telemetry diagnostics.
const (
	DefaultLimitedRate  = 10.0
	DefaultLimitedBurst = 20
)

// LimitedConfig configures a Limited logger.
type LimitedConfig struct {
	// Debug lowers the minimum level from warn to debug.
	Debug bool

	// Rate is the sustained number of messages per second. Zero uses DefaultLimitedRate.
	Rate float64

	// Burst is the number of messages allowed at once. Zero uses DefaultLimitedBurst.
	Burst int

	// Base is the logger messages are written to. Nil uses the global
	// logger tagged with component=viewbeacon.
	Base *zerolog.Logger
}

// Limited is a leveled logger for telemetry components. Its minimum level
// is warn unless debug is enabled, and it drops messages above a fixed rate.
// Dropped messages are counted and reported on the next message that gets
// through.
//
// All methods are safe on a nil *Limited and return a nil event, which
// zerolog treats as a no-op.
type Limited struct {
	base       zerolog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// NewLimited builds a Limited logger from cfg.
func NewLimited(cfg LimitedConfig) *Limited {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultLimitedRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultLimitedBurst
	}

	var base zerolog.Logger
	if cfg.Base != nil {
		base = *cfg.Base
	} else {
		base = WithComponent("viewbeacon")
	}

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	return &Limited{
		base:    base.Level(level),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}
}

// Debug starts a debug message, or returns nil when filtered.
func (l *Limited) Debug() *zerolog.Event { return l.event(zerolog.DebugLevel) }

// Info starts an info message, or returns nil when filtered.
func (l *Limited) Info() *zerolog.Event { return l.event(zerolog.InfoLevel) }

// Warn starts a warning message, or returns nil when filtered.
func (l *Limited) Warn() *zerolog.Event { return l.event(zerolog.WarnLevel) }

// Error starts an error message, or returns nil when filtered.
func (l *Limited) Error() *zerolog.Event { return l.event(zerolog.ErrorLevel) }

// Suppressed returns the number of messages dropped since the last
// message that was written.
func (l *Limited) Suppressed() uint64 {
	if l == nil {
		return 0
	}
	return l.suppressed.Load()
}

func (l *Limited) event(level zerolog.Level) *zerolog.Event {
	if l == nil {
		return nil
	}
	if level < l.base.GetLevel() || level < zerolog.GlobalLevel() {
		return nil
	}
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return nil
	}

	e := l.base.WithLevel(level)
	if n := l.suppressed.Swap(0); n > 0 {
		e = e.Uint64("suppressed", n)
	}
	return e
}
