// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package clock abstracts wall-clock reads and one-shot timers so the
// telemetry pipeline can be driven deterministically in tests.
package clock

import "time"

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Real is the Clock backed by package time.
type Real struct{}

// New returns the real clock.
func New() Clock { return Real{} }

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Millis returns t as milliseconds since the Unix epoch, the unit used for
// every timestamp in a view record.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// NowMillis is shorthand for Millis(c.Now()).
func NowMillis(c Clock) int64 { return c.Now().UnixMilli() }
