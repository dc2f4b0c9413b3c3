// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package event names the playback events understood by the telemetry
// pipeline and classifies them (sent, flushed, request, internal).
package event

import "strings"

// Name is a playback event name. Phase names are formed by prefixing
// "before" or "after" to a Name, for example "beforeplay" and "aftererror".
type Name string

// Lifecycle events.
const (
	ViewInit    Name = "viewinit"
	ViewStart   Name = "viewstart"
	ViewEnd     Name = "viewend"
	PlayerReady Name = "playerready"
)

// Playback events reported by the player.
const (
	Play               Name = "play"
	Pause              Name = "pause"
	Playing            Name = "playing"
	Seeking            Name = "seeking"
	Seeked             Name = "seeked"
	TimeUpdate         Name = "timeupdate"
	Ended              Name = "ended"
	Error              Name = "error"
	Waiting            Name = "waiting"
	RateChange         Name = "ratechange"
	RenditionChange    Name = "renditionchange"
	OrientationChange  Name = "orientationchange"
	PlaybackModeChange Name = "playbackmodechange"
)

// Rebuffer events, synthesized by the rebuffer trackers.
const (
	RebufferStart Name = "rebufferstart"
	RebufferEnd   Name = "rebufferend"
)

// Ad events.
const (
	AdRequest       Name = "adrequest"
	AdResponse      Name = "adresponse"
	AdBreakStart    Name = "adbreakstart"
	AdPlay          Name = "adplay"
	AdPlaying       Name = "adplaying"
	AdPause         Name = "adpause"
	AdFirstQuartile Name = "adfirstquartile"
	AdMidpoint      Name = "admidpoint"
	AdThirdQuartile Name = "adthirdquartile"
	AdEnded         Name = "adended"
	AdBreakEnd      Name = "adbreakend"
	AdError         Name = "aderror"
	AdClicked       Name = "adclicked"
	AdSkipped       Name = "adskipped"
)

// Network request events.
const (
	RequestCompleted Name = "requestcompleted"
	RequestFailed    Name = "requestfailed"
	RequestCanceled  Name = "requestcanceled"
)

// Internal events.
const (
	// Heartbeat is the periodic beacon sent when nothing else has been sent.
	Heartbeat            Name = "hb"
	PlaybackHeartbeat    Name = "playbackheartbeat"
	PlaybackHeartbeatEnd Name = "playbackheartbeatend"
	DeviceSleep          Name = "devicesleep"
	DeviceWake           Name = "devicewake"
	// RateExceeded marks the point where the dispatcher queue overflowed.
	RateExceeded Name = "eventrateexceeded"
)

// BeforeAll is the phase emitted before every event.
const BeforeAll Name = "before*"

// Before returns the before-phase name of n.
func Before(n Name) Name { return "before" + n }

// After returns the after-phase name of n.
func After(n Name) Name { return "after" + n }

// IsPhase reports whether n is a before/after phase name rather than an event.
func IsPhase(n Name) bool {
	s := string(n)
	return n == BeforeAll || strings.HasPrefix(s, "before") || (strings.HasPrefix(s, "after") && s != "after")
}

var sent = map[Name]bool{
	PlayerReady: true, ViewStart: true, ViewEnd: true,
	Play: true, Pause: true, Playing: true, Seeking: true, Seeked: true,
	Ended: true, Error: true, RenditionChange: true, OrientationChange: true,
	PlaybackModeChange: true, RebufferStart: true, RebufferEnd: true,
	AdRequest: true, AdResponse: true, AdBreakStart: true, AdPlay: true,
	AdPlaying: true, AdPause: true, AdFirstQuartile: true, AdMidpoint: true,
	AdThirdQuartile: true, AdEnded: true, AdBreakEnd: true, AdError: true,
	AdClicked: true, AdSkipped: true,
	RequestCompleted: true, RequestFailed: true, RequestCanceled: true,
	Heartbeat: true,
}

// Sent reports whether n is transmitted as a beacon once handled.
func Sent(n Name) bool { return sent[n] }

// Refreshed returns every event whose before phase pulls fresh player state.
func Refreshed() []Name {
	names := make([]Name, 0, len(sent)+6)
	for n := range sent {
		names = append(names, n)
	}
	return append(names, TimeUpdate, Waiting, RateChange, PlaybackHeartbeat, PlaybackHeartbeatEnd, DeviceWake)
}

// Flushes reports whether sending n should flush the dispatcher queue immediately.
func Flushes(n Name) bool {
	switch n {
	case ViewStart, Error, Ended, ViewEnd:
		return true
	}
	return false
}

// IsRequest reports whether n is a network request event.
func IsRequest(n Name) bool {
	switch n {
	case RequestCompleted, RequestFailed, RequestCanceled:
		return true
	}
	return false
}
