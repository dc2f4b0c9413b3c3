// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package eventbus provides the synchronous, phase-ordered event bus that
// connects a player integration to the metric trackers.
//
// Emit(name) runs four handler lists in order:
//
//	before<name>  ->  before*  ->  <name>  ->  after<name>
//
// Each list is copied before it runs, so handlers added or removed during
// dispatch take effect on the next Emit. Handlers run on the caller's
// goroutine; a panic in a handler propagates to the caller of Emit.
//
// The bus does no locking of its own. Its owner serializes access.
package eventbus

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Handler receives the event name (not the phase name) and its payload.
type Handler func(name event.Name, data record.Record)

// Handle identifies one subscription. The zero Handle matches nothing.
type Handle struct {
	name event.Name
	id   uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an event bus. The zero value is not usable; call New.
type Bus struct {
	handlers map[event.Name][]subscription
	nextID   uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[event.Name][]subscription)}
}

// On subscribes h to name. Name may be a phase name such as
// event.Before(event.Play) or event.BeforeAll.
func (b *Bus) On(name event.Name, h Handler) Handle {
	b.nextID++
	b.handlers[name] = append(b.handlers[name], subscription{id: b.nextID, handler: h})
	return Handle{name: name, id: b.nextID}
}

// One subscribes h to name for a single invocation.
func (b *Bus) One(name event.Name, h Handler) Handle {
	var handle Handle
	handle = b.On(name, func(n event.Name, data record.Record) {
		b.Off(handle)
		h(n, data)
	})
	return handle
}

// Off removes the subscription identified by handle. It reports whether a
// subscription was removed.
func (b *Bus) Off(handle Handle) bool {
	subs := b.handlers[handle.name]
	for i, s := range subs {
		if s.id != handle.id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, handle.name)
		} else {
			b.handlers[handle.name] = next
		}
		return true
	}
	return false
}

// Reset removes every subscription.
func (b *Bus) Reset() {
	b.handlers = make(map[event.Name][]subscription)
}

// Len returns the number of subscriptions for name.
func (b *Bus) Len(name event.Name) int {
	return len(b.handlers[name])
}

// Emit dispatches name with payload data through all four phases.
func (b *Bus) Emit(name event.Name, data record.Record) {
	if data == nil {
		data = record.Record{}
	}
	b.dispatch(event.Before(name), name, data)
	b.dispatch(event.BeforeAll, name, data)
	b.dispatch(name, name, data)
	b.dispatch(event.After(name), name, data)
}

func (b *Bus) dispatch(phase, name event.Name, data record.Record) {
	subs := b.handlers[phase]
	if len(subs) == 0 {
		return
	}
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	for _, s := range snapshot {
		s.handler(name, data)
	}
}
