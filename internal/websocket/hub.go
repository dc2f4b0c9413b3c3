// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package websocket

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Message types
const (
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the frame written to live clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Filter narrows a client to one view or one environment. The zero Filter
// matches every event.
type Filter struct {
	ViewID string
	EnvKey string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e record.Record) bool {
	if f.ViewID != "" {
		if id, _ := e.String("view_id"); id != f.ViewID {
			return false
		}
	}
	if f.EnvKey != "" {
		if key, _ := e.String("env_key"); key != f.EnvKey {
			return false
		}
	}
	return true
}

// Hub fans decoded beacon events out to live websocket clients. It
// implements suture.Service.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan record.Record
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	origins  []string
	done     chan struct{}
	doneOnce sync.Once
}

// NewHub creates a hub accepting upgrades from origins. "*" allows any
// origin; an empty list allows only same-origin and non-browser clients.
func NewHub(origins []string) *Hub {
	return &Hub{
		broadcast:  make(chan record.Record, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		origins:    origins,
		done:       make(chan struct{}),
	}
}

// Serve runs the hub until ctx is canceled, then closes every client.
//
// Lifecycle events are drained before broadcasts so a client registered
// ahead of an event is guaranteed to see it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case e := <-h.broadcast:
			h.broadcastToClients(e)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string { return "live-hub" }

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", n).Msg("live client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", n).Msg("live client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.ClientCount()
	h.mu.Lock()
	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "live-hub").
		Str("reason", reason).
		Int("clients_closed", n).
		Msg("live hub stopped")
}

// sortedClients returns clients in connection order. Caller holds mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers e to every matching client. A client whose
// buffer is full is dropped.
func (h *Hub) broadcastToClients(e record.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{Type: MessageTypeEvent, Data: e}
	var slow []*Client
	for _, client := range h.sortedClients() {
		if !client.filter.Match(e) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
	}
}

// BroadcastEvent queues a decoded event for live clients. It never blocks;
// events are dropped while the queue is full.
func (h *Hub) BroadcastEvent(e record.Record) {
	select {
	case h.broadcast <- e:
	default:
		name, _ := e.String("event")
		logging.Debug().Str("event", name).Msg("live broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades r and registers the connection. The view_id and
// env_key query parameters set the client's filter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("live upgrade failed")
		return
	}

	q := r.URL.Query()
	client := NewClient(h, conn, Filter{ViewID: q.Get("view_id"), EnvKey: q.Get("env_key")})
	select {
	case h.Register <- client:
		client.Start()
	case <-h.done:
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin) {
		return true
	}
	logging.Warn().Str("origin", origin).Msg("live connection rejected: origin not allowed")
	return false
}
