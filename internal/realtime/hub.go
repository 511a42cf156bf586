// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package realtime implements the room-scoped publish/subscribe layer:
// one websocket per client session, server-side broadcast scopes keyed by
// entity id, chat fan-out, typing rebroadcast, and notification push.
package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/metrics"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// MarkReadFunc applies a mark-notification-read signal for a user.
// Failures are absorbed: read-state is an optimistic projection.
type MarkReadFunc func(ctx context.Context, userID, notificationID string)

// Hub maintains the set of connected clients and their room memberships,
// and fans out envelopes to broadcast scopes.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	// rooms maps a room key to the member set.
	rooms map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	broadcast  chan roomMessage

	markRead MarkReadFunc
}

// roomMessage targets one room; exclude suppresses echo to the sender.
type roomMessage struct {
	room    string
	env     wire.Envelope
	exclude *Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
	}
}

// SetMarkRead installs the notification read-state callback. Must be called
// before the hub serves clients.
func (h *Hub) SetMarkRead(fn MarkReadFunc) {
	h.markRead = fn
}

// RunWithContext processes client lifecycle and broadcasts until the
// context is canceled, then closes all clients and returns ctx.Err().
// Designed for suture supervision: a restart re-enters with a clean select
// loop over the same channels.
//
// Lifecycle events take priority over broadcasts so membership state is
// consistent before any message is delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.TrackRealtimeConnection(true)
	logging.Info().
		Str("user_id", c.claims.UserID).
		Int("total_clients", total).
		Msg("realtime client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()
	metrics.TrackRealtimeConnection(false)
	logging.Info().
		Str("user_id", c.claims.UserID).
		Int("total_clients", total).
		Msg("realtime client disconnected")
}

// Join adds the client to a room's member set.
func (h *Hub) Join(c *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	if members[c] {
		return
	}
	members[c] = true
	c.rooms[room] = true
	logging.Debug().
		Str("room", room).
		Str("user_id", c.claims.UserID).
		Int("members", len(members)).
		Msg("client joined room")
}

// Leave removes the client from a room's member set. Idempotent.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// leaveLocked removes membership; caller holds h.mu.
func (h *Hub) leaveLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok || !members[c] {
		return
	}
	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	logging.Debug().
		Str("room", room).
		Str("user_id", c.claims.UserID).
		Msg("client left room")
}

// BroadcastRoom queues an envelope for every member of a room. exclude, when
// non-nil, suppresses delivery to that client (typing echo suppression).
// Drops the message when the hub's queue is full rather than blocking the
// caller.
func (h *Hub) BroadcastRoom(room string, env wire.Envelope, exclude *Client) {
	select {
	case h.broadcast <- roomMessage{room: room, env: env, exclude: exclude}:
	default:
		logging.Warn().Str("room", room).Str("event", env.Event).Msg("broadcast queue full, dropping message")
	}
}

// deliver fans a message out to the room's members in client-id order.
// Ordered iteration keeps delivery deterministic for a given member set.
func (h *Hub) deliver(msg roomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[msg.room]
	if len(members) == 0 {
		return
	}
	metrics.RecordBroadcast(msg.env.Event)

	ordered := make([]*Client, 0, len(members))
	for c := range members {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	var stalled []*Client
	for _, c := range ordered {
		if c == msg.exclude {
			continue
		}
		select {
		case c.send <- msg.env:
		default:
			stalled = append(stalled, c)
		}
	}

	// A client with a full queue is dropped rather than allowed to stall
	// everyone else in the room.
	for _, c := range stalled {
		delete(h.clients, c)
		for room := range c.rooms {
			h.leaveLocked(c, room)
		}
		close(c.send)
		metrics.RecordDroppedClient()
		metrics.TrackRealtimeConnection(false)
		logging.Warn().Str("user_id", c.claims.UserID).Msg("dropping stalled realtime client")
	}
}

// RoomSize returns the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes every client and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		metrics.TrackRealtimeConnection(false)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	logging.Info().
		Str("component", "realtime-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", count).
		Msg("realtime hub stopped")
}
