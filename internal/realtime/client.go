// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter gives each client a monotonically increasing id so the
// hub can iterate members in a stable order.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
// It carries the authenticated identity attached at upgrade time.
type Client struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	claims *auth.Claims
	send   chan wire.Envelope

	// rooms is this client's membership set; guarded by hub.mu.
	rooms map[string]bool
}

// NewClient wraps an upgraded connection for the given identity.
func NewClient(hub *Hub, conn *websocket.Conn, claims *auth.Claims, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		claims: claims,
		send:   make(chan wire.Envelope, sendBuffer),
		rooms:  make(map[string]bool),
	}
}

// Start begins the read and write pumps. The client registers itself with
// the hub and joins its per-user room for directed notification pushes.
func (c *Client) Start() {
	c.hub.Register <- c
	c.hub.Join(c, wire.UserRoom(c.claims.UserID))
	go c.writePump()
	go c.readPump()
}

// readPump parses inbound envelopes and routes them. It exits on any read
// error, unregistering the client exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("set read deadline failed")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Debug().Err(err).Msg("discarding malformed envelope")
			continue
		}
		c.handle(env, raw)
	}
}

// handle routes one inbound envelope. Payloads are re-decoded from the raw
// bytes because Envelope.Data is decoded generically.
func (c *Client) handle(env wire.Envelope, raw []byte) {
	switch env.Event {
	case wire.EventJoinRoom:
		var p struct {
			Data wire.RoomRef `json:"data"`
		}
		if json.Unmarshal(raw, &p) == nil {
			c.hub.Join(c, p.Data.Room)
		}

	case wire.EventLeaveRoom:
		var p struct {
			Data wire.RoomRef `json:"data"`
		}
		if json.Unmarshal(raw, &p) == nil {
			c.hub.Leave(c, p.Data.Room)
		}

	case wire.EventChatMessage:
		var p struct {
			Data wire.ChatMessage `json:"data"`
		}
		if json.Unmarshal(raw, &p) != nil || p.Data.ProjectID == "" {
			return
		}
		// The server stamps sender identity and time; clients cannot forge
		// either.
		msg := p.Data
		msg.UserID = c.claims.UserID
		msg.Username = c.claims.Username
		msg.Timestamp = time.Now().UTC()
		c.hub.BroadcastRoom(wire.ProjectRoom(msg.ProjectID), wire.Envelope{
			Event: wire.EventChatMessage,
			Data:  msg,
		}, nil)

	case wire.EventUserTyping:
		var p struct {
			Data wire.TypingStart `json:"data"`
		}
		if json.Unmarshal(raw, &p) != nil || p.Data.ProjectID == "" {
			return
		}
		// Typing is rebroadcast with the sender identity and never echoed
		// back to the sender.
		c.hub.BroadcastRoom(wire.ProjectRoom(p.Data.ProjectID), wire.Envelope{
			Event: wire.EventUserTyping,
			Data: wire.TypingBroadcast{
				UserID:   c.claims.UserID,
				Username: c.claims.Username,
			},
		}, c)

	case wire.EventMarkNotificationRead:
		var p struct {
			Data wire.MarkNotificationRead `json:"data"`
		}
		if json.Unmarshal(raw, &p) != nil || p.Data.NotificationID == "" {
			return
		}
		if c.hub.markRead != nil {
			c.hub.markRead(context.Background(), c.claims.UserID, p.Data.NotificationID)
		}

	default:
		logging.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

// writePump forwards hub envelopes to the connection and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				logging.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
