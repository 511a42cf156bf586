// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package client is the Harmonia client SDK: the realtime session with
// room-scoped chat, typing indicators and notification push, plus the
// resilient HTTP transport and the playback interaction classifier.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// URL is the websocket endpoint, e.g. "wss://api.harmonia.fm/api/v1/ws".
	URL string

	// Token supplies the bearer credential for the handshake. Called on
	// every dial so a refreshed token is picked up automatically.
	Token func() string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Logger zerolog.Logger
}

// Session owns the single shared realtime connection for a client process.
// Consumers acquire and release it; the websocket is dialed on the first
// acquire and closed when the last interest is released. Inbound events are
// fanned out through an embedded dispatcher.
type Session struct {
	cfg SessionConfig

	mu        sync.Mutex
	refs      int
	conn      *websocket.Conn
	connected bool
	readDone  chan struct{}

	writeMu sync.Mutex

	statusMu   sync.Mutex
	statusSubs map[uint64]func(connected bool)
	nextStatus uint64

	dispatcher *Dispatcher
	rooms      *roomSet
}

// NewSession builds a Session; no connection is made until Acquire.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	s := &Session{
		cfg:        cfg,
		statusSubs: make(map[uint64]func(bool)),
		dispatcher: NewDispatcher(),
	}
	s.rooms = newRoomSet(func(event, room string) error {
		return s.Emit(event, wire.RoomRef{Room: room})
	})
	return s
}

// Acquire registers one interest in the shared connection, dialing it on
// the first call. Every successful Acquire must be paired with one Release.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.refs > 0 {
		s.refs++
		s.mu.Unlock()
		return nil
	}
	err := s.dialLocked(ctx)
	if err == nil {
		s.refs = 1
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notifyStatus(true)
	return nil
}

// Release drops one interest. When the last interest goes the connection is
// closed and room state is forgotten. Releasing below zero is a no-op.
func (s *Session) Release() {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	done := s.readDone
	s.conn = nil
	s.rooms.reset()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (s *Session) dialLocked(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != nil {
		if token := s.cfg.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial realtime: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial realtime: %w", err)
	}
	s.conn = conn
	s.connected = true
	s.readDone = make(chan struct{})
	go s.readLoop(conn, s.readDone)
	return nil
}

// Connected reports the current status flag. Reconnection is not attempted
// here; a disconnect is only observable through this flag and OnStatus.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnStatus registers fn for connect/disconnect transitions and returns an
// unsubscribe function. The unsubscribe is safe to call more than once; only
// the first call removes the registration.
func (s *Session) OnStatus(fn func(connected bool)) func() {
	s.statusMu.Lock()
	s.nextStatus++
	id := s.nextStatus
	s.statusSubs[id] = fn
	s.statusMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.statusMu.Lock()
			delete(s.statusSubs, id)
			s.statusMu.Unlock()
		})
	}
}

// notifyStatus fans the transition out to OnStatus subscribers. Called
// without any session lock held so callbacks may re-enter the Session.
func (s *Session) notifyStatus(connected bool) {
	s.statusMu.Lock()
	subs := make([]func(bool), 0, len(s.statusSubs))
	for _, fn := range s.statusSubs {
		subs = append(subs, fn)
	}
	s.statusMu.Unlock()
	for _, fn := range subs {
		fn(connected)
	}
}

// On registers handler for inbound events named event.
func (s *Session) On(event string, handler Handler) Subscription {
	return s.dispatcher.On(event, handler)
}

// Off removes a registration made with On. Idempotent.
func (s *Session) Off(sub Subscription) {
	s.dispatcher.Off(sub)
}

// Emit writes one event envelope to the server.
func (s *Session) Emit(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("emit %s: not connected", event)
	}

	// gorilla/websocket allows one concurrent writer.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(wire.Envelope{Event: event, Data: data})
}

// JoinRoom registers interest in room. The join announcement goes out only
// when this is the first interest in that room.
func (s *Session) JoinRoom(room string) {
	s.rooms.acquire(room)
}

// LeaveRoom releases one interest in room, announcing the leave when no
// interest remains.
func (s *Session) LeaveRoom(room string) {
	s.rooms.release(room)
}

// SendChat sends a chat message to a project room.
func (s *Session) SendChat(projectID, message string) error {
	return s.Emit(wire.EventChatMessage, wire.ChatMessage{
		ProjectID: projectID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// SendTyping announces that the current user is typing in a project room.
func (s *Session) SendTyping(projectID string) error {
	return s.Emit(wire.EventUserTyping, wire.TypingStart{ProjectID: projectID})
}

// MarkNotificationRead announces a read notification to the server.
func (s *Session) MarkNotificationRead(notificationID string) error {
	return s.Emit(wire.EventMarkNotificationRead, wire.MarkNotificationRead{
		NotificationID: notificationID,
	})
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	logger := s.cfg.Logger

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			intentional := s.conn == nil
			s.connected = false
			s.mu.Unlock()
			s.notifyStatus(false)
			if !intentional {
				logger.Warn().Err(err).Msg("realtime connection lost")
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			logger.Debug().Err(err).Msg("discarding malformed realtime frame")
			continue
		}
		s.dispatcher.Dispatch(env.Event, env.Data)
	}
}
