// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package wire defines the realtime event contract shared by the Harmonia
// server and the client SDK: event names, payload shapes, and room key
// derivation. Payloads are JSON on the wire.
package wire

import (
	"fmt"
	"time"
)

// Event names carried in Envelope.Event. Events are bidirectional unless
// noted otherwise.
const (
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"

	EventChatMessage = "chat-message"

	// EventUserTyping is sent by a client as {projectId} and rebroadcast to
	// room members as {userId, username}.
	EventUserTyping = "user-typing"

	// EventNotification is server push only.
	EventNotification = "notification"

	EventMarkNotificationRead = "mark-notification-read"
)

// Envelope is the framing for every realtime message: an event name plus an
// event-specific JSON payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RoomKey derives the deterministic broadcast scope key for an entity,
// e.g. RoomKey("project", "42") == "project:42".
func RoomKey(kind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

// ProjectRoom is shorthand for the room key of a collaboration project.
func ProjectRoom(projectID string) string {
	return RoomKey("project", projectID)
}

// UserRoom is the per-user room used for directed pushes (notifications).
func UserRoom(userID string) string {
	return RoomKey("user", userID)
}

// RoomRef names a room in join/leave payloads.
type RoomRef struct {
	Room string `json:"room"`
}

// ChatMessage is the chat-message payload.
type ChatMessage struct {
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingStart is the client-to-server user-typing payload.
type TypingStart struct {
	ProjectID string `json:"projectId"`
}

// TypingBroadcast is the server-to-room user-typing payload.
type TypingBroadcast struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Notification is a push-delivered user-facing event.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarkNotificationRead is the mark-notification-read payload.
type MarkNotificationRead struct {
	NotificationID string `json:"notificationId"`
}

// Interaction types accepted by the recommendation signal endpoint.
const (
	InteractionPlay     = "play"
	InteractionLike     = "like"
	InteractionSkip     = "skip"
	InteractionComplete = "complete"
	InteractionShare    = "share"
)

// TrackInteraction is the POST /recommendations/track payload.
// Duration and CompletionRate are only meaningful for skip and complete.
type TrackInteraction struct {
	MusicID         string `json:"musicId" validate:"required"`
	InteractionType string `json:"interactionType" validate:"required,oneof=play like skip complete share"`
	Duration        int    `json:"duration,omitempty" validate:"gte=0"`
	CompletionRate  int    `json:"completionRate,omitempty" validate:"gte=0,lte=100"`
}

// RefreshRequest is the POST /auth/refresh payload.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RefreshResponse carries the new access token (and the rotated refresh
// token, when rotation is enabled server-side).
type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
