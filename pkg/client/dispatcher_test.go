// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestDispatcherMultipleHandlers(t *testing.T) {
	d := NewDispatcher()
	var first, second int
	d.On("chat-message", func(json.RawMessage) { first++ })
	d.On("chat-message", func(json.RawMessage) { second++ })
	d.On("user-typing", func(json.RawMessage) { t.Error("wrong event dispatched") })

	d.Dispatch("chat-message", nil)
	if first != 1 || second != 1 {
		t.Fatalf("handlers fired %d/%d times, want 1/1", first, second)
	}
}

func TestDispatcherOffIsIdempotent(t *testing.T) {
	d := NewDispatcher()
	var fired int
	sub := d.On("notification", func(json.RawMessage) { fired++ })
	keep := d.On("notification", func(json.RawMessage) {})

	d.Off(sub)
	d.Off(sub)
	d.Off(Subscription{})

	d.Dispatch("notification", nil)
	if fired != 0 {
		t.Fatalf("removed handler fired %d times", fired)
	}
	if d.HandlerCount("notification") != 1 {
		t.Fatalf("handler count = %d, want 1", d.HandlerCount("notification"))
	}
	d.Off(keep)
}

func TestDispatcherNoAccumulationAcrossCycles(t *testing.T) {
	d := NewDispatcher()
	for i := 0; i < 10; i++ {
		sub := d.On("chat-message", func(json.RawMessage) {})
		d.Dispatch("chat-message", nil)
		d.Off(sub)
	}
	if d.HandlerCount("chat-message") != 0 {
		t.Fatalf("handlers accumulated: %d", d.HandlerCount("chat-message"))
	}
}

func TestDispatcherPayloadDelivery(t *testing.T) {
	d := NewDispatcher()
	var got string
	d.On("chat-message", func(data json.RawMessage) {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("unmarshal payload: %v", err)
			return
		}
		got = payload.Message
	})

	d.Dispatch("chat-message", json.RawMessage(`{"message":"hello"}`))
	if got != "hello" {
		t.Fatalf("payload = %q, want hello", got)
	}
}
