// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"sync"

	"github.com/goccy/go-json"
)

// Handler consumes the raw JSON payload of a named realtime event.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler. Zero value is invalid.
type Subscription struct {
	event string
	id    uint64
}

// Dispatcher is a named-event handler registry. Multiple handlers may be
// registered per event; Off removes exactly the handler its token names and
// is a no-op when the token was already removed.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]map[uint64]Handler)}
}

// On registers handler for event and returns a token for later removal.
func (d *Dispatcher) On(event string, handler Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	set, ok := d.handlers[event]
	if !ok {
		set = make(map[uint64]Handler)
		d.handlers[event] = set
	}
	set[d.nextID] = handler
	return Subscription{event: event, id: d.nextID}
}

// Off removes the handler named by sub. Removing an absent or already
// removed subscription is a no-op.
func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.handlers[sub.event]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(d.handlers, sub.event)
	}
}

// Dispatch invokes every handler registered for event with data. Handlers
// run synchronously on the caller's goroutine; invocation order across
// handlers is unspecified.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers[event]))
	for _, h := range d.handlers[event] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}

// HandlerCount reports the number of handlers registered for event.
func (d *Dispatcher) HandlerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}
