// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"sync"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// roomSet reference-counts interest in room keys. The join announcement is
// emitted only on the 0→1 transition and the leave announcement only on
// 1→0, so several consumers of the same room cause exactly one server-side
// membership.
type roomSet struct {
	mu     sync.Mutex
	counts map[string]int
	emit   func(event, room string) error
}

func newRoomSet(emit func(event, room string) error) *roomSet {
	return &roomSet{
		counts: make(map[string]int),
		emit:   emit,
	}
}

// acquire registers one interest in room and reports whether a join was
// announced.
func (r *roomSet) acquire(room string) bool {
	if room == "" {
		return false
	}
	r.mu.Lock()
	r.counts[room]++
	first := r.counts[room] == 1
	r.mu.Unlock()

	if first {
		_ = r.emit(wire.EventJoinRoom, room)
	}
	return first
}

// release drops one interest in room and reports whether a leave was
// announced. Releasing a room with no recorded interest is a no-op.
func (r *roomSet) release(room string) bool {
	r.mu.Lock()
	count, ok := r.counts[room]
	if !ok {
		r.mu.Unlock()
		return false
	}
	count--
	if count <= 0 {
		delete(r.counts, room)
	} else {
		r.counts[room] = count
	}
	r.mu.Unlock()

	if count <= 0 {
		_ = r.emit(wire.EventLeaveRoom, room)
		return true
	}
	return false
}

// active returns the set of rooms with at least one interest.
func (r *roomSet) active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.counts))
	for room := range r.counts {
		rooms = append(rooms, room)
	}
	return rooms
}

// reset forgets all interests without emitting leaves, for use after the
// underlying connection is gone.
func (r *roomSet) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[string]int)
}
