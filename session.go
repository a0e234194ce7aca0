// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SessionState is the lifecycle state of a Session.
type SessionState uint8

const (
	// StateUninitialized is a session whose shared texture is not created yet.
	StateUninitialized SessionState = iota

	// StateActive is a session backed by a live shared texture.
	StateActive

	// StateSuspended is a session whose device was lost. It publishes
	// nothing until Service.Recover recreates its shared texture.
	StateSuspended

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateActive:
		return "Active"
	case StateSuspended:
		return "Suspended"
	case StateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// Session is the host-facing handle of one named sender. It owns no GPU
// state; the Registry owns the shared texture and the Publisher does the
// per-frame work. Sessions are created and mutated through a Service.
//
// Session getters are safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	id    uint64
	name  SenderName
	desc  Descriptor
	state SessionState

	published atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
	lastFrame atomic.Uint64
}

// ID returns a process-unique session id. It survives renames.
func (s *Session) ID() uint64 { return s.id }

// Name returns the current sender name.
func (s *Session) Name() SenderName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Descriptor returns the descriptor of the current shared texture.
func (s *Session) Descriptor() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Published returns the number of frames whose copy completed.
func (s *Session) Published() uint64 { return s.published.Load() }

// Dropped returns the number of frames dropped because the previous copy
// was still in flight.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Skipped returns the number of frames lost to a per-frame failure.
func (s *Session) Skipped() uint64 { return s.skipped.Load() }

// LastFrame returns the freshness counter written for the last completed copy.
func (s *Session) LastFrame() uint64 { return s.lastFrame.Load() }

// String returns a debug description of the session.
func (s *Session) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("Session[%s %s %s]", s.name, s.desc, s.state)
}

func (s *Session) activate(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = h.name
	s.desc = h.desc
	s.state = StateActive
}

func (s *Session) suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActive {
		s.state = StateSuspended
		Logger().Warn("texshare: session suspended", "sender", string(s.name))
	}
}

// destroy marks the session destroyed and reports whether it was not already.
func (s *Session) destroy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return false
	}
	s.state = StateDestroyed
	return true
}

// usable returns the error a publish or resize on s must fail with, if any.
func (s *Session) usable() error {
	switch s.State() {
	case StateDestroyed:
		return ErrSessionDestroyed
	case StateSuspended:
		return ErrDeviceLost
	case StateUninitialized:
		return ErrUnknownSender
	}
	return nil
}
