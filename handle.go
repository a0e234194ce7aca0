// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"fmt"
	"sync/atomic"
)

// Handle is a live shared texture owned by the Registry.
//
// A Handle never changes after creation: a resize produces a new Handle with
// a higher generation and retires the old one. Release of the backing GPU
// memory is idempotent and happens exactly once, either immediately on
// retirement or, when a copy into it is still in flight, once that copy's
// fence retires.
type Handle struct {
	name   SenderName
	desc   Descriptor
	os     OSHandle
	tex    Texture
	epoch  uint64
	bridge Bridge

	// guarded by Registry.mu
	pins   int
	doomed bool

	released atomic.Bool
}

// Name returns the sender name the handle was registered under.
func (h *Handle) Name() SenderName { return h.name }

// Descriptor returns the immutable descriptor of the handle.
func (h *Handle) Descriptor() Descriptor { return h.desc }

// OSHandle returns the value consumers use to open the shared memory.
func (h *Handle) OSHandle() OSHandle { return h.os }

// Texture returns the bridge texture backing the handle.
func (h *Handle) Texture() Texture { return h.tex }

// Epoch returns the device epoch the handle was created in.
func (h *Handle) Epoch() uint64 { return h.epoch }

// Released reports whether the GPU memory has been released.
func (h *Handle) Released() bool { return h.released.Load() }

// Valid reports whether the handle is unreleased and from the bridge's
// current device epoch.
func (h *Handle) Valid() bool {
	return !h.released.Load() && h.epoch == h.bridge.Epoch()
}

// release frees the backing texture. Safe to call more than once.
func (h *Handle) release() {
	if h.released.Swap(true) {
		return
	}
	h.bridge.Free(h.tex)
	Logger().Debug("texshare: shared texture released",
		"sender", string(h.name), "generation", h.desc.Generation)
}

// String returns a debug description of the handle.
func (h *Handle) String() string {
	status := "live"
	if h.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("Handle[%s %s os=%#x epoch=%d %s]", h.name, h.desc, uint64(h.os), h.epoch, status)
}
