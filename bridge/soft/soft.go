// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements a texshare.Bridge in CPU memory.
//
// It is the reference bridge for tests and for hosts without a GPU: textures
// are byte slices, shared handles are process-local table keys, and copies
// complete when their fence retires. With WithDeferredRetire fences stay
// pending until RetireAll, which lets callers observe copies in flight.
//
// Importing the package registers the bridge as texshare.BridgeSoft.
package soft

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/internal/vram"
)

func init() {
	texshare.RegisterBridge(texshare.BridgeSoft, func() (texshare.Bridge, error) {
		return New(), nil
	})
}

// firstHandle is the first OS handle value handed out. Handles advance by
// four, mirroring kernel handle tables.
const firstHandle texshare.OSHandle = 0x1000

// Option configures a Bridge.
type Option func(*Bridge)

// WithDeferredRetire keeps fences pending until RetireAll or RetireNext.
func WithDeferredRetire() Option {
	return func(b *Bridge) { b.deferred = true }
}

// WithBudget limits the memory of allocated textures to maxMB megabytes.
func WithBudget(maxMB int) Option {
	return func(b *Bridge) { b.budget = vram.New(maxMB) }
}

// Stats counts bridge activity.
type Stats struct {
	Allocated int // live textures from Allocate
	Exported  int // live shared handles
	Copies    uint64
	Pending   int // fences not yet retired

	// UseAfterFree counts copies that landed in a texture already freed.
	// It stays zero as long as callers keep textures alive until the
	// copy's fence retires.
	UseAfterFree uint64

	VRAM vram.Stats
}

// Bridge is a CPU-memory texshare.Bridge.
//
// Bridge is safe for concurrent use.
type Bridge struct {
	mu       sync.Mutex
	epoch    texshare.DeviceEpoch
	deferred bool
	budget   *vram.Budget

	next      texshare.OSHandle
	exports   map[texshare.OSHandle]*Texture
	allocated map[*Texture]struct{}
	pending   []*fence
	failNext  error

	copies       uint64
	useAfterFree uint64

	log atomic.Pointer[slog.Logger]
}

var _ texshare.Bridge = (*Bridge)(nil)

// New creates a software bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		next:      firstHandle,
		exports:   make(map[texshare.OSHandle]*Texture),
		allocated: make(map[*Texture]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.budget == nil {
		b.budget = vram.New(vram.DefaultMaxMemoryMB)
	}
	b.log.Store(texshare.Logger())
	return b
}

// Name returns texshare.BridgeSoft.
func (b *Bridge) Name() string { return texshare.BridgeSoft }

// SetLogger sets the bridge logger. Called when texshare.SetLogger propagates.
func (b *Bridge) SetLogger(l *slog.Logger) {
	if l == nil {
		l = texshare.Logger()
	}
	b.log.Store(l)
}

// Epoch returns the device epoch.
func (b *Bridge) Epoch() uint64 { return b.epoch.Load() }

// LoseDevice simulates a device reset: every texture from Allocate and
// every pending fence becomes invalid. Allocation works again right away,
// as if the host had already recreated its device.
func (b *Bridge) LoseDevice() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch.Lose()
}

// FailNextAllocation makes the next Allocate fail with err.
func (b *Bridge) FailNextAllocation(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// Allocate creates a zeroed shareable texture.
func (b *Bridge) Allocate(desc texshare.Descriptor) (texshare.Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failNext; err != nil {
		b.failNext = nil
		return nil, err
	}

	tex := newTexture(desc.Width, desc.Height, desc.Format)
	tex.epoch = b.epoch.Load()
	tex.owned = true
	if err := b.budget.Reserve(tex, desc.SizeBytes()); err != nil {
		return nil, fmt.Errorf("%w: %w", texshare.ErrAllocationFailure, err)
	}
	b.allocated[tex] = struct{}{}

	b.log.Load().Debug("soft: texture allocated", "descriptor", desc.String())
	return tex, nil
}

// ExportAsShared assigns tex a process-local shared handle.
func (b *Bridge) ExportAsShared(t texshare.Texture, desc texshare.Descriptor) (texshare.OSHandle, error) {
	if !desc.Format.Shareable() {
		return 0, fmt.Errorf("%w: %s", texshare.ErrUnsupportedFormat, desc.Format)
	}
	tex, ok := t.(*Texture)
	if !ok || !tex.owned {
		return 0, fmt.Errorf("soft: export of a texture not allocated by this bridge")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tex.epoch != b.epoch.Load() {
		return 0, fmt.Errorf("%w: texture from epoch %d", texshare.ErrDeviceLost, tex.epoch)
	}
	if tex.handle != 0 {
		return tex.handle, nil
	}
	h := b.next
	b.next += 4
	tex.handle = h
	b.exports[h] = tex
	return h, nil
}

// ImportShared opens a handle exported by this bridge. The returned texture
// aliases the exported pixels; freeing it leaves the export alive.
func (b *Bridge) ImportShared(h texshare.OSHandle, desc texshare.Descriptor) (texshare.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.exports[h]
	if !ok {
		return nil, fmt.Errorf("%w: no export with handle %#x", texshare.ErrUnknownSender, uint64(h))
	}
	if src.epoch != b.epoch.Load() {
		return nil, fmt.Errorf("%w: handle %#x from epoch %d", texshare.ErrDeviceLost, uint64(h), src.epoch)
	}
	if !src.descriptor().SameShape(desc) {
		return nil, fmt.Errorf("%w: handle %#x is %s, want %s",
			texshare.ErrDescriptorMismatch, uint64(h), src.descriptor(), desc)
	}
	return &Texture{
		width:  src.width,
		height: src.height,
		format: src.format,
		store:  src.store,
		epoch:  src.epoch,
		handle: h,
	}, nil
}

// CopyInto records a copy of src into dst. The pixels are read now and
// written when the fence retires.
func (b *Bridge) CopyInto(dst, src texshare.Texture) (texshare.CopyFence, error) {
	if err := texshare.CheckCopy(dst, src); err != nil {
		return nil, err
	}
	d, ok := dst.(*Texture)
	if !ok {
		return nil, fmt.Errorf("soft: destination %T is not a soft texture", dst)
	}
	s, ok := src.(*Texture)
	if !ok {
		return nil, fmt.Errorf("soft: source %T is not a soft texture", src)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	epoch := b.epoch.Load()
	for _, t := range []*Texture{d, s} {
		if t.deviceBound() && t.epoch != epoch {
			return nil, fmt.Errorf("%w: texture from epoch %d", texshare.ErrDeviceLost, t.epoch)
		}
	}

	s.store.mu.RLock()
	snapshot := append([]byte(nil), s.store.pix...)
	s.store.mu.RUnlock()

	f := &fence{bridge: b, dst: d, pix: snapshot, epoch: epoch}
	b.copies++
	if !b.deferred {
		f.signaled = true
	}
	b.pending = append(b.pending, f)
	return f, nil
}

// Free releases a texture from Allocate or ImportShared.
func (b *Bridge) Free(t texshare.Texture) {
	tex, ok := t.(*Texture)
	if !ok || tex == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tex.freed {
		return
	}
	tex.freed = true
	if !tex.owned {
		return
	}
	tex.store.mu.Lock()
	tex.store.freed = true
	tex.store.mu.Unlock()
	if tex.handle != 0 {
		delete(b.exports, tex.handle)
	}
	delete(b.allocated, tex)
	b.budget.Release(tex)
}

// RetireAll signals every pending fence.
func (b *Bridge) RetireAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.pending {
		f.signaled = true
	}
}

// RetireNext signals the oldest unsignaled fence and reports whether there
// was one.
func (b *Bridge) RetireNext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.pending {
		if !f.signaled {
			f.signaled = true
			return true
		}
	}
	return false
}

// Stats returns a snapshot of bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := 0
	for _, f := range b.pending {
		if !f.released && !f.landed {
			pending++
		}
	}
	return Stats{
		Allocated:    len(b.allocated),
		Exported:     len(b.exports),
		Copies:       b.copies,
		Pending:      pending,
		UseAfterFree: b.useAfterFree,
		VRAM:         b.budget.Stats(),
	}
}

// forget drops f from the pending list. Caller must hold mu.
func (b *Bridge) forget(f *fence) {
	for i, p := range b.pending {
		if p == f {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// fence is a soft copy waiting to land in dst.
type fence struct {
	bridge   *Bridge
	dst      *Texture
	pix      []byte
	epoch    uint64
	signaled bool
	landed   bool
	released bool
}

// Retired implements texshare.CopyFence.
func (f *fence) Retired() (bool, error) {
	b := f.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if f.landed {
		return true, nil
	}
	if f.epoch != b.epoch.Load() {
		return false, fmt.Errorf("%w: copy queued in epoch %d", texshare.ErrDeviceLost, f.epoch)
	}
	if !f.signaled {
		return false, nil
	}

	st := f.dst.store
	st.mu.Lock()
	if st.freed {
		b.useAfterFree++
		b.log.Load().Warn("soft: copy retired into freed texture")
	} else {
		copy(st.pix, f.pix)
	}
	st.mu.Unlock()
	f.landed = true
	f.pix = nil
	return true, nil
}

// Release implements texshare.CopyFence.
func (f *fence) Release() {
	b := f.bridge
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	f.pix = nil
	b.forget(f)
}
