// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements a texshare.Bridge on the gogpu/wgpu HAL.
//
// The bridge borrows the host's device: hand it any provider exposing
// HalDevice() any and HalQueue() any (a gogpu application does). Shared
// textures are plain HAL textures created with copy and sampling usage;
// their native handle is what gets published. Copies are recorded into
// their own command buffer and submitted with a fence that the publisher
// polls without blocking.
//
// Device loss is detected on submit and fence wait, or reported by the host
// through MarkDeviceLost. Either way the device epoch advances and every
// shared texture becomes invalid. After the host recreated its device it
// calls SetDeviceProvider and then texshare.Service.Recover.
//
// Importing a handle is limited to handles exported by this bridge; opening
// another process's memory needs platform external-memory extensions the
// HAL does not expose, so foreign handles fail with ErrImportUnsupported.
package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/internal/vram"
)

// ErrNoDevice is returned when the bridge has no device provider.
var ErrNoDevice = errors.New("wgpu: no device provider")

var (
	defaultProviderMu sync.Mutex
	defaultProvider   any
)

func init() {
	texshare.RegisterBridge(texshare.BridgeWGPU, func() (texshare.Bridge, error) {
		defaultProviderMu.Lock()
		p := defaultProvider
		defaultProviderMu.Unlock()
		if p == nil {
			return nil, fmt.Errorf("%w: call wgpu.SetDefaultProvider first", ErrNoDevice)
		}
		return New(p)
	})
}

// SetDefaultProvider sets the provider used by texshare.NewBridge("wgpu")
// and texshare.DefaultBridge.
func SetDefaultProvider(provider any) {
	defaultProviderMu.Lock()
	defer defaultProviderMu.Unlock()
	defaultProvider = provider
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithBudget limits the memory of shared textures to maxMB megabytes.
func WithBudget(maxMB int) Option {
	return func(b *Bridge) { b.budget = vram.New(maxMB) }
}

// Bridge is a HAL-backed texshare.Bridge.
//
// Bridge is safe for concurrent use.
type Bridge struct {
	mu      sync.Mutex
	gpu     gpu
	epoch   texshare.DeviceEpoch
	budget  *vram.Budget
	exports map[texshare.OSHandle]*Texture
	labels  uint64
	log     atomic.Pointer[slog.Logger]
}

var _ texshare.Bridge = (*Bridge)(nil)

// New creates a bridge on the device of provider.
func New(provider any, opts ...Option) (*Bridge, error) {
	g, err := newHALGPU(provider)
	if err != nil {
		return nil, err
	}
	return newBridge(g, opts...), nil
}

func newBridge(g gpu, opts ...Option) *Bridge {
	b := &Bridge{
		gpu:     g,
		exports: make(map[texshare.OSHandle]*Texture),
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

// Name returns texshare.BridgeWGPU.
func (b *Bridge) Name() string { return texshare.BridgeWGPU }

// SetLogger sets the logger for the bridge.
// Called by texshare.SetLogger to propagate logging configuration.
func (b *Bridge) SetLogger(l *slog.Logger) {
	if l == nil {
		l = texshare.Logger()
	}
	b.log.Store(l)
}

// Epoch returns the device epoch.
func (b *Bridge) Epoch() uint64 { return b.epoch.Load() }

// MarkDeviceLost invalidates every shared texture. Hosts call it when the
// device reports loss through a path the bridge does not see.
func (b *Bridge) MarkDeviceLost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loseLocked()
}

// SetDeviceProvider switches the bridge to a new device, typically after
// device loss. Textures of the previous device become invalid.
func (b *Bridge) SetDeviceProvider(provider any) error {
	g, err := newHALGPU(provider)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpu = g
	b.loseLocked()
	return nil
}

// loseLocked advances the epoch and forgets every export. Caller must hold mu.
func (b *Bridge) loseLocked() {
	epoch := b.epoch.Lose()
	b.log.Load().Debug("wgpu: exports dropped", "epoch", epoch, "count", len(b.exports))
	clear(b.exports)
}

// Allocate creates a shared texture on the current device.
func (b *Bridge) Allocate(desc texshare.Descriptor) (texshare.Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.gpu == nil {
		return nil, ErrNoDevice
	}
	b.labels++
	label := fmt.Sprintf("texshare_shared_%d", b.labels)

	raw, err := b.gpu.createTexture(label, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", texshare.ErrAllocationFailure, err)
	}
	tex := &Texture{
		raw:    raw,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		epoch:  b.epoch.Load(),
		owned:  true,
	}
	if err := b.budget.Reserve(tex, desc.SizeBytes()); err != nil {
		b.gpu.destroyTexture(raw)
		return nil, fmt.Errorf("%w: %w", texshare.ErrAllocationFailure, err)
	}

	b.log.Load().Debug("wgpu: shared texture created", "label", label, "descriptor", desc.String())
	return tex, nil
}

// ExportAsShared returns the native handle of a texture from Allocate.
func (b *Bridge) ExportAsShared(t texshare.Texture, desc texshare.Descriptor) (texshare.OSHandle, error) {
	if !desc.Format.Shareable() {
		return 0, fmt.Errorf("%w: %s", texshare.ErrUnsupportedFormat, desc.Format)
	}
	tex, ok := t.(*Texture)
	if !ok || !tex.owned {
		return 0, fmt.Errorf("wgpu: export of a texture not allocated by this bridge")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tex.epoch != b.epoch.Load() {
		return 0, fmt.Errorf("%w: texture from epoch %d", texshare.ErrDeviceLost, tex.epoch)
	}
	if tex.handle != 0 {
		return tex.handle, nil
	}
	h := texshare.OSHandle(tex.raw.NativeHandle())
	if h == 0 {
		return 0, fmt.Errorf("%w: backend exposes no native handle for %s", texshare.ErrUnsupportedFormat, desc.Format)
	}
	tex.handle = h
	b.exports[h] = tex
	return h, nil
}

// ImportShared opens a handle exported by this bridge.
func (b *Bridge) ImportShared(h texshare.OSHandle, desc texshare.Descriptor) (texshare.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.exports[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %#x was not exported by this device", texshare.ErrImportUnsupported, uint64(h))
	}
	if src.width != desc.Width || src.height != desc.Height || src.format != desc.Format {
		return nil, fmt.Errorf("%w: handle %#x is %dx%d %s, want %s",
			texshare.ErrDescriptorMismatch, uint64(h), src.width, src.height, src.format, desc)
	}
	return &Texture{
		raw:    src.raw,
		width:  src.width,
		height: src.height,
		format: src.format,
		epoch:  src.epoch,
		handle: h,
	}, nil
}

// CopyInto submits a copy of src into dst.
func (b *Bridge) CopyInto(dst, src texshare.Texture) (texshare.CopyFence, error) {
	if err := texshare.CheckCopy(dst, src); err != nil {
		return nil, err
	}
	d, ok := dst.(*Texture)
	if !ok {
		return nil, fmt.Errorf("wgpu: destination %T is not a wgpu texture", dst)
	}
	s, ok := src.(*Texture)
	if !ok {
		return nil, fmt.Errorf("wgpu: source %T is not a wgpu texture", src)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	epoch := b.epoch.Load()
	for _, t := range []*Texture{d, s} {
		if (t.owned || t.handle != 0) && t.epoch != epoch {
			return nil, fmt.Errorf("%w: texture from epoch %d", texshare.ErrDeviceLost, t.epoch)
		}
	}
	if b.gpu == nil {
		return nil, ErrNoDevice
	}

	p, err := b.gpu.submitCopy(d.raw, s.raw, d.width, d.height)
	if err != nil {
		if errors.Is(err, texshare.ErrDeviceLost) {
			b.loseLocked()
		}
		return nil, err
	}
	return &fence{bridge: b, p: p, epoch: epoch}, nil
}

// Free destroys a texture from Allocate. Imports and wrapped textures are
// only forgotten.
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
	if tex.handle != 0 && b.exports[tex.handle] == tex {
		delete(b.exports, tex.handle)
	}
	b.budget.Release(tex)
	if tex.epoch == b.epoch.Load() && b.gpu != nil {
		b.gpu.destroyTexture(tex.raw)
	}
}

// Stats returns the memory held by shared textures.
func (b *Bridge) Stats() vram.Stats { return b.budget.Stats() }

// fence tracks one submitted copy.
type fence struct {
	bridge   *Bridge
	p        pending
	epoch    uint64
	done     bool
	released bool
}

// Retired implements texshare.CopyFence.
func (f *fence) Retired() (bool, error) {
	b := f.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if f.done {
		return true, nil
	}
	if f.epoch != b.epoch.Load() {
		return false, fmt.Errorf("%w: copy submitted in epoch %d", texshare.ErrDeviceLost, f.epoch)
	}
	ok, err := f.p.poll()
	if err != nil {
		b.loseLocked()
		return false, err
	}
	f.done = ok
	return ok, nil
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
	// Fences of a lost device died with it.
	if f.epoch == b.epoch.Load() {
		f.p.free()
	}
}
