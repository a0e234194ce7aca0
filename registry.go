// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// SenderInfo is what an external consumer learns about a sender.
type SenderInfo struct {
	Name       SenderName
	Descriptor Descriptor
	Handle     OSHandle

	// Frame is the freshness counter. It increases by one after every
	// completed copy into the shared texture.
	Frame uint64

	// Epoch is the producer's device epoch when the handle was created.
	Epoch uint64

	// PID is the producer process id.
	PID int
}

// Announcer publishes sender state outside the process. The directory
// package provides the OS-visible implementation.
type Announcer interface {
	// Announce creates or replaces the published record for info.Name.
	// Returning an error matching ErrNameCollision aborts the registration.
	Announce(info SenderInfo) error

	// Stamp publishes a new freshness counter value.
	Stamp(name SenderName, frame uint64) error

	// Withdraw removes the record. Withdrawing an absent name is not an error.
	Withdraw(name SenderName) error
}

// Locator finds senders by name. Both the Registry (same process) and the
// directory (any process) implement it.
type Locator interface {
	Locate(name SenderName) (SenderInfo, bool)
}

// registryEntry is one row of the sender table.
type registryEntry struct {
	handle *Handle
	frames uint64
}

// Registry is the process-wide table mapping sender names to shared
// textures. It owns creation and destruction of the shared GPU resources.
//
// A single mutex guards table mutation and the pinning of handles that a
// copy in flight targets, so a handle can never be released under a copy.
//
// The last generation of every name ever registered is kept until Close, so
// a sender re-created under an old name continues its generation sequence.
// That costs one map entry per distinct name.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	bridge      Bridge
	announcer   Announcer
	entries     map[SenderName]*registryEntry
	generations map[SenderName]uint64 // outlives Unregister so a re-created name never reuses a generation
	retiring    map[*Handle]struct{}
	closed      bool
}

// NewRegistry creates an empty registry allocating through bridge.
// announcer may be nil.
func NewRegistry(bridge Bridge, announcer Announcer) *Registry {
	return &Registry{
		bridge:      bridge,
		announcer:   announcer,
		entries:     make(map[SenderName]*registryEntry),
		generations: make(map[SenderName]uint64),
		retiring:    make(map[*Handle]struct{}),
	}
}

// Bridge returns the bridge the registry allocates through.
func (r *Registry) Bridge() Bridge { return r.bridge }

// Register allocates a shared texture for name and returns its handle.
// It fails with ErrNameCollision if name already has a live handle.
func (r *Registry) Register(name SenderName, desc Descriptor) (*Handle, error) {
	if err := name.Validate(); err != nil {
		return nil, senderErr("register", name, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, senderErr("register", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, senderErr("register", name, ErrServiceClosed)
	}
	if _, ok := r.entries[name]; ok {
		return nil, senderErr("register", name, ErrNameCollision)
	}

	desc.Generation = r.generations[name] + 1
	h, err := r.allocateLocked(name, desc)
	if err != nil {
		return nil, senderErr("register", name, err)
	}

	e := &registryEntry{handle: h}
	if err := r.announceLocked(e); err != nil {
		h.release()
		return nil, senderErr("register", name, err)
	}
	r.entries[name] = e
	r.generations[name] = desc.Generation

	Logger().Info("texshare: sender registered", "sender", string(name), "descriptor", desc.String())
	return h, nil
}

// Resize replaces the shared texture of name with one matching desc and
// bumps the generation. The old handle is released immediately, or after
// the copy in flight into it retires.
//
// Resize is not atomic for consumers: a consumer must re-open the sender
// when it observes a new generation and may see one stale frame meanwhile.
func (r *Registry) Resize(name SenderName, desc Descriptor) (*Handle, error) {
	if err := desc.Validate(); err != nil {
		return nil, senderErr("resize", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.replaceLocked(name, desc)
	if err != nil {
		return nil, senderErr("resize", name, err)
	}
	Logger().Info("texshare: sender resized", "sender", string(name), "descriptor", h.desc.String())
	return h, nil
}

// Reregister recreates the shared texture of name with its current size
// and format. It is how a sender recovers after ErrDeviceLost.
func (r *Registry) Reregister(name SenderName) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, senderErr("reregister", name, ErrUnknownSender)
	}
	h, err := r.replaceLocked(name, e.handle.desc)
	if err != nil {
		return nil, senderErr("reregister", name, err)
	}
	Logger().Info("texshare: sender re-registered", "sender", string(name), "descriptor", h.desc.String())
	return h, nil
}

// replaceLocked allocates the replacement before retiring the current
// handle, so a failed allocation leaves the sender untouched.
func (r *Registry) replaceLocked(name SenderName, desc Descriptor) (*Handle, error) {
	if r.closed {
		return nil, ErrServiceClosed
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, ErrUnknownSender
	}

	desc.Generation = r.generations[name] + 1
	h, err := r.allocateLocked(name, desc)
	if err != nil {
		return nil, err
	}

	old := e.handle
	e.handle = h
	r.generations[name] = desc.Generation
	r.retireLocked(old)

	if err := r.announceLocked(e); err != nil {
		Logger().Warn("texshare: announce failed", "sender", string(name), "err", err)
	}
	return h, nil
}

// Unregister removes name and releases its shared texture. Unregistering
// an unknown name is a no-op.
func (r *Registry) Unregister(name SenderName) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return
	}
	delete(r.entries, name)
	r.retireLocked(e.handle)
	r.withdrawLocked(name)

	Logger().Info("texshare: sender unregistered", "sender", string(name))
}

// Lookup returns the live handle registered under name.
func (r *Registry) Lookup(name SenderName) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Locate implements Locator for consumers in the same process.
func (r *Registry) Locate(name SenderName) (SenderInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return SenderInfo{}, false
	}
	return r.infoLocked(e), true
}

// Frames returns the freshness counter of name.
func (r *Registry) Frames(name SenderName) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e.frames
	}
	return 0
}

// Names returns the registered sender names in sorted order.
func (r *Registry) Names() []SenderName {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]SenderName, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Len returns the number of registered senders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Retiring returns the number of handles waiting for an in-flight copy
// before they can be released.
func (r *Registry) Retiring() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.retiring)
}

// Close unregisters every sender and releases its shared texture. A
// texture still pinned by a copy in flight is only released when that copy
// retires; if it never does, the texture stays allocated.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for name, e := range r.entries {
		r.retireLocked(e.handle)
		r.withdrawLocked(name)
	}
	r.entries = map[SenderName]*registryEntry{}
	clear(r.generations)
	if n := len(r.retiring); n > 0 {
		Logger().Warn("texshare: registry closed with shared textures pinned by copies in flight", "count", n)
	}
}

// acquire pins the current handle of name for a copy. The caller must call
// unpin exactly once.
func (r *Registry) acquire(name SenderName) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, ErrUnknownSender
	}
	h := e.handle
	if h.epoch != r.bridge.Epoch() {
		return nil, fmt.Errorf("%w: handle epoch %d, device epoch %d", ErrDeviceLost, h.epoch, r.bridge.Epoch())
	}
	h.pins++
	return h, nil
}

// unpin drops a pin taken by acquire and releases the handle if it was
// retired meanwhile.
func (r *Registry) unpin(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h.pins--
	if h.pins == 0 && h.doomed {
		delete(r.retiring, h)
		h.release()
	}
}

// stamp advances the freshness counter of name if h is still its current
// handle. It reports the new counter value.
func (r *Registry) stamp(name SenderName, h *Handle) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.handle != h {
		return 0, false
	}
	e.frames++
	if r.announcer != nil {
		if err := r.announcer.Stamp(name, e.frames); err != nil {
			Logger().Warn("texshare: stamp failed", "sender", string(name), "err", err)
		}
	}
	return e.frames, true
}

func (r *Registry) allocateLocked(name SenderName, desc Descriptor) (*Handle, error) {
	epoch := r.bridge.Epoch()
	tex, err := r.bridge.Allocate(desc)
	if err != nil {
		return nil, err
	}
	osh, err := r.bridge.ExportAsShared(tex, desc)
	if err != nil {
		r.bridge.Free(tex)
		return nil, err
	}
	return &Handle{
		name:   name,
		desc:   desc,
		os:     osh,
		tex:    tex,
		epoch:  epoch,
		bridge: r.bridge,
	}, nil
}

func (r *Registry) retireLocked(h *Handle) {
	if h.pins > 0 {
		h.doomed = true
		r.retiring[h] = struct{}{}
		return
	}
	h.release()
}

func (r *Registry) infoLocked(e *registryEntry) SenderInfo {
	h := e.handle
	return SenderInfo{
		Name:       h.name,
		Descriptor: h.desc,
		Handle:     h.os,
		Frame:      e.frames,
		Epoch:      h.epoch,
		PID:        os.Getpid(),
	}
}

func (r *Registry) announceLocked(e *registryEntry) error {
	if r.announcer == nil {
		return nil
	}
	err := r.announcer.Announce(r.infoLocked(e))
	if errors.Is(err, ErrNameCollision) {
		return err
	}
	if err != nil {
		Logger().Warn("texshare: announce failed", "sender", string(e.handle.name), "err", err)
	}
	return nil
}

func (r *Registry) withdrawLocked(name SenderName) {
	if r.announcer == nil {
		return
	}
	if err := r.announcer.Withdraw(name); err != nil {
		Logger().Warn("texshare: withdraw failed", "sender", string(name), "err", err)
	}
}
