// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"log/slog"
	"sync/atomic"
)

// Texture is a GPU texture as seen through a Bridge. It is either a host
// render target handed to PublishFrame or a shared texture owned by the
// Registry.
type Texture interface {
	// Width returns the texture width in pixels.
	Width() uint32

	// Height returns the texture height in pixels.
	Height() uint32

	// Format returns the pixel format.
	Format() PixelFormat
}

// OSHandle is the opaque OS-level value a consumer process uses to open
// the shared GPU memory. Zero means no handle.
type OSHandle uint64

// CopyFence tracks a queued GPU copy.
type CopyFence interface {
	// Retired reports whether the GPU finished the copy. It never blocks.
	// A device loss while waiting is reported as an error matching
	// ErrDeviceLost.
	Retired() (bool, error)

	// Release frees the fence. It is called exactly once, after Retired
	// returned true or an error, or when the copy is abandoned.
	Release()
}

// Bridge is the only component that talks to the native graphics API.
//
// All Bridge methods except Epoch are called on the render timeline and are
// therefore never invoked concurrently by this package.
type Bridge interface {
	// Name returns the bridge identifier (e.g. "soft", "wgpu").
	Name() string

	// Epoch returns the device epoch. It increases every time the device is
	// lost; textures from an older epoch are invalid.
	Epoch() uint64

	// Allocate creates a texture that can back a shared handle.
	// Fails with ErrUnsupportedFormat, ErrAllocationFailure or ErrDeviceLost.
	Allocate(desc Descriptor) (Texture, error)

	// ExportAsShared returns the OS handle for a texture created by
	// Allocate. Fails with ErrUnsupportedFormat, or ErrDeviceLost when the
	// device was reset after tex was created.
	ExportAsShared(tex Texture, desc Descriptor) (OSHandle, error)

	// CopyInto queues a GPU copy of src into dst. A size or format
	// mismatch fails with ErrDescriptorMismatch and leaves dst untouched.
	CopyInto(dst, src Texture) (CopyFence, error)

	// ImportShared opens a foreign shared handle as a texture the host can
	// copy from. Fails with ErrImportUnsupported when the bridge cannot.
	ImportShared(h OSHandle, desc Descriptor) (Texture, error)

	// Free releases a texture from Allocate or ImportShared. Freeing a
	// texture from a lost device only drops bookkeeping.
	Free(tex Texture)
}

// DeviceEpoch is a broadcast device-generation counter. Bridges own one and
// bump it on device loss; every handle records the epoch it was created in
// and is checked against the current value before use.
type DeviceEpoch struct {
	v atomic.Uint64
}

// Load returns the current epoch.
func (e *DeviceEpoch) Load() uint64 { return e.v.Load() }

// Lose marks the device lost and returns the new epoch.
func (e *DeviceEpoch) Lose() uint64 {
	n := e.v.Add(1)
	Logger().Warn("texshare: graphics device lost", "epoch", n)
	return n
}

// loggerSetter is implemented by bridges that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}
