// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/texshare"
)

// store is the pixel memory shared by a texture and its imports.
type store struct {
	mu    sync.RWMutex
	pix   []byte
	freed bool
}

// Texture is a texture in CPU memory.
//
// Textures from NewTexture stand in for host render targets and survive a
// device loss. Textures from Bridge.Allocate are bound to the device epoch
// they were created in.
type Texture struct {
	width  uint32
	height uint32
	format texshare.PixelFormat
	store  *store

	// guarded by Bridge.mu
	epoch  uint64
	handle texshare.OSHandle
	owned  bool
	freed  bool
}

var _ texshare.Texture = (*Texture)(nil)

// NewTexture creates a zeroed host texture.
func NewTexture(width, height uint32, format texshare.PixelFormat) *Texture {
	return newTexture(width, height, format)
}

func newTexture(width, height uint32, format texshare.PixelFormat) *Texture {
	size := int(width) * int(height) * format.BytesPerPixel()
	return &Texture{
		width:  width,
		height: height,
		format: format,
		store:  &store{pix: make([]byte, size)},
	}
}

// Width returns the width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Format returns the pixel format.
func (t *Texture) Format() texshare.PixelFormat { return t.format }

// Stride returns the number of bytes per row.
func (t *Texture) Stride() int { return int(t.width) * t.format.BytesPerPixel() }

// Pixels returns a copy of the texture memory.
func (t *Texture) Pixels() []byte {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return append([]byte(nil), t.store.pix...)
}

// SetPixels overwrites the texture memory. len(p) must equal the texture size.
func (t *Texture) SetPixels(p []byte) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if len(p) != len(t.store.pix) {
		return fmt.Errorf("soft: SetPixels got %d bytes, texture holds %d", len(p), len(t.store.pix))
	}
	copy(t.store.pix, p)
	return nil
}

// Fill repeats pattern over the texture. The pattern length must equal the
// format's bytes per pixel.
func (t *Texture) Fill(pattern ...byte) error {
	bpp := t.format.BytesPerPixel()
	if len(pattern) != bpp {
		return fmt.Errorf("soft: Fill pattern has %d bytes, %s pixels have %d", len(pattern), t.format, bpp)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := 0; i < len(t.store.pix); i += bpp {
		copy(t.store.pix[i:i+bpp], pattern)
	}
	return nil
}

// Handle returns the shared handle of an exported or imported texture.
func (t *Texture) Handle() texshare.OSHandle { return t.handle }

// String returns a debug description.
func (t *Texture) String() string {
	return fmt.Sprintf("soft.Texture[%dx%d %s]", t.width, t.height, t.format)
}

func (t *Texture) descriptor() texshare.Descriptor {
	return texshare.Descriptor{Width: t.width, Height: t.height, Format: t.format}
}

// deviceBound reports whether the texture lives on the simulated device.
func (t *Texture) deviceBound() bool { return t.owned || t.handle != 0 }
