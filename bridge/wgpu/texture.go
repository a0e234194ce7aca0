// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texshare"
)

// Texture is a HAL texture seen through the bridge.
type Texture struct {
	raw    hal.Texture
	width  uint32
	height uint32
	format texshare.PixelFormat

	// guarded by Bridge.mu
	epoch  uint64
	owned  bool // created by Allocate
	handle texshare.OSHandle
	freed  bool
}

var _ texshare.Texture = (*Texture)(nil)

// WrapTexture wraps a host render target so it can be published. The
// bridge never destroys wrapped textures.
func WrapTexture(raw hal.Texture, width, height uint32, format texshare.PixelFormat) *Texture {
	return &Texture{raw: raw, width: width, height: height, format: format}
}

// Width returns the width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Format returns the pixel format.
func (t *Texture) Format() texshare.PixelFormat { return t.format }

// Raw returns the underlying HAL texture.
func (t *Texture) Raw() hal.Texture { return t.raw }

// String returns a debug description.
func (t *Texture) String() string {
	return fmt.Sprintf("wgpu.Texture[%dx%d %s]", t.width, t.height, t.format)
}
