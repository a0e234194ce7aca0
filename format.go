// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// PixelFormat is the pixel layout of a shared texture.
type PixelFormat uint8

const (
	// FormatUnknown is the zero value and is never valid.
	FormatUnknown PixelFormat = iota

	// FormatRGBA8 is 8 bits per channel RGBA, unsigned normalized.
	FormatRGBA8

	// FormatBGRA8 is 8 bits per channel BGRA. Most consumers expect this one.
	FormatBGRA8

	// FormatRGBA8SRGB is RGBA8 with sRGB transfer.
	FormatRGBA8SRGB

	// FormatBGRA8SRGB is BGRA8 with sRGB transfer.
	FormatBGRA8SRGB

	// FormatRGBA16F is 16-bit float per channel, used for HDR feeds.
	FormatRGBA16F

	// FormatRGB10A2 is 10 bits per color channel and 2 bits alpha.
	FormatRGB10A2

	// FormatR8 is a single 8-bit channel. Not shareable.
	FormatR8

	// FormatDepth24Stencil8 is a depth/stencil format. Not shareable.
	FormatDepth24Stencil8
)

// String returns a human-readable name for the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatRGBA8SRGB:
		return "RGBA8_SRGB"
	case FormatBGRA8SRGB:
		return "BGRA8_SRGB"
	case FormatRGBA16F:
		return "RGBA16F"
	case FormatRGB10A2:
		return "RGB10A2"
	case FormatR8:
		return "R8"
	case FormatDepth24Stencil8:
		return "D24S8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// BytesPerPixel returns the storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA16F:
		return 8
	case FormatR8:
		return 1
	default:
		return 4
	}
}

// Shareable reports whether textures of this format can be exported to
// another process.
func (f PixelFormat) Shareable() bool {
	switch f {
	case FormatRGBA8, FormatBGRA8, FormatRGBA8SRGB, FormatBGRA8SRGB, FormatRGBA16F, FormatRGB10A2:
		return true
	default:
		return false
	}
}

// GPUFormat converts to the gputypes texture format.
func (f PixelFormat) GPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatRGBA8SRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case FormatBGRA8SRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case FormatRGBA16F:
		return gputypes.TextureFormatRGBA16Float
	case FormatRGB10A2:
		return gputypes.TextureFormatRGB10A2Unorm
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatDepth24Stencil8:
		return gputypes.TextureFormatDepth24PlusStencil8
	default:
		return gputypes.TextureFormatUndefined
	}
}

// FormatFromGPU maps a gputypes texture format back to a PixelFormat.
// It returns FormatUnknown for formats this package does not model.
func FormatFromGPU(f gputypes.TextureFormat) PixelFormat {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return FormatRGBA8
	case gputypes.TextureFormatBGRA8Unorm:
		return FormatBGRA8
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return FormatRGBA8SRGB
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return FormatBGRA8SRGB
	case gputypes.TextureFormatRGBA16Float:
		return FormatRGBA16F
	case gputypes.TextureFormatRGB10A2Unorm:
		return FormatRGB10A2
	case gputypes.TextureFormatR8Unorm:
		return FormatR8
	case gputypes.TextureFormatDepth24PlusStencil8:
		return FormatDepth24Stencil8
	default:
		return FormatUnknown
	}
}

// ParseFormat parses the names produced by String, case-sensitively.
func ParseFormat(s string) (PixelFormat, error) {
	for f := FormatRGBA8; f <= FormatDepth24Stencil8; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}
