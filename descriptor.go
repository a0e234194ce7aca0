// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"fmt"
	"strings"
)

// Limits on sender names and texture sizes.
const (
	// MaxNameLength is the longest accepted sender name in bytes.
	MaxNameLength = 255

	// MaxDimension is the largest accepted texture width or height.
	MaxDimension = 16384
)

// SenderName identifies a sender within the process and across processes.
type SenderName string

// Validate checks that the name can be used as a cross-process key.
func (n SenderName) Validate() error {
	switch {
	case n == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(n) > MaxNameLength:
		return fmt.Errorf("%w: %d bytes, max %d", ErrInvalidName, len(n), MaxNameLength)
	case strings.ContainsAny(string(n), "\x00/\\"):
		return fmt.Errorf("%w: %q contains NUL or path separator", ErrInvalidName, string(n))
	case n == "." || n == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, string(n))
	}
	return nil
}

// Descriptor describes the shared texture published under a sender name.
//
// Generation increments on every resize or recreation, so a consumer holding
// an older Generation knows its handle is stale.
type Descriptor struct {
	Width      uint32
	Height     uint32
	Format     PixelFormat
	Generation uint64
}

// Validate checks dimensions and format. It does not look at Generation.
func (d Descriptor) Validate() error {
	if d.Width == 0 || d.Height == 0 || d.Width > MaxDimension || d.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, d.Width, d.Height)
	}
	if !d.Format.Shareable() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.Format)
	}
	return nil
}

// SameShape reports whether two descriptors have equal size and format.
func (d Descriptor) SameShape(o Descriptor) bool {
	return d.Width == o.Width && d.Height == o.Height && d.Format == o.Format
}

// SizeBytes returns the tightly packed size of one image.
func (d Descriptor) SizeBytes() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(d.Format.BytesPerPixel())
}

// String returns e.g. "1920x1080 BGRA8 gen 3".
func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%d %s gen %d", d.Width, d.Height, d.Format, d.Generation)
}

// CheckCopy verifies that src can be copied into dst without conversion.
// Bridges call it before encoding a copy; on failure nothing is written.
func CheckCopy(dst, src Texture) error {
	if dst == nil || src == nil {
		return fmt.Errorf("%w: nil texture", ErrDescriptorMismatch)
	}
	if dst.Width() != src.Width() || dst.Height() != src.Height() {
		return fmt.Errorf("%w: source %dx%d, shared %dx%d",
			ErrDescriptorMismatch, src.Width(), src.Height(), dst.Width(), dst.Height())
	}
	if dst.Format() != src.Format() {
		return fmt.Errorf("%w: source %s, shared %s", ErrDescriptorMismatch, src.Format(), dst.Format())
	}
	return nil
}
