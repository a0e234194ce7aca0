// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/texshare"
)

// scene renders the synthetic camera image: a horizontal gradient with a
// bar sweeping across it, one step per frame.
type scene struct {
	img *image.RGBA
	out *image.RGBA
}

func newScene(width, height int) *scene {
	return &scene{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// render draws frame n at the scene's native size.
func (s *scene) render(n int) {
	b := s.img.Bounds()
	w := b.Dx()
	bar := (n * 8) % w
	for y := range b.Dy() {
		for x := range w {
			c := color.RGBA{
				R: uint8(x * 255 / w),      //nolint:gosec // < 256
				G: uint8(y * 255 / b.Dy()), //nolint:gosec // < 256
				B: uint8((n * 3) & 0xff),   //nolint:gosec // masked
				A: 0xff,
			}
			if x >= bar && x < bar+w/16 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			s.img.SetRGBA(x, y, c)
		}
	}
}

// frame scales the rendered image to width x height and returns its pixels
// in format's byte order. Scaling is the host's job; texshare never scales.
func (s *scene) frame(width, height uint32, format texshare.PixelFormat) []byte {
	r := image.Rect(0, 0, int(width), int(height))
	if s.out == nil || s.out.Bounds() != r {
		s.out = image.NewRGBA(r)
	}
	if r == s.img.Bounds() {
		copy(s.out.Pix, s.img.Pix)
	} else {
		xdraw.ApproxBiLinear.Scale(s.out, r, s.img, s.img.Bounds(), xdraw.Src, nil)
	}

	pix := make([]byte, len(s.out.Pix))
	copy(pix, s.out.Pix)
	if format == texshare.FormatBGRA8 || format == texshare.FormatBGRA8SRGB {
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	}
	return pix
}
