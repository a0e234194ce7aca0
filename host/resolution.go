// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"fmt"
	"strings"
)

// Resolution is a stream resolution preset, named after its height.
type Resolution uint8

const (
	Res240p Resolution = iota
	Res360p
	Res480p
	Res720p
	Res1080p
	Res1440p
	Res4K
)

// DefaultResolution is the preset a new Camera streams at.
const DefaultResolution = Res1080p

var resolutions = [...]struct {
	name          string
	width, height uint32
}{
	Res240p:  {"240p", 426, 240},
	Res360p:  {"360p", 640, 360},
	Res480p:  {"480p", 854, 480},
	Res720p:  {"720p", 1280, 720},
	Res1080p: {"1080p", 1920, 1080},
	Res1440p: {"1440p", 2560, 1440},
	Res4K:    {"4K", 3840, 2160},
}

// Size returns the preset's width and height. Unknown values map to the
// default preset.
func (r Resolution) Size() (width, height uint32) {
	if int(r) >= len(resolutions) {
		r = DefaultResolution
	}
	p := resolutions[r]
	return p.width, p.height
}

// String returns the preset name, e.g. "720p".
func (r Resolution) String() string {
	if int(r) >= len(resolutions) {
		return fmt.Sprintf("Resolution(%d)", uint8(r))
	}
	return resolutions[r].name
}

// Resolutions returns every preset, smallest first.
func Resolutions() []Resolution {
	out := make([]Resolution, len(resolutions))
	for i := range out {
		out[i] = Resolution(i)
	}
	return out
}

// ParseResolution parses a preset name such as "1080p" or "4k".
func ParseResolution(s string) (Resolution, error) {
	for i, p := range resolutions {
		if strings.EqualFold(p.name, s) {
			return Resolution(i), nil
		}
	}
	return DefaultResolution, fmt.Errorf("host: unknown resolution %q", s)
}
