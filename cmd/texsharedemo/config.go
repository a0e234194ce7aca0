// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/host"
)

// runConfig is the resolved configuration of the run command.
type runConfig struct {
	Root         string
	Sender       texshare.SenderName
	Format       texshare.PixelFormat
	Resolution   host.Resolution
	CustomWidth  uint32
	CustomHeight uint32
	RenderWidth  int
	RenderHeight int
	FPS          int
	Frames       int
	Watch        bool
}

// interval returns the frame period.
func (c runConfig) interval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// loadRunConfig reads and validates the run settings from v.
func loadRunConfig(v *viper.Viper) (runConfig, error) {
	cfg := runConfig{
		Root:         v.GetString("root"),
		Sender:       texshare.SenderName(v.GetString("sender")),
		CustomWidth:  v.GetUint32("width"),
		CustomHeight: v.GetUint32("height"),
		RenderWidth:  v.GetInt("render_width"),
		RenderHeight: v.GetInt("render_height"),
		FPS:          v.GetInt("fps"),
		Frames:       v.GetInt("frames"),
		Watch:        v.GetBool("watch"),
	}

	if err := cfg.Sender.Validate(); err != nil {
		return cfg, err
	}

	f, err := texshare.ParseFormat(strings.ToUpper(v.GetString("format")))
	if err != nil {
		return cfg, err
	}
	if !renderable(f) {
		return cfg, fmt.Errorf("%w: demo renders 8-bit RGBA or BGRA, not %s", texshare.ErrUnsupportedFormat, f)
	}
	cfg.Format = f

	res, err := host.ParseResolution(v.GetString("resolution"))
	if err != nil {
		return cfg, err
	}
	cfg.Resolution = res

	switch {
	case cfg.FPS <= 0 || cfg.FPS > 1000:
		return cfg, fmt.Errorf("fps %d out of range 1..1000", cfg.FPS)
	case cfg.RenderWidth <= 0 || cfg.RenderHeight <= 0:
		return cfg, fmt.Errorf("%w: render size %dx%d", texshare.ErrInvalidDimensions, cfg.RenderWidth, cfg.RenderHeight)
	case cfg.Frames < 0:
		return cfg, fmt.Errorf("frames %d is negative", cfg.Frames)
	}
	return cfg, nil
}

// renderable reports whether the synthetic renderer can produce f.
func renderable(f texshare.PixelFormat) bool {
	switch f {
	case texshare.FormatRGBA8, texshare.FormatRGBA8SRGB, texshare.FormatBGRA8, texshare.FormatBGRA8SRGB:
		return true
	}
	return false
}
