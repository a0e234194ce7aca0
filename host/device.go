// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package host connects texshare to a host application: engine cameras
// and the application's GPU device.
package host

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/bridge/wgpu"
)

// DeviceHandle is the GPU device a host application shares with texshare.
// Providers that also expose HalDevice and HalQueue can back a wgpu bridge.
type DeviceHandle = gpucontext.DeviceProvider

// SurfaceFormat returns the shareable pixel format matching the host's
// surface, falling back to BGRA8.
func SurfaceFormat(dev DeviceHandle) texshare.PixelFormat {
	if dev != nil {
		if f := texshare.FormatFromGPU(dev.SurfaceFormat()); f.Shareable() {
			return f
		}
	}
	return texshare.FormatBGRA8
}

// NewWGPUService creates a Service whose shared textures live on the host
// device. It also returns the format cameras should share in.
func NewWGPUService(dev DeviceHandle, opts ...texshare.ServiceOption) (*texshare.Service, texshare.PixelFormat, error) {
	if dev == nil {
		return nil, texshare.FormatUnknown, fmt.Errorf("host: %w", wgpu.ErrNoDevice)
	}
	b, err := wgpu.New(dev)
	if err != nil {
		return nil, texshare.FormatUnknown, fmt.Errorf("host: %w", err)
	}
	return texshare.NewService(b, opts...), SurfaceFormat(dev), nil
}
