// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"context"
	"sync"

	"github.com/gogpu/texshare"
)

// CameraOption configures a Camera.
type CameraOption func(*Camera)

// WithFormat sets the pixel format of the camera's shared texture.
// Default: texshare.FormatBGRA8.
func WithFormat(f texshare.PixelFormat) CameraOption {
	return func(c *Camera) { c.format = f }
}

// WithResolution sets the initial resolution preset.
func WithResolution(r Resolution) CameraOption {
	return func(c *Camera) { c.resolution = r }
}

// WithDisabled creates the camera disabled.
func WithDisabled() CameraOption {
	return func(c *Camera) { c.enabled = false }
}

// Camera is the sharing side of one engine camera. The engine renders the
// scene into a target of EffectiveOutputSize and hands it to Tick once per
// frame; the camera keeps a sender of that size published under its name.
//
// Camera is safe for concurrent use.
type Camera struct {
	svc *texshare.Service

	mu         sync.Mutex
	name       texshare.SenderName
	enabled    bool
	format     texshare.PixelFormat
	resolution Resolution
	customW    uint32
	customH    uint32
	useCustom  bool
	session    *texshare.Session
}

// NewCamera creates an enabled camera sharing under name. No sender exists
// until the first Tick.
func NewCamera(svc *texshare.Service, name texshare.SenderName, opts ...CameraOption) *Camera {
	c := &Camera{
		svc:        svc,
		name:       name,
		enabled:    true,
		format:     texshare.FormatBGRA8,
		resolution: DefaultResolution,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the sender name.
func (c *Camera) Name() texshare.SenderName {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Enabled reports whether the camera shares frames.
func (c *Camera) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Session returns the current sender session, or nil before the first Tick
// and after the sender was destroyed.
func (c *Camera) Session() *texshare.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetName renames the camera. The sender under the old name is destroyed;
// the next Tick creates one under the new name.
func (c *Camera) SetName(ctx context.Context, name texshare.SenderName) error {
	if err := name.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == c.name {
		return nil
	}
	c.name = name
	return c.destroyLocked(ctx)
}

// SetEnabled turns sharing on or off. Disabling destroys the sender.
func (c *Camera) SetEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		return c.destroyLocked(ctx)
	}
	return nil
}

// SetResolution selects a preset. It takes effect on the next Tick unless a
// custom resolution is in use.
func (c *Camera) SetResolution(r Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolution = r
}

// Resolution returns the selected preset.
func (c *Camera) Resolution() Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// SetCustomResolution stores a custom output size, used while
// UseCustomResolution is on and both axes are positive.
func (c *Camera) SetCustomResolution(width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customW, c.customH = width, height
}

// UseCustomResolution switches between the custom size and the preset.
func (c *Camera) UseCustomResolution(use bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useCustom = use
}

// EffectiveOutputSize returns the size the engine should render at.
func (c *Camera) EffectiveOutputSize() (width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeLocked()
}

func (c *Camera) sizeLocked() (uint32, uint32) {
	if c.useCustom && c.customW > 0 && c.customH > 0 {
		return c.customW, c.customH
	}
	return c.resolution.Size()
}

// Tick publishes this frame's render target. It creates the sender on first
// use and resizes it when the effective output size changed. A disabled
// camera skips the frame.
//
// rt must have the effective output size; scaling is up to the engine.
// After texshare.ErrDeviceLost the host recovers through the Service.
func (c *Camera) Tick(ctx context.Context, rt texshare.Texture) (texshare.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return texshare.OutcomeSkipped, nil
	}
	w, h := c.sizeLocked()

	if c.session == nil {
		s, err := c.svc.CreateSender(ctx, c.name, w, h, c.format)
		if err != nil {
			return texshare.OutcomeSkipped, err
		}
		c.session = s
	} else if d := c.session.Descriptor(); d.Width != w || d.Height != h {
		if err := c.svc.ResizeSender(ctx, c.session, w, h); err != nil {
			return texshare.OutcomeSkipped, err
		}
		texshare.Logger().Info("host: camera output resized",
			"sender", string(c.name), "width", w, "height", h)
	}
	return c.svc.PublishFrame(ctx, c.session, rt)
}

// Recreate destroys the sender; the next Tick creates a fresh one.
func (c *Camera) Recreate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyLocked(ctx)
}

// Close destroys the sender. The camera can be ticked again afterwards.
func (c *Camera) Close(ctx context.Context) error {
	return c.Recreate(ctx)
}

func (c *Camera) destroyLocked(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	s := c.session
	c.session = nil
	return c.svc.DestroySender(ctx, s)
}
