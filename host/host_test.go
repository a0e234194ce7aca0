// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/bridge/soft"
	"github.com/gogpu/texshare/bridge/wgpu"
	"github.com/gogpu/texshare/host"
)

func TestResolutionPresets(t *testing.T) {
	tests := []struct {
		res           host.Resolution
		name          string
		width, height uint32
	}{
		{host.Res240p, "240p", 426, 240},
		{host.Res360p, "360p", 640, 360},
		{host.Res480p, "480p", 854, 480},
		{host.Res720p, "720p", 1280, 720},
		{host.Res1080p, "1080p", 1920, 1080},
		{host.Res1440p, "1440p", 2560, 1440},
		{host.Res4K, "4K", 3840, 2160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.res.Size()
			if w != tt.width || h != tt.height {
				t.Errorf("Size() = %dx%d, want %dx%d", w, h, tt.width, tt.height)
			}
			if tt.res.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.res.String(), tt.name)
			}
			got, err := host.ParseResolution(tt.name)
			if err != nil || got != tt.res {
				t.Errorf("ParseResolution(%q) = %v, %v", tt.name, got, err)
			}
		})
	}

	if len(host.Resolutions()) != len(tests) {
		t.Errorf("Resolutions() has %d entries, want %d", len(host.Resolutions()), len(tests))
	}
	if _, err := host.ParseResolution("8k"); err == nil {
		t.Error("ParseResolution(8k) succeeded")
	}
	if w, h := host.Resolution(99).Size(); w != 1920 || h != 1080 {
		t.Errorf("unknown preset size = %dx%d, want default", w, h)
	}
}

func TestEffectiveOutputSize(t *testing.T) {
	svc := texshare.NewService(soft.New())
	t.Cleanup(func() { svc.Close(t.Context()) })

	tests := []struct {
		name          string
		res           host.Resolution
		customW       uint32
		customH       uint32
		useCustom     bool
		width, height uint32
	}{
		{"default preset", host.DefaultResolution, 0, 0, false, 1920, 1080},
		{"preset", host.Res480p, 0, 0, false, 854, 480},
		{"custom", host.Res480p, 800, 600, true, 800, 600},
		{"custom not enabled", host.Res720p, 800, 600, false, 1280, 720},
		{"custom zero width", host.Res720p, 0, 600, true, 1280, 720},
		{"custom zero height", host.Res720p, 800, 0, true, 1280, 720},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := host.NewCamera(svc, "Cam", host.WithResolution(tt.res))
			cam.SetCustomResolution(tt.customW, tt.customH)
			cam.UseCustomResolution(tt.useCustom)
			w, h := cam.EffectiveOutputSize()
			if w != tt.width || h != tt.height {
				t.Errorf("EffectiveOutputSize() = %dx%d, want %dx%d", w, h, tt.width, tt.height)
			}
		})
	}
}

// target returns a filled render target of the camera's output size.
func target(t *testing.T, cam *host.Camera) *soft.Texture {
	t.Helper()
	w, h := cam.EffectiveOutputSize()
	tex := soft.NewTexture(w, h, texshare.FormatRGBA8)
	if err := tex.Fill(1, 2, 3, 4); err != nil {
		t.Fatal(err)
	}
	return tex
}

func newCamera(t *testing.T, opts ...host.CameraOption) (*texshare.Service, *host.Camera) {
	t.Helper()
	svc := texshare.NewService(soft.New())
	t.Cleanup(func() { svc.Close(t.Context()) })
	opts = append([]host.CameraOption{host.WithFormat(texshare.FormatRGBA8), host.WithResolution(host.Res240p)}, opts...)
	return svc, host.NewCamera(svc, "Cam1", opts...)
}

func TestCameraTickCreatesAndResizes(t *testing.T) {
	ctx := t.Context()
	svc, cam := newCamera(t)

	if cam.Session() != nil {
		t.Fatal("sender exists before the first Tick")
	}
	out, err := cam.Tick(ctx, target(t, cam))
	if err != nil || out != texshare.OutcomePublished {
		t.Fatalf("Tick = %v, %v", out, err)
	}
	s := cam.Session()
	if d := s.Descriptor(); d.Width != 426 || d.Height != 240 || d.Generation != 1 {
		t.Errorf("descriptor = %s, want 426x240 gen 1", d)
	}

	cam.SetResolution(host.Res360p)
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatalf("Tick after resolution change: %v", err)
	}
	if d := s.Descriptor(); d.Width != 640 || d.Height != 360 || d.Generation != 2 {
		t.Errorf("descriptor = %s, want 640x360 gen 2", d)
	}
	if cam.Session() != s {
		t.Error("resize replaced the session")
	}

	cam.SetCustomResolution(320, 200)
	cam.UseCustomResolution(true)
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatalf("Tick with custom size: %v", err)
	}
	if d := s.Descriptor(); d.Width != 320 || d.Height != 200 || d.Generation != 3 {
		t.Errorf("descriptor = %s, want 320x200 gen 3", d)
	}
	if got := s.Published(); got != 3 {
		t.Errorf("Published() = %d, want 3", got)
	}
	if svc.Stats().Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", svc.Stats().Sessions)
	}
}

func TestCameraDisable(t *testing.T) {
	ctx := t.Context()
	svc, cam := newCamera(t)

	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	first := cam.Session()

	if err := cam.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if first.State() != texshare.StateDestroyed {
		t.Errorf("state = %v, want Destroyed", first.State())
	}
	if _, ok := svc.Session("Cam1"); ok {
		t.Error("sender still registered after disable")
	}
	out, err := cam.Tick(ctx, target(t, cam))
	if err != nil || out != texshare.OutcomeSkipped {
		t.Errorf("Tick while disabled = %v, %v", out, err)
	}

	if err := cam.SetEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	if d := cam.Session().Descriptor(); d.Generation <= first.Descriptor().Generation {
		t.Errorf("recreated generation %d not above %d", d.Generation, first.Descriptor().Generation)
	}
}

func TestCameraRename(t *testing.T) {
	ctx := t.Context()
	svc, cam := newCamera(t)

	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetName(ctx, "Cam2"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if _, ok := svc.Session("Cam1"); ok {
		t.Error("old name still registered")
	}
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Session("Cam2"); !ok {
		t.Error("new name not registered after Tick")
	}

	if err := cam.SetName(ctx, "a/b"); !errors.Is(err, texshare.ErrInvalidName) {
		t.Errorf("SetName(a/b) = %v, want ErrInvalidName", err)
	}
	if cam.Name() != "Cam2" {
		t.Errorf("Name() = %q after invalid rename", cam.Name())
	}
}

func TestCameraNameCollision(t *testing.T) {
	ctx := t.Context()
	svc, cam := newCamera(t)
	other := host.NewCamera(svc, "Cam1", host.WithFormat(texshare.FormatRGBA8), host.WithResolution(host.Res240p))

	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	_, err := other.Tick(ctx, target(t, other))
	if !errors.Is(err, texshare.ErrNameCollision) {
		t.Errorf("second camera Tick = %v, want ErrNameCollision", err)
	}
	if other.Session() != nil {
		t.Error("colliding camera holds a session")
	}
}

func TestCameraRecreate(t *testing.T) {
	ctx := t.Context()
	_, cam := newCamera(t, host.WithDisabled())
	if cam.Enabled() {
		t.Fatal("WithDisabled camera is enabled")
	}
	if err := cam.SetEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	if err := cam.Recreate(ctx); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if cam.Session() != nil {
		t.Error("session survived Recreate")
	}
	if _, err := cam.Tick(ctx, target(t, cam)); err != nil {
		t.Fatal(err)
	}
	if err := cam.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL access.
type mockProvider struct {
	format gputypes.TextureFormat
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }

func TestSurfaceFormat(t *testing.T) {
	tests := []struct {
		name string
		dev  host.DeviceHandle
		want texshare.PixelFormat
	}{
		{"nil", nil, texshare.FormatBGRA8},
		{"rgba", &mockProvider{format: gputypes.TextureFormatRGBA8Unorm}, texshare.FormatRGBA8},
		{"bgra srgb", &mockProvider{format: gputypes.TextureFormatBGRA8UnormSrgb}, texshare.FormatBGRA8SRGB},
		{"depth falls back", &mockProvider{format: gputypes.TextureFormatDepth24PlusStencil8}, texshare.FormatBGRA8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := host.SurfaceFormat(tt.dev); got != tt.want {
				t.Errorf("SurfaceFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWGPUServiceRejects(t *testing.T) {
	if _, _, err := host.NewWGPUService(nil); !errors.Is(err, wgpu.ErrNoDevice) {
		t.Errorf("NewWGPUService(nil) = %v, want ErrNoDevice", err)
	}
	if _, _, err := host.NewWGPUService(&mockProvider{}); err == nil {
		t.Error("NewWGPUService accepted a provider without HAL access")
	}
}
