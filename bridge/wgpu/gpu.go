// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texshare"
)

// sharedUsage is the usage of every shared texture: copy target for the
// publisher, copy source and sampled texture for consumers.
const sharedUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment

// gpu is the slice of the HAL the bridge needs.
type gpu interface {
	createTexture(label string, desc texshare.Descriptor) (hal.Texture, error)
	destroyTexture(tex hal.Texture)
	// submitCopy records and submits a full-size copy of src into dst.
	submitCopy(dst, src hal.Texture, width, height uint32) (pending, error)
}

// pending is a submitted command buffer and its fence.
type pending interface {
	// poll reports whether the fence signaled. It never blocks.
	poll() (bool, error)
	free()
}

// halGPU drives a hal.Device and hal.Queue.
type halGPU struct {
	device hal.Device
	queue  hal.Queue
}

// newHALGPU extracts the HAL device and queue from a provider exposing
// HalDevice() any and HalQueue() any, such as a gogpu application.
func newHALGPU(provider any) (*halGPU, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider %T does not expose HAL types", provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return &halGPU{device: device, queue: queue}, nil
}

func (g *halGPU) createTexture(label string, desc texshare.Descriptor) (hal.Texture, error) {
	return g.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format.GPUFormat(),
		Usage:         sharedUsage,
	})
}

func (g *halGPU) destroyTexture(tex hal.Texture) {
	g.device.DestroyTexture(tex)
}

func (g *halGPU) submitCopy(dst, src hal.Texture, width, height uint32) (pending, error) {
	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "texshare_copy_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("texshare_copy"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	// The host's render target comes out of a render pass; the shared
	// texture is sampled by consumers between copies.
	encoder.TransitionTextures([]hal.TextureBarrier{
		{Texture: src, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		}},
		{Texture: dst, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageTextureBinding,
			NewUsage: gputypes.TextureUsageCopyDst,
		}},
	})
	encoder.CopyTextureToTexture(src, dst, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: src, MipLevel: 0},
		DstBase: hal.ImageCopyTexture{Texture: dst, MipLevel: 0},
		Size:    hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{
		{Texture: src, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		}},
		{Texture: dst, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: gputypes.TextureUsageTextureBinding,
		}},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	fence, err := g.device.CreateFence()
	if err != nil {
		g.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("create fence: %w", err)
	}
	if err := g.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		g.device.DestroyFence(fence)
		g.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("%w: submit: %w", texshare.ErrDeviceLost, err)
	}
	return &halPending{device: g.device, fence: fence, cmdBuf: cmdBuf}, nil
}

// halPending is a submitted copy.
type halPending struct {
	device hal.Device
	fence  hal.Fence
	cmdBuf hal.CommandBuffer
}

func (p *halPending) poll() (bool, error) {
	ok, err := p.device.Wait(p.fence, 1, 0)
	if err != nil {
		return false, fmt.Errorf("%w: wait: %w", texshare.ErrDeviceLost, err)
	}
	return ok, nil
}

func (p *halPending) free() {
	p.device.DestroyFence(p.fence)
	p.device.FreeCommandBuffer(p.cmdBuf)
}
