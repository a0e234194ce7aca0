// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package texshare publishes real-time rendered frames to other processes
// through GPU shared textures, without reading pixels back to the CPU.
//
// # Overview
//
// A host application (a game engine camera, a compositor, a visualizer)
// creates one named sender per exported camera and hands its render target
// to the sender once per rendered frame. Consumers in other processes
// (broadcast mixers, streaming encoders) find the sender by name, open the
// same GPU memory and read it directly.
//
// # Quick Start
//
//	bridge := soft.New()                      // or wgpu.New(provider)
//	dir, _ := directory.New("")                // OS-visible sender directory
//	svc := texshare.NewService(bridge, texshare.WithAnnouncer(dir))
//	defer svc.Close(context.Background())
//
//	cam, err := svc.CreateSender(ctx, "Cam1", 1920, 1080, texshare.FormatBGRA8)
//	if err != nil {
//	    return err
//	}
//	for frame := range frames {
//	    if _, err := svc.PublishFrame(ctx, cam, frame); texshare.IsFatal(err) {
//	        // device lost: recreate the device, then
//	        _ = svc.Recover(ctx)
//	    }
//	}
//
// # Architecture
//
// Components, leaf first:
//   - Registry: process-wide table from SenderName to a shared texture Handle
//   - Bridge: the only code touching the graphics API (bridge/soft, bridge/wgpu)
//   - Publisher: per-frame copy into the shared texture, freshness counter
//   - Session: host-facing lifecycle of one sender, driven through Service
//
// Render work runs on a single Timeline goroutine. Functions that must run
// there take a *RenderContext, which only the timeline hands out.
//
// # Generations and freshness
//
// Every Descriptor carries a Generation that increases on each resize or
// recreation; a consumer holding an older generation must re-open the
// sender. Each completed copy increments the sender's freshness counter,
// written only after the GPU retired the copy.
//
// # Device loss
//
// Device loss is system-wide. Bridges bump a DeviceEpoch; every Handle
// remembers the epoch it was created in. The first publish that notices
// fails with ErrDeviceLost and suspends its session. Nothing retries on its
// own: the host recreates the device and calls Service.Recover.
//
// # Error Handling
//
// Sharing failures never panic and never affect the host's render loop.
// Errors match the package sentinels (ErrNameCollision, ErrUnknownSender,
// ErrUnsupportedFormat, ErrDescriptorMismatch, ErrDeviceLost,
// ErrAllocationFailure, ...) with errors.Is, usually wrapped in *SenderError.
package texshare
