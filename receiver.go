// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"context"
	"errors"
)

// Receiver pulls a named sender, from this or another process, into a host
// texture. It is the consuming counterpart of a Session.
//
// The sender is opened through the bridge's ImportShared and re-opened
// whenever its generation, handle or the device epoch changes. A copy is
// only issued when the sender's freshness counter advanced.
type Receiver struct {
	svc     *Service
	name    SenderName
	locator Locator

	// render timeline only
	imported Texture
	info     SenderInfo
	epoch    uint64
	pending  CopyFence
	frame    uint64
}

// NewReceiver creates a receiver for name. locator is usually a
// directory.Directory; a Registry works for senders of the same process.
func NewReceiver(svc *Service, name SenderName, locator Locator) *Receiver {
	return &Receiver{svc: svc, name: name, locator: locator}
}

// Name returns the sender name the receiver follows.
func (r *Receiver) Name() SenderName { return r.name }

// Receive copies the newest frame of the sender into target. It reports
// whether a new frame was copied. target must match the sender's size and
// format; otherwise Receive fails with ErrDescriptorMismatch and the host is
// expected to resize target to Info().Descriptor.
func (r *Receiver) Receive(ctx context.Context, target Texture) (bool, error) {
	var got bool
	err := r.svc.do(ctx, func(rc *RenderContext) error {
		var err error
		got, err = r.receive(rc, target)
		return err
	})
	return got, senderErr("receive", r.name, err)
}

// Info returns the sender info seen by the last Receive.
func (r *Receiver) Info() SenderInfo { return r.info }

// Close releases the imported texture.
func (r *Receiver) Close(ctx context.Context) error {
	return r.svc.do(ctx, func(rc *RenderContext) error {
		rc.mustBeLive()
		r.reset()
		return nil
	})
}

func (r *Receiver) receive(rc *RenderContext, target Texture) (bool, error) {
	rc.mustBeLive()
	bridge := r.svc.bridge

	if r.pending != nil {
		done, err := r.pending.Retired()
		if err == nil && !done {
			return false, nil
		}
		r.pending.Release()
		r.pending = nil
		if err != nil {
			r.reset()
			return false, err
		}
	}

	info, ok := r.locator.Locate(r.name)
	if !ok {
		r.reset()
		return false, ErrUnknownSender
	}

	if r.imported == nil || r.stale(info, bridge.Epoch()) {
		r.reset()
		tex, err := bridge.ImportShared(info.Handle, info.Descriptor)
		if err != nil {
			return false, err
		}
		r.imported = tex
		r.epoch = bridge.Epoch()
		r.frame = 0
		Logger().Info("texshare: receiver opened sender",
			"sender", string(r.name), "descriptor", info.Descriptor.String())
	}
	r.info = info

	if info.Frame == r.frame {
		return false, nil
	}

	fence, err := bridge.CopyInto(target, r.imported)
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			r.reset()
		}
		return false, err
	}
	r.frame = info.Frame
	done, err := fence.Retired()
	if err != nil || done {
		fence.Release()
		return err == nil, err
	}
	r.pending = fence
	return true, nil
}

func (r *Receiver) stale(info SenderInfo, epoch uint64) bool {
	return info.Handle != r.info.Handle ||
		info.Descriptor.Generation != r.info.Descriptor.Generation ||
		info.Epoch != r.info.Epoch ||
		epoch != r.epoch
}

func (r *Receiver) reset() {
	if r.pending != nil {
		r.pending.Release()
		r.pending = nil
	}
	if r.imported != nil {
		r.svc.bridge.Free(r.imported)
		r.imported = nil
	}
	r.frame = 0
}
