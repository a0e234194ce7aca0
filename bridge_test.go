// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"errors"
	"slices"
	"testing"
)

// nullBridge allocates nothing. It backs package-internal tests that cannot
// import a real bridge.
type nullBridge struct{}

func (nullBridge) Name() string                         { return "null" }
func (nullBridge) Epoch() uint64                        { return 0 }
func (nullBridge) Allocate(Descriptor) (Texture, error) { return nil, ErrAllocationFailure }
func (nullBridge) ExportAsShared(Texture, Descriptor) (OSHandle, error) {
	return 0, ErrUnsupportedFormat
}
func (nullBridge) CopyInto(Texture, Texture) (CopyFence, error) { return nil, ErrDescriptorMismatch }
func (nullBridge) ImportShared(OSHandle, Descriptor) (Texture, error) {
	return nil, ErrImportUnsupported
}
func (nullBridge) Free(Texture) {}

func TestDeviceEpoch(t *testing.T) {
	var e DeviceEpoch
	if e.Load() != 0 {
		t.Errorf("Load() = %d, want 0", e.Load())
	}
	if got := e.Lose(); got != 1 {
		t.Errorf("Lose() = %d, want 1", got)
	}
	if got := e.Lose(); got != 2 || e.Load() != 2 {
		t.Errorf("Lose() = %d, Load() = %d, want 2, 2", got, e.Load())
	}
}

func TestSenderErrWrapping(t *testing.T) {
	if senderErr("publish", "A", nil) != nil {
		t.Error("senderErr(nil) != nil")
	}

	inner := senderErr("register", "A", ErrNameCollision)
	outer := senderErr("create", "A", inner)
	if outer != inner {
		t.Errorf("senderErr re-wrapped a SenderError for the same name: %v", outer)
	}

	other := senderErr("rename", "B", inner)
	var se *SenderError
	if !errors.As(other, &se) || se.Name != "B" {
		t.Errorf("senderErr for another name = %v", other)
	}
	if !errors.Is(other, ErrNameCollision) {
		t.Error("wrapped error lost its cause")
	}
}

func TestFrameTicketConsumedOnce(t *testing.T) {
	ticket := &FrameTicket{FrameIndex: 1}
	ticket.consume()
	defer func() {
		if recover() == nil {
			t.Error("second consume did not panic")
		}
	}()
	ticket.consume()
}

func TestBridgeRegistry(t *testing.T) {
	t.Cleanup(func() { UnregisterBridge("null") })

	RegisterBridge("null", func() (Bridge, error) { return nullBridge{}, nil })
	if !slices.Contains(AvailableBridges(), "null") {
		t.Fatalf("AvailableBridges() = %v, missing null", AvailableBridges())
	}
	b, err := NewBridge("null")
	if err != nil || b.Name() != "null" {
		t.Errorf("NewBridge(null) = %v, %v", b, err)
	}
	if _, err := NewBridge("missing"); err == nil {
		t.Error("NewBridge(missing) succeeded")
	}

	UnregisterBridge("null")
	if slices.Contains(AvailableBridges(), "null") {
		t.Error("null still registered after UnregisterBridge")
	}
}

func TestDefaultBridgeNoneUsable(t *testing.T) {
	saved := AvailableBridges()
	if len(saved) > 0 {
		t.Skipf("bridges registered in this binary: %v", saved)
	}
	if _, err := DefaultBridge(); err == nil {
		t.Error("DefaultBridge() with nothing registered succeeded")
	}
}
