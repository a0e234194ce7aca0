// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build unix

package directory_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/bridge/soft"
	"github.com/gogpu/texshare/directory"
)

// deadPID is above any kernel pid_max.
const deadPID = 0x7ffffff0

func newDirectory(t *testing.T, root string, opts ...directory.Option) *directory.Directory {
	t.Helper()
	d, err := directory.New(root, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func info(name texshare.SenderName, w, h uint32) texshare.SenderInfo {
	return texshare.SenderInfo{
		Name:       name,
		Descriptor: texshare.Descriptor{Width: w, Height: h, Format: texshare.FormatBGRA8, Generation: 1},
		Handle:     0x2000,
		Epoch:      1,
	}
}

func TestDefaultRoot(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got, want := directory.DefaultRoot(), "/run/user/1000/texshare"; got != want {
		t.Errorf("DefaultRoot() = %q, want %q", got, want)
	}
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got, want := directory.DefaultRoot(), filepath.Join(os.TempDir(), "texshare"); got != want {
		t.Errorf("DefaultRoot() = %q, want %q", got, want)
	}
}

func TestAnnounceOpenStamp(t *testing.T) {
	root := t.TempDir()
	d := newDirectory(t, root)

	if err := d.Announce(info("Cam1", 1920, 1080)); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	r, err := directory.Open(root, "Cam1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got.Descriptor.Width != 1920 || got.Descriptor.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", got.Descriptor.Width, got.Descriptor.Height)
	}
	if got.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", got.PID, os.Getpid())
	}
	if got.Handle != 0x2000 || got.Name != "Cam1" {
		t.Errorf("snapshot = %+v", got)
	}

	for frame := uint64(1); frame <= 3; frame++ {
		if err := d.Stamp("Cam1", frame); err != nil {
			t.Fatalf("Stamp: %v", err)
		}
		if r.Frame() != frame {
			t.Errorf("Frame() = %d, want %d", r.Frame(), frame)
		}
	}

	// Resize rewrites the record in place; the open reader sees it.
	next := info("Cam1", 1280, 720)
	next.Descriptor.Generation = 2
	if err := d.Announce(next); err != nil {
		t.Fatalf("Announce resize: %v", err)
	}
	got, _ = r.Snapshot()
	if got.Descriptor.Generation != 2 || got.Descriptor.Width != 1280 {
		t.Errorf("after resize = %s", got.Descriptor)
	}
}

func TestStampUnknown(t *testing.T) {
	d := newDirectory(t, t.TempDir())
	if err := d.Stamp("nobody", 1); !errors.Is(err, texshare.ErrUnknownSender) {
		t.Errorf("Stamp = %v, want ErrUnknownSender", err)
	}
}

func TestAnnounceCollision(t *testing.T) {
	root := t.TempDir()
	owner := newDirectory(t, root)
	other := newDirectory(t, root)

	if err := owner.Announce(info("Cam1", 64, 64)); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	err := other.Announce(info("Cam1", 64, 64))
	if !errors.Is(err, texshare.ErrNameCollision) {
		t.Fatalf("second Announce = %v, want ErrNameCollision", err)
	}

	// The owner's record is untouched.
	got, ok := other.Locate("Cam1")
	if !ok || got.Descriptor.Width != 64 {
		t.Errorf("Locate = %+v, %v", got, ok)
	}
}

func TestAnnounceReclaimsStale(t *testing.T) {
	root := t.TempDir()
	crashed := newDirectory(t, root, directory.WithPID(deadPID))
	if err := crashed.Announce(info("Cam1", 64, 64)); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	d := newDirectory(t, root, directory.WithLiveness(func(pid int) bool { return pid != deadPID }))
	if _, ok := d.Locate("Cam1"); ok {
		t.Error("Locate found a record of a dead producer")
	}
	if err := d.Announce(info("Cam1", 128, 128)); err != nil {
		t.Fatalf("Announce over stale record: %v", err)
	}
	got, ok := d.Locate("Cam1")
	if !ok || got.Descriptor.Width != 128 || got.PID != os.Getpid() {
		t.Errorf("Locate = %+v, %v", got, ok)
	}
}

func TestWithdrawAndClose(t *testing.T) {
	root := t.TempDir()
	d, err := directory.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []texshare.SenderName{"A", "B"} {
		if err := d.Announce(info(name, 16, 16)); err != nil {
			t.Fatalf("Announce %s: %v", name, err)
		}
	}

	if err := d.Withdraw("A"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if err := d.Withdraw("A"); err != nil {
		t.Errorf("second Withdraw = %v", err)
	}
	if _, err := directory.Open(root, "A"); !errors.Is(err, texshare.ErrUnknownSender) {
		t.Errorf("Open withdrawn = %v, want ErrUnknownSender", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "B")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("record B survived Close: %v", err)
	}
	if err := d.Announce(info("C", 16, 16)); !errors.Is(err, texshare.ErrServiceClosed) {
		t.Errorf("Announce after Close = %v", err)
	}
}

func TestOpenInvalid(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "junk"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := directory.Open(root, "junk"); !errors.Is(err, directory.ErrInvalidRecord) {
		t.Errorf("Open junk = %v, want ErrInvalidRecord", err)
	}
	if _, err := directory.Open(root, "../x"); !errors.Is(err, texshare.ErrInvalidName) {
		t.Errorf("Open ../x = %v, want ErrInvalidName", err)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	live := newDirectory(t, root)
	dead := newDirectory(t, root, directory.WithPID(deadPID))

	for _, name := range []texshare.SenderName{"Zed", "Alpha"} {
		if err := live.Announce(info(name, 32, 32)); err != nil {
			t.Fatal(err)
		}
	}
	if err := dead.Announce(info("Ghost", 32, 32)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := directory.List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []struct {
		name  texshare.SenderName
		alive bool
	}{{"Alpha", true}, {"Ghost", false}, {"Zed", true}}
	if len(entries) != len(want) {
		t.Fatalf("List returned %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Name != w.name || entries[i].Alive != w.alive {
			t.Errorf("entries[%d] = %s alive=%v, want %s alive=%v",
				i, entries[i].Name, entries[i].Alive, w.name, w.alive)
		}
	}

	missing, err := directory.List(filepath.Join(root, "missing"))
	if err != nil || len(missing) != 0 {
		t.Errorf("List(missing) = %v, %v", missing, err)
	}
}

func TestServiceAnnouncesThroughDirectory(t *testing.T) {
	root := t.TempDir()
	d := newDirectory(t, root)
	bridge := soft.New()
	svc := texshare.NewService(bridge, texshare.WithAnnouncer(d))
	t.Cleanup(func() { svc.Close(t.Context()) })

	ctx := t.Context()
	s, err := svc.CreateSender(ctx, "Cam1", 64, 32, texshare.FormatRGBA8)
	if err != nil {
		t.Fatalf("CreateSender: %v", err)
	}

	r, err := directory.Open(root, "Cam1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	src := soft.NewTexture(64, 32, texshare.FormatRGBA8)
	if err := src.Fill(9, 8, 7, 6); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if _, err := svc.PublishFrame(ctx, s, src); err != nil {
			t.Fatalf("PublishFrame %d: %v", i, err)
		}
	}
	if got := r.Frame(); got != 3 {
		t.Errorf("Frame() = %d, want 3", got)
	}

	// A second process-level service cannot claim the name.
	other := texshare.NewService(soft.New(), texshare.WithAnnouncer(newDirectory(t, root)))
	t.Cleanup(func() { other.Close(t.Context()) })
	if _, err := other.CreateSender(ctx, "Cam1", 64, 32, texshare.FormatRGBA8); !errors.Is(err, texshare.ErrNameCollision) {
		t.Errorf("CreateSender in other service = %v, want ErrNameCollision", err)
	}

	// A receiver on the same device follows the sender through the directory.
	recv := texshare.NewReceiver(svc, "Cam1", d)
	dst := soft.NewTexture(64, 32, texshare.FormatRGBA8)
	got, err := recv.Receive(ctx, dst)
	if err != nil || !got {
		t.Fatalf("Receive = %v, %v", got, err)
	}
	if px := dst.Pixels(); px[0] != 9 || px[3] != 6 {
		t.Errorf("received pixel = %v, want [9 8 7 6]", px[:4])
	}

	if err := svc.DestroySender(ctx, s); err != nil {
		t.Fatalf("DestroySender: %v", err)
	}
	if _, err := directory.Open(root, "Cam1"); !errors.Is(err, texshare.ErrUnknownSender) {
		t.Errorf("Open after destroy = %v, want ErrUnknownSender", err)
	}
}
