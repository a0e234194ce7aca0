// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !unix

package directory

import (
	"errors"
	"fmt"

	"github.com/gogpu/texshare"
)

// errNoMmap is returned on platforms without the unix mmap directory.
var errNoMmap = fmt.Errorf("directory: %w on this platform", errors.ErrUnsupported)

// Directory is unavailable on this platform; New always fails.
type Directory struct{}

// New fails with errors.ErrUnsupported.
func New(root string, opts ...Option) (*Directory, error) { return nil, errNoMmap }

// Root returns "".
func (d *Directory) Root() string { return "" }

// Announce fails with errors.ErrUnsupported.
func (d *Directory) Announce(texshare.SenderInfo) error { return errNoMmap }

// Stamp fails with errors.ErrUnsupported.
func (d *Directory) Stamp(texshare.SenderName, uint64) error { return errNoMmap }

// Withdraw is a no-op.
func (d *Directory) Withdraw(texshare.SenderName) error { return nil }

// Locate finds nothing.
func (d *Directory) Locate(texshare.SenderName) (texshare.SenderInfo, bool) {
	return texshare.SenderInfo{}, false
}

// Close is a no-op.
func (d *Directory) Close() error { return nil }

// Reader is unavailable on this platform.
type Reader struct{}

// Open fails with errors.ErrUnsupported.
func Open(string, texshare.SenderName) (*Reader, error) { return nil, errNoMmap }

// Name returns "".
func (r *Reader) Name() texshare.SenderName { return "" }

// Snapshot fails with errors.ErrUnsupported.
func (r *Reader) Snapshot() (texshare.SenderInfo, error) { return texshare.SenderInfo{}, errNoMmap }

// Frame returns 0.
func (r *Reader) Frame() uint64 { return 0 }

// Close is a no-op.
func (r *Reader) Close() error { return nil }

// List fails with errors.ErrUnsupported.
func List(string) ([]Entry, error) { return nil, errNoMmap }
