// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package directory publishes senders to other processes.
//
// Every sender is one small memory-mapped file, named after the sender,
// under a root directory shared by producers and consumers. The file holds
// the descriptor, the shared handle, the producer pid and the freshness
// counter. Producers update it through a sequence counter, so consumers
// always read a consistent snapshot without locks; the freshness counter is
// written last and can be polled on its own.
//
// A Directory is the producer side and plugs into texshare.WithAnnouncer.
// Consumers use Open, List or Directory.Locate.
package directory

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/texshare"
)

// ErrTorn is returned when a record stayed busy for every read attempt.
var ErrTorn = errors.New("directory: record changed during every read attempt")

// ErrInvalidRecord is returned for files that are not sender records.
var ErrInvalidRecord = errors.New("directory: not a sender record")

// DefaultRoot returns $XDG_RUNTIME_DIR/texshare, or texshare under the
// system temporary directory when XDG_RUNTIME_DIR is unset.
func DefaultRoot() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "texshare")
	}
	return filepath.Join(os.TempDir(), "texshare")
}

// Option configures a Directory.
type Option func(*options)

type options struct {
	pid   int
	alive func(pid int) bool
}

// WithPID publishes records under pid instead of the current process id.
// Used by tools that announce on behalf of another process.
func WithPID(pid int) Option {
	return func(o *options) { o.pid = pid }
}

// WithLiveness replaces the producer liveness probe used to decide whether
// an existing record of another pid may be reclaimed.
func WithLiveness(alive func(pid int) bool) Option {
	return func(o *options) { o.alive = alive }
}

// Entry is a sender found in the directory.
type Entry struct {
	texshare.SenderInfo

	// Stamped is when the freshness counter last advanced.
	Stamped time.Time

	// Alive reports whether the producer process still exists.
	Alive bool
}

func senderPath(root string, name texshare.SenderName) string {
	return filepath.Join(root, string(name))
}
