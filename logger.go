// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// bridges that were handed to a Service and want logger updates.
var (
	bridgesMu sync.Mutex
	bridges   []loggerSetter
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for texshare and its bridges.
// By default texshare produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by texshare:
//   - [slog.LevelDebug]: per-frame diagnostics (dropped frames, fence polls)
//   - [slog.LevelInfo]: sender lifecycle (create, resize, rename, destroy)
//   - [slog.LevelWarn]: non-fatal issues (device lost, directory errors, release errors)
//
// Example:
//
//	texshare.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	bridgesMu.Lock()
	defer bridgesMu.Unlock()
	for _, b := range bridges {
		b.SetLogger(l)
	}
}

// Logger returns the current logger used by texshare.
// Sub-packages (bridge/, directory/, host/) call this to share the same
// configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// propagateLogger hands the current logger to b if it accepts one and keeps
// it updated on later SetLogger calls.
func propagateLogger(b Bridge) func() {
	ls, ok := b.(loggerSetter)
	if !ok {
		return func() {}
	}
	ls.SetLogger(Logger())

	bridgesMu.Lock()
	bridges = append(bridges, ls)
	bridgesMu.Unlock()

	return func() {
		bridgesMu.Lock()
		defer bridgesMu.Unlock()
		for i, x := range bridges {
			if x == ls {
				bridges = append(bridges[:i], bridges[i+1:]...)
				return
			}
		}
	}
}
