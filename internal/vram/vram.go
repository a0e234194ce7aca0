// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vram tracks the GPU memory held by shared textures against a
// budget. Shared textures are owned by the registry and cannot be evicted,
// so the budget is enforced by refusing allocations instead.
package vram

import (
	"errors"
	"fmt"
	"sync"
)

// Budget errors.
var (
	// ErrBudgetExceeded is returned when an allocation would exceed the budget.
	ErrBudgetExceeded = errors.New("vram: memory budget exceeded")

	// ErrClosed is returned when operating on a closed budget.
	ErrClosed = errors.New("vram: budget closed")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default budget (1 GB). Sixteen 4K BGRA8
	// senders fit with room to spare.
	DefaultMaxMemoryMB = 1024

	// MinMemoryMB is the minimum allowed budget.
	MinMemoryMB = 16
)

// Stats contains GPU memory usage statistics.
type Stats struct {
	// TotalBytes is the budget in bytes.
	TotalBytes uint64

	// UsedBytes is the memory currently reserved.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// Allocations is the number of live reservations.
	Allocations int

	// Rejections counts reservations refused for lack of budget.
	Rejections uint64

	// Utilization is the fraction of the budget used (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s Stats) String() string {
	return fmt.Sprintf("VRAM[%.1f%% used, %d/%d MB, %d allocations, %d rejections]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.Allocations,
		s.Rejections)
}

// Budget tracks reservations by key. Keys are usually the bridge's texture
// values and must be comparable.
//
// Budget is safe for concurrent use.
type Budget struct {
	mu sync.RWMutex

	budgetBytes uint64
	usedBytes   uint64
	entries     map[any]uint64
	rejections  uint64
	closed      bool
}

// New creates a budget of maxMB megabytes. Values below MinMemoryMB select
// DefaultMaxMemoryMB.
func New(maxMB int) *Budget {
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}
	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &Budget{
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		entries:     make(map[any]uint64),
	}
}

// Reserve accounts size bytes to key. Reserving an existing key replaces
// its previous size.
func (b *Budget) Reserve(key any, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	used := b.usedBytes - b.entries[key]
	if used+size > b.budgetBytes {
		b.rejections++
		return fmt.Errorf("%w: need %d bytes, have %d bytes available",
			ErrBudgetExceeded, size, b.budgetBytes-used)
	}
	b.entries[key] = size
	b.usedBytes = used + size
	return nil
}

// Release returns the memory reserved for key. Unknown keys are ignored.
func (b *Budget) Release(key any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size, ok := b.entries[key]
	if !ok {
		return
	}
	delete(b.entries, key)
	b.usedBytes -= size
}

// Contains reports whether key holds a reservation.
func (b *Budget) Contains(key any) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[key]
	return ok
}

// SetBudget changes the budget. Existing reservations are kept even when
// they exceed the new budget; further reservations fail until enough is
// released.
func (b *Budget) SetBudget(megabytes int) {
	if megabytes < MinMemoryMB {
		megabytes = MinMemoryMB
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	//nolint:gosec // G115: megabytes bounded by MinMemoryMB minimum
	b.budgetBytes = uint64(megabytes) * 1024 * 1024
}

// Stats returns current memory usage statistics.
func (b *Budget) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var utilization float64
	if b.budgetBytes > 0 {
		utilization = float64(b.usedBytes) / float64(b.budgetBytes)
	}
	var avail uint64
	if b.usedBytes < b.budgetBytes {
		avail = b.budgetBytes - b.usedBytes
	}
	return Stats{
		TotalBytes:     b.budgetBytes,
		UsedBytes:      b.usedBytes,
		AvailableBytes: avail,
		Allocations:    len(b.entries),
		Rejections:     b.rejections,
		Utilization:    utilization,
	}
}

// Close drops every reservation. Later reservations fail with ErrClosed.
func (b *Budget) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.entries = nil
	b.usedBytes = 0
	b.closed = true
}
