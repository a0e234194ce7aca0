// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vram

import (
	"errors"
	"strings"
	"testing"
)

const mb = 1024 * 1024

// TestBudgetBasic tests reserve and release accounting.
func TestBudgetBasic(t *testing.T) {
	b := New(16)
	defer b.Close()

	stats := b.Stats()
	if stats.UsedBytes != 0 {
		t.Errorf("Initial UsedBytes = %d, want 0", stats.UsedBytes)
	}
	if stats.TotalBytes != 16*mb {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, 16*mb)
	}

	key := "tex-a"
	if err := b.Reserve(key, 1920*1080*4); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	stats = b.Stats()
	if stats.UsedBytes != 1920*1080*4 {
		t.Errorf("UsedBytes = %d, want %d", stats.UsedBytes, 1920*1080*4)
	}
	if stats.Allocations != 1 {
		t.Errorf("Allocations = %d, want 1", stats.Allocations)
	}
	if !b.Contains(key) {
		t.Error("budget should contain reserved key")
	}

	b.Release(key)
	b.Release(key) // second release is ignored
	stats = b.Stats()
	if stats.UsedBytes != 0 || stats.Allocations != 0 {
		t.Errorf("after release: UsedBytes = %d, Allocations = %d, want 0, 0", stats.UsedBytes, stats.Allocations)
	}
}

// TestBudgetExceeded tests that reservations beyond the budget are refused.
func TestBudgetExceeded(t *testing.T) {
	b := New(16)
	defer b.Close()

	for i := range 4 {
		if err := b.Reserve(i, 4*mb); err != nil {
			t.Fatalf("Reserve(%d) error = %v", i, err)
		}
	}
	err := b.Reserve("one-more", 1)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("Reserve() over budget error = %v, want %v", err, ErrBudgetExceeded)
	}
	if got := b.Stats().Rejections; got != 1 {
		t.Errorf("Rejections = %d, want 1", got)
	}

	// Replacing an existing key only accounts the difference.
	if err := b.Reserve(0, 2*mb); err != nil {
		t.Fatalf("Reserve() replace error = %v", err)
	}
	if got := b.Stats().UsedBytes; got != 14*mb {
		t.Errorf("UsedBytes = %d, want %d", got, 14*mb)
	}
}

// TestBudgetDefaults tests the minimum budget clamp.
func TestBudgetDefaults(t *testing.T) {
	b := New(0)
	if got := b.Stats().TotalBytes; got != DefaultMaxMemoryMB*mb {
		t.Errorf("TotalBytes = %d, want %d", got, DefaultMaxMemoryMB*mb)
	}

	b.SetBudget(1)
	if got := b.Stats().TotalBytes; got != MinMemoryMB*mb {
		t.Errorf("TotalBytes after SetBudget(1) = %d, want %d", got, MinMemoryMB*mb)
	}
}

// TestBudgetShrink tests that shrinking keeps existing reservations.
func TestBudgetShrink(t *testing.T) {
	b := New(64)
	if err := b.Reserve("big", 32*mb); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	b.SetBudget(16)

	stats := b.Stats()
	if stats.AvailableBytes != 0 {
		t.Errorf("AvailableBytes = %d, want 0", stats.AvailableBytes)
	}
	if err := b.Reserve("small", 1); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Reserve() error = %v, want %v", err, ErrBudgetExceeded)
	}
	b.Release("big")
	if err := b.Reserve("small", 1); err != nil {
		t.Errorf("Reserve() after release error = %v", err)
	}
}

// TestBudgetClose tests closure.
func TestBudgetClose(t *testing.T) {
	b := New(16)
	_ = b.Reserve("a", 10)
	b.Close()
	b.Close() // Should not panic

	if err := b.Reserve("b", 10); !errors.Is(err, ErrClosed) {
		t.Errorf("Reserve() after close error = %v, want %v", err, ErrClosed)
	}
	if b.Contains("a") {
		t.Error("closed budget should hold no reservations")
	}
}

// TestStatsString tests Stats formatting.
func TestStatsString(t *testing.T) {
	s := Stats{
		TotalBytes:  256 * mb,
		UsedBytes:   128 * mb,
		Allocations: 10,
		Rejections:  5,
		Utilization: 0.5,
	}
	got := s.String()
	want := "VRAM[50.0% used, 128/256 MB, 10 allocations, 5 rejections]"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "VRAM[") {
		t.Errorf("String() = %q", got)
	}
}

func BenchmarkReserveRelease(b *testing.B) {
	budget := New(DefaultMaxMemoryMB)
	defer budget.Close()

	for b.Loop() {
		_ = budget.Reserve("tex", 1920*1080*4)
		budget.Release("tex")
	}
}
