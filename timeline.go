// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultTimelineDepth is the task queue capacity used when none is given.
const DefaultTimelineDepth = 64

// Timeline is the render timeline: a single goroutine executing tasks in
// submission order. Every Bridge and Publisher call made by this package
// runs on it, which is what serializes GPU work without per-copy locks.
//
// Tasks receive a *RenderContext. Functions that must run on the timeline
// take one and panic when it is used outside its task.
type Timeline struct {
	tasks chan func(*RenderContext)
	done  chan struct{}

	mu     sync.RWMutex // guards closed against concurrent submit
	closed bool

	executed atomic.Uint64
}

// RenderContext proves that code is running inside a timeline task.
// It is only valid until the task returns.
type RenderContext struct {
	tl   *Timeline
	live atomic.Bool
}

// NewTimeline starts a render timeline with the given queue depth.
func NewTimeline(depth int) *Timeline {
	if depth <= 0 {
		depth = DefaultTimelineDepth
	}
	t := &Timeline{
		tasks: make(chan func(*RenderContext), depth),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Timeline) run() {
	defer close(t.done)
	for fn := range t.tasks {
		rc := &RenderContext{tl: t}
		rc.live.Store(true)
		fn(rc)
		rc.live.Store(false)
		t.executed.Add(1)
	}
}

// Enqueue schedules fn without waiting for it. It blocks only while the
// queue is full.
func (t *Timeline) Enqueue(fn func(*RenderContext)) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTimelineClosed
	}
	t.tasks <- fn
	return nil
}

// Do runs fn on the timeline and waits for its result or for ctx to end.
// If ctx ends first the task still runs; its result is discarded.
//
// Do must not be called from inside a timeline task.
func (t *Timeline) Do(ctx context.Context, fn func(*RenderContext) error) error {
	res := make(chan error, 1)
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrTimelineClosed
	}
	select {
	case t.tasks <- func(rc *RenderContext) { res <- fn(rc) }:
		t.mu.RUnlock()
	case <-ctx.Done():
		t.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executed returns the number of tasks completed so far.
func (t *Timeline) Executed() uint64 { return t.executed.Load() }

// Close stops accepting tasks, runs the ones already queued and waits for
// the timeline goroutine to exit. Close is idempotent.
func (t *Timeline) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.tasks)
	}
	t.mu.Unlock()
	<-t.done
}

// Timeline returns the timeline the context belongs to.
func (rc *RenderContext) Timeline() *Timeline { return rc.tl }

// mustBeLive panics when rc is nil or its task already returned.
func (rc *RenderContext) mustBeLive() {
	if rc == nil || !rc.live.Load() {
		panic("texshare: render-timeline function called outside a timeline task")
	}
}
