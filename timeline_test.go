// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/bridge/soft"
)

func TestTimelineOrder(t *testing.T) {
	tl := texshare.NewTimeline(4)
	defer tl.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 10 {
		err := tl.Enqueue(func(*texshare.RenderContext) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if err := tl.Do(context.Background(), func(*texshare.RenderContext) error { return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d tasks, want 10", len(got))
	}
	if tl.Executed() < 11 {
		t.Errorf("Executed() = %d, want >= 11", tl.Executed())
	}
}

func TestTimelineDoError(t *testing.T) {
	tl := texshare.NewTimeline(0)
	defer tl.Close()

	want := errors.New("boom")
	if err := tl.Do(context.Background(), func(rc *texshare.RenderContext) error {
		if rc.Timeline() != tl {
			t.Error("RenderContext.Timeline() is not the running timeline")
		}
		return want
	}); !errors.Is(err, want) {
		t.Errorf("Do() error = %v, want %v", err, want)
	}
}

func TestTimelineDoContext(t *testing.T) {
	tl := texshare.NewTimeline(1)
	defer tl.Close()

	release := make(chan struct{})
	_ = tl.Enqueue(func(*texshare.RenderContext) { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tl.Do(ctx, func(*texshare.RenderContext) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestTimelineClose(t *testing.T) {
	tl := texshare.NewTimeline(8)

	ran := make(chan struct{}, 1)
	_ = tl.Enqueue(func(*texshare.RenderContext) { ran <- struct{}{} })
	tl.Close()
	tl.Close() // idempotent

	select {
	case <-ran:
	default:
		t.Error("Close() did not run the queued task")
	}
	if err := tl.Enqueue(func(*texshare.RenderContext) {}); !errors.Is(err, texshare.ErrTimelineClosed) {
		t.Errorf("Enqueue() after Close error = %v, want %v", err, texshare.ErrTimelineClosed)
	}
	if err := tl.Do(context.Background(), func(*texshare.RenderContext) error { return nil }); !errors.Is(err, texshare.ErrTimelineClosed) {
		t.Errorf("Do() after Close error = %v, want %v", err, texshare.ErrTimelineClosed)
	}
}

func TestRenderContextOutsideTask(t *testing.T) {
	tl := texshare.NewTimeline(1)
	defer tl.Close()

	var leaked *texshare.RenderContext
	_ = tl.Do(context.Background(), func(rc *texshare.RenderContext) error {
		leaked = rc
		return nil
	})

	p := texshare.NewPublisher(texshare.NewRegistry(soft.New(), nil))
	for name, rc := range map[string]*texshare.RenderContext{"leaked": leaked, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Retire() outside a timeline task did not panic")
				}
			}()
			p.Retire(rc)
		})
	}
}
