// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Outcome describes what happened to one published frame.
type Outcome uint8

const (
	// OutcomeSkipped means the frame was lost to a failure; see the error.
	OutcomeSkipped Outcome = iota

	// OutcomePublished means the copy completed and the freshness counter
	// was advanced before Publish returned.
	OutcomePublished

	// OutcomeInFlight means the copy was queued on the GPU. The freshness
	// counter advances when its fence retires.
	OutcomeInFlight

	// OutcomeDropped means the previous copy into the same shared texture
	// had not retired, so the frame was dropped.
	OutcomeDropped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomePublished:
		return "published"
	case OutcomeInFlight:
		return "in-flight"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// drainPoll is how often Drain polls fences.
const drainPoll = time.Millisecond

// FrameTicket is the per-frame token handed to the copy. It is consumed
// exactly once and never queued beyond its frame.
type FrameTicket struct {
	Source     Texture
	Session    *Session
	FrameIndex uint64

	consumed bool
}

// consume marks the ticket used. A second consume is a programming error.
func (t *FrameTicket) consume() {
	if t.consumed {
		panic("texshare: frame ticket consumed twice")
	}
	t.consumed = true
}

// copyJob is a copy queued on the GPU and not yet retired.
type copyJob struct {
	session *Session
	handle  *Handle
	fence   CopyFence
	frame   uint64
}

// PublisherStats counts frames by outcome.
type PublisherStats struct {
	Published uint64
	Dropped   uint64
	Skipped   uint64
	InFlight  int
}

// Publisher copies host render targets into shared textures, once per
// rendered frame, on the render timeline.
//
// Overlap policy: drop. If the copy of an earlier frame into the same
// shared texture has not retired when a new frame arrives, the new frame is
// dropped. Frames are never queued and never reordered. A resize in the
// meantime lets the next frame through: it targets the new texture while
// the old copy finishes against the old descriptor.
//
// The freshness counter of a sender advances only after the copy's fence
// retires, so consumers that see a new counter value see the new content.
type Publisher struct {
	reg      *Registry
	bridge   Bridge
	inflight []*copyJob // render timeline only
	frame    uint64     // render timeline only

	published atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
	pending   atomic.Int64
}

// NewPublisher creates a publisher writing into the textures of reg.
func NewPublisher(reg *Registry) *Publisher {
	return &Publisher{reg: reg, bridge: reg.Bridge()}
}

// Publish copies src into the shared texture of s.
//
// Per-frame failures (descriptor mismatch, copy errors) skip the frame and
// leave the session active. ErrDeviceLost suspends the session.
func (p *Publisher) Publish(rc *RenderContext, s *Session, src Texture) (Outcome, error) {
	rc.mustBeLive()
	name := s.Name()

	p.Retire(rc)

	if err := s.usable(); err != nil {
		p.skip(s)
		return OutcomeSkipped, senderErr("publish", name, err)
	}

	h, err := p.reg.acquire(name)
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			s.suspend()
		}
		p.skip(s)
		return OutcomeSkipped, senderErr("publish", name, err)
	}

	if p.busy(h) {
		p.reg.unpin(h)
		p.dropped.Add(1)
		s.dropped.Add(1)
		Logger().Debug("texshare: frame dropped, previous copy in flight", "sender", string(name))
		return OutcomeDropped, nil
	}

	p.frame++
	ticket := &FrameTicket{Source: src, Session: s, FrameIndex: p.frame}
	fence, err := p.copy(ticket, h)
	if err != nil {
		p.reg.unpin(h)
		if errors.Is(err, ErrDeviceLost) {
			s.suspend()
			p.abandon()
		}
		p.skip(s)
		return OutcomeSkipped, senderErr("publish", name, err)
	}

	job := &copyJob{session: s, handle: h, fence: fence, frame: ticket.FrameIndex}
	done, err := fence.Retired()
	switch {
	case err != nil:
		p.fail(job)
		s.suspend()
		p.abandon()
		p.skip(s)
		return OutcomeSkipped, senderErr("publish", name, err)
	case done:
		p.complete(job)
		return OutcomePublished, nil
	}

	p.inflight = append(p.inflight, job)
	p.pending.Add(1)
	return OutcomeInFlight, nil
}

// copy consumes the ticket and queues the GPU copy.
func (p *Publisher) copy(t *FrameTicket, h *Handle) (CopyFence, error) {
	t.consume()
	if t.Source == nil {
		return nil, fmt.Errorf("%w: nil source texture", ErrDescriptorMismatch)
	}
	return p.bridge.CopyInto(h.tex, t.Source)
}

// Retire polls the fences of copies in flight, advances freshness counters
// of completed ones and releases handles retired while they were in use.
// A device loss reported by a fence abandons every copy in flight.
func (p *Publisher) Retire(rc *RenderContext) {
	rc.mustBeLive()

	kept := p.inflight[:0]
	for i, job := range p.inflight {
		done, err := job.fence.Retired()
		if err != nil {
			p.fail(job)
			job.session.suspend()
			kept = append(kept, p.inflight[i+1:]...)
			clear(p.inflight[len(kept):])
			p.inflight = kept
			p.abandon()
			return
		}
		if !done {
			kept = append(kept, job)
			continue
		}
		p.complete(job)
	}
	clear(p.inflight[len(kept):])
	p.inflight = kept
	p.pending.Store(int64(len(kept)))
}

// InFlight returns the number of copies not yet retired.
func (p *Publisher) InFlight() int { return int(p.pending.Load()) }

// Drain waits on the render timeline until every copy in flight retired or
// ctx ends. Copies still pending when ctx ends stay in flight.
func (p *Publisher) Drain(ctx context.Context, rc *RenderContext) error {
	rc.mustBeLive()
	for {
		p.Retire(rc)
		if len(p.inflight) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPoll):
		}
	}
}

// Stats returns frame counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Skipped:   p.skipped.Load(),
		InFlight:  p.InFlight(),
	}
}

func (p *Publisher) busy(h *Handle) bool {
	for _, job := range p.inflight {
		if job.handle == h {
			return true
		}
	}
	return false
}

func (p *Publisher) complete(job *copyJob) {
	job.fence.Release()
	n, current := p.reg.stamp(job.session.Name(), job.handle)
	p.reg.unpin(job.handle)
	if !current {
		// The shared texture was replaced or destroyed while the copy ran.
		Logger().Debug("texshare: retired copy into replaced texture",
			"sender", string(job.handle.name), "generation", job.handle.desc.Generation)
		return
	}
	p.published.Add(1)
	job.session.published.Add(1)
	job.session.lastFrame.Store(n)
}

func (p *Publisher) fail(job *copyJob) {
	job.fence.Release()
	p.reg.unpin(job.handle)
}

// abandon releases every copy in flight. Only valid after device loss: the
// queued GPU work will never retire, so nothing can still touch the memory.
func (p *Publisher) abandon() {
	for _, job := range p.inflight {
		p.fail(job)
	}
	clear(p.inflight[:cap(p.inflight)])
	p.inflight = p.inflight[:0]
	p.pending.Store(0)
}

// detach forgets every copy in flight without releasing anything. The
// fences and the pinned shared textures stay allocated for good, since the
// device may still be writing them. Used at shutdown when waiting gave up.
func (p *Publisher) detach(rc *RenderContext) {
	rc.mustBeLive()
	if len(p.inflight) == 0 {
		return
	}
	Logger().Warn("texshare: leaving shared textures allocated, copies still in flight",
		"copies", len(p.inflight))
	clear(p.inflight[:cap(p.inflight)])
	p.inflight = p.inflight[:0]
	p.pending.Store(0)
}

func (p *Publisher) skip(s *Session) {
	p.skipped.Add(1)
	s.skipped.Add(1)
}
