// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ServiceOption configures a Service during creation.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	announcer     Announcer
	timeline      *Timeline
	timelineDepth int
}

// WithAnnouncer publishes sender state through a (typically the directory
// package's) Announcer.
func WithAnnouncer(a Announcer) ServiceOption {
	return func(o *serviceOptions) { o.announcer = a }
}

// WithTimeline runs render work on an existing timeline, e.g. one shared
// with the host's own render commands. The Service does not close it.
func WithTimeline(t *Timeline) ServiceOption {
	return func(o *serviceOptions) { o.timeline = t }
}

// WithTimelineDepth sets the queue depth of the timeline the Service creates.
func WithTimelineDepth(n int) ServiceOption {
	return func(o *serviceOptions) { o.timelineDepth = n }
}

// Stats summarizes a Service.
type Stats struct {
	Sessions  int
	Published uint64
	Dropped   uint64
	Skipped   uint64
	InFlight  int
	Retiring  int
	Epoch     uint64
}

// Service is the texture-sharing subsystem of one host process: the
// Registry, the Publisher and the render timeline they run on.
//
// Create one when the host starts and Close it at shutdown; hand it to the
// code that needs senders instead of reaching for a global. All methods are
// synchronous, safe for concurrent use, and execute GPU work on the render
// timeline.
type Service struct {
	bridge    Bridge
	registry  *Registry
	publisher *Publisher
	timeline  *Timeline
	ownsTL    bool
	unhook    func()

	mu       sync.Mutex
	sessions map[uint64]*Session

	nextID atomic.Uint64
	closed atomic.Bool
}

// NewService creates a Service allocating through bridge.
func NewService(bridge Bridge, opts ...ServiceOption) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	svc := &Service{
		bridge:   bridge,
		registry: NewRegistry(bridge, o.announcer),
		timeline: o.timeline,
		sessions: make(map[uint64]*Session),
	}
	svc.publisher = NewPublisher(svc.registry)
	if svc.timeline == nil {
		svc.timeline = NewTimeline(o.timelineDepth)
		svc.ownsTL = true
	}
	svc.unhook = propagateLogger(bridge)

	Logger().Info("texshare: service started", "bridge", bridge.Name())
	return svc
}

// Bridge returns the resource bridge.
func (svc *Service) Bridge() Bridge { return svc.bridge }

// Registry returns the shared-texture registry.
func (svc *Service) Registry() *Registry { return svc.registry }

// Publisher returns the frame publisher.
func (svc *Service) Publisher() *Publisher { return svc.publisher }

// Timeline returns the render timeline.
func (svc *Service) Timeline() *Timeline { return svc.timeline }

// CreateSender registers a new sender and returns its active session.
// It fails with ErrNameCollision when name is taken.
func (svc *Service) CreateSender(ctx context.Context, name SenderName, width, height uint32, format PixelFormat) (*Session, error) {
	s := &Session{id: svc.nextID.Add(1), name: name, state: StateUninitialized}
	err := svc.do(ctx, func(*RenderContext) error {
		h, err := svc.registry.Register(name, Descriptor{Width: width, Height: height, Format: format})
		if err != nil {
			return err
		}
		s.activate(h)
		svc.mu.Lock()
		svc.sessions[s.id] = s
		svc.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, senderErr("create", name, err)
	}
	return s, nil
}

// PublishFrame copies src, the host's render target for this frame, into
// the sender's shared texture. See Publisher for the overlap policy.
func (svc *Service) PublishFrame(ctx context.Context, s *Session, src Texture) (Outcome, error) {
	out := OutcomeSkipped
	err := svc.do(ctx, func(rc *RenderContext) error {
		var err error
		out, err = svc.publisher.Publish(rc, s, src)
		return err
	})
	return out, err
}

// ResizeSender replaces the sender's shared texture with one of the given
// size, keeping the format. The copy in flight, if any, completes against
// the old texture; the next frame uses the new one. Resizing to the
// current size is a no-op.
func (svc *Service) ResizeSender(ctx context.Context, s *Session, width, height uint32) error {
	name := s.Name()
	return senderErr("resize", name, svc.do(ctx, func(rc *RenderContext) error {
		svc.publisher.Retire(rc)
		if s.State() == StateDestroyed {
			return ErrSessionDestroyed
		}
		desc := s.Descriptor()
		if desc.Width == width && desc.Height == height && s.State() == StateActive {
			return nil
		}
		desc.Width, desc.Height = width, height
		h, err := svc.registry.Resize(s.Name(), desc)
		if err != nil {
			return err
		}
		s.activate(h)
		return nil
	}))
}

// RenameSender moves the session to a new sender name. The new name gets a
// fresh shared texture; the old one is unregistered. It fails with
// ErrNameCollision like CreateSender and then leaves the session unchanged.
func (svc *Service) RenameSender(ctx context.Context, s *Session, name SenderName) error {
	old := s.Name()
	if old == name {
		return nil
	}
	return senderErr("rename", old, svc.do(ctx, func(rc *RenderContext) error {
		svc.publisher.Retire(rc)
		if err := s.usable(); err != nil {
			return err
		}
		desc := s.Descriptor()
		h, err := svc.registry.Register(name, desc)
		if err != nil {
			return err
		}
		svc.registry.Unregister(old)
		s.activate(h)
		Logger().Info("texshare: sender renamed", "from", string(old), "to", string(name))
		return nil
	}))
}

// DestroySender destroys the session and unregisters its sender. A copy in
// flight is not revoked; its shared texture is released once the copy's
// fence retires. Destroying twice is a no-op.
func (svc *Service) DestroySender(ctx context.Context, s *Session) error {
	return svc.do(ctx, func(rc *RenderContext) error {
		svc.publisher.Retire(rc)
		if !s.destroy() {
			return nil
		}
		svc.registry.Unregister(s.Name())
		svc.mu.Lock()
		delete(svc.sessions, s.id)
		svc.mu.Unlock()
		return nil
	})
}

// Recover recreates the shared texture of every session whose handle
// belongs to a lost device, then reactivates it. Hosts call it after
// ErrDeviceLost once the graphics device is usable again; nothing in this
// package retries on its own.
//
// Recover keeps going after a failure and returns all errors joined.
func (svc *Service) Recover(ctx context.Context) error {
	return svc.do(ctx, func(rc *RenderContext) error {
		svc.publisher.Retire(rc)
		var errs []error
		for _, s := range svc.Sessions() {
			if s.State() == StateDestroyed {
				continue
			}
			if h, ok := svc.registry.Lookup(s.Name()); ok && h.Valid() && s.State() == StateActive {
				continue
			}
			h, err := svc.registry.Reregister(s.Name())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.activate(h)
		}
		return errors.Join(errs...)
	})
}

// Session returns the live session publishing under name.
func (svc *Service) Session(name SenderName) (*Session, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, s := range svc.sessions {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns the live sessions ordered by creation.
func (svc *Service) Sessions() []*Session {
	svc.mu.Lock()
	out := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		out = append(out, s)
	}
	svc.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Stats returns a snapshot of service counters.
func (svc *Service) Stats() Stats {
	ps := svc.publisher.Stats()
	svc.mu.Lock()
	n := len(svc.sessions)
	svc.mu.Unlock()
	return Stats{
		Sessions:  n,
		Published: ps.Published,
		Dropped:   ps.Dropped,
		Skipped:   ps.Skipped,
		InFlight:  ps.InFlight,
		Retiring:  svc.registry.Retiring(),
		Epoch:     svc.bridge.Epoch(),
	}
}

// Close destroys every session, waits for copies in flight and releases all
// shared textures. When ctx ends first, the textures and fences of copies
// still in flight are left allocated rather than freed under the GPU.
// Close is idempotent.
func (svc *Service) Close(ctx context.Context) error {
	if svc.closed.Swap(true) {
		return nil
	}
	done := make(chan error, 1)
	err := svc.timeline.Enqueue(func(rc *RenderContext) {
		for _, s := range svc.Sessions() {
			s.destroy()
		}
		err := svc.publisher.Drain(ctx, rc)
		if err != nil {
			svc.publisher.detach(rc)
		}
		svc.registry.Close()
		done <- err
	})
	if err != nil {
		// Timeline already gone: nothing can be in flight any more.
		svc.registry.Close()
	} else {
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		Logger().Warn("texshare: close did not drain cleanly", "err", err)
	}

	svc.mu.Lock()
	svc.sessions = map[uint64]*Session{}
	svc.mu.Unlock()

	if svc.ownsTL {
		svc.timeline.Close()
	}
	svc.unhook()
	Logger().Info("texshare: service closed")
	return err
}

func (svc *Service) do(ctx context.Context, fn func(*RenderContext) error) error {
	if svc.closed.Load() {
		return ErrServiceClosed
	}
	return svc.timeline.Do(ctx, fn)
}
