// Package camera acquires and releases video capture devices for the scan pipeline.
package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franckalain/sosscan/internal/errors"
	"github.com/google/uuid"
)

var (
	// ErrPermissionDenied is reported by devices when the user refused camera access
	ErrPermissionDenied = errors.NewStd("camera permission denied")
	// ErrNoDevice is reported by devices when no camera is present
	ErrNoDevice = errors.NewStd("no camera device")
)

// Track is one media track of an open device
type Track struct {
	id     string
	kind   string
	active atomic.Bool
	once   sync.Once
	onStop func()
}

// NewTrack creates an active track. onStop, if set, runs once when the track stops.
func NewTrack(kind string, onStop func()) *Track {
	t := &Track{id: uuid.New().String(), kind: kind, onStop: onStop}
	t.active.Store(true)
	return t
}

func (t *Track) ID() string   { return t.id }
func (t *Track) Kind() string { return t.kind }
func (t *Track) Active() bool { return t.active.Load() }

// Stop ends the track. Safe to call more than once.
func (t *Track) Stop() {
	t.once.Do(func() {
		t.active.Store(false)
		if t.onStop != nil {
			t.onStop()
		}
	})
}

// Feed is what a Device yields once opened
type Feed interface {
	// Tracks returns the media tracks backing the feed
	Tracks() []*Track
	// Frame returns the most recent frame, or nil if none arrived yet
	Frame() image.Image
}

// Device is a source of live frames
type Device interface {
	// Open requests access to the device. It may block until the device
	// delivers its first frame or refuses access.
	Open(ctx context.Context) (Feed, error)
}

// Handle is an open capture device owned by a Session
type Handle struct {
	id       string
	feed     Feed
	openedAt time.Time
	released atomic.Bool
}

func (h *Handle) ID() string { return h.id }

// Tracks returns the handle's track set
func (h *Handle) Tracks() []*Track { return h.feed.Tracks() }

// Frame returns the latest frame of the feed
func (h *Handle) Frame() image.Image { return h.feed.Frame() }

// Active reports whether the handle is unreleased and has at least one live track
func (h *Handle) Active() bool {
	if h == nil || h.released.Load() {
		return false
	}
	for _, t := range h.feed.Tracks() {
		if t.Active() {
			return true
		}
	}
	return false
}

// FrameSize returns the dimensions of the latest frame, zero if there is none
func (h *Handle) FrameSize() (width, height int) {
	frame := h.feed.Frame()
	if frame == nil {
		return 0, 0
	}
	b := frame.Bounds()
	return b.Dx(), b.Dy()
}

// StopTracks stops every track of the handle. The handle stays owned by its session.
func (h *Handle) StopTracks() {
	for _, t := range h.feed.Tracks() {
		t.Stop()
	}
}

// Session acquires handles from a device and guarantees their release
type Session struct {
	device Device
	logger *slog.Logger

	mu   sync.Mutex
	open map[*Handle]struct{}
}

// NewSession creates a session over device
func NewSession(device Device, logger *slog.Logger) *Session {
	return &Session{
		device: device,
		logger: logger.With("component", "camera"),
		open:   make(map[*Handle]struct{}),
	}
}

// Acquire opens the device. Failures carry errors.CategoryCameraUnavailable.
func (s *Session) Acquire(ctx context.Context) (*Handle, error) {
	feed, err := s.device.Open(ctx)
	if err != nil {
		s.logger.Warn("camera acquisition failed", "error", err)
		return nil, errors.New(fmt.Errorf("camera unavailable: %w", err)).
			Category(errors.CategoryCameraUnavailable).
			Context(errors.ContextReason, err.Error()).
			Build()
	}
	if len(feed.Tracks()) == 0 {
		return nil, errors.Newf("camera unavailable: device opened without tracks").
			Category(errors.CategoryCameraUnavailable).
			Context(errors.ContextReason, "no tracks").
			Build()
	}

	h := &Handle{id: uuid.New().String(), feed: feed, openedAt: time.Now()}
	s.mu.Lock()
	s.open[h] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("camera acquired", "handle", h.id, "tracks", len(feed.Tracks()))
	return h, nil
}

// Release stops all tracks of h and forgets it. Nil and released handles are ignored.
func (s *Session) Release(h *Handle) {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.StopTracks()

	s.mu.Lock()
	delete(s.open, h)
	s.mu.Unlock()

	s.logger.Debug("camera released", "handle", h.id, "held", time.Since(h.openedAt))
}

// Use acquires a handle, runs fn with it and releases it on every exit path
func (s *Session) Use(ctx context.Context, fn func(*Handle) error) error {
	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Release(h)
	return fn(h)
}

// OpenHandles returns the number of handles acquired and not yet released
func (s *Session) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Close releases every handle the session still holds
func (s *Session) Close() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.open))
	for h := range s.open {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.Release(h)
	}
}
