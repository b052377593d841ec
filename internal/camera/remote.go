package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/franckalain/sosscan/internal/errors"
)

// RemoteDevice is a camera living on a connected client. The client streams
// frames which are pushed into the device; opening the device asks the client
// to start its camera and waits for the first frame.
type RemoteDevice struct {
	onStart func()
	onStop  func()

	mu      sync.Mutex
	current *remoteFeed
}

// NewRemoteDevice creates a remote device. onStart is called when the device is
// opened and onStop when its track stops; either may be nil.
func NewRemoteDevice(onStart, onStop func()) *RemoteDevice {
	return &RemoteDevice{onStart: onStart, onStop: onStop}
}

// Open asks the client for its camera and waits for the first frame, a
// reported camera error, or ctx cancellation.
func (d *RemoteDevice) Open(ctx context.Context) (Feed, error) {
	feed := newRemoteFeed()
	feed.track = NewTrack("video", func() { d.detach(feed) })

	d.mu.Lock()
	if d.current != nil {
		d.mu.Unlock()
		return nil, errors.NewStd("camera already open")
	}
	d.current = feed
	d.mu.Unlock()

	if d.onStart != nil {
		d.onStart()
	}

	select {
	case <-feed.first:
		return feed, nil
	case <-feed.failed:
		feed.track.Stop()
		return nil, feed.failErr
	case <-ctx.Done():
		feed.track.Stop()
		return nil, ctx.Err()
	}
}

// PushFrame delivers a frame from the client. It reports false when no feed is
// open, which is the case once the track was stopped.
func (d *RemoteDevice) PushFrame(img image.Image) bool {
	d.mu.Lock()
	feed := d.current
	d.mu.Unlock()
	if feed == nil || img == nil {
		return false
	}
	feed.setFrame(img)
	return true
}

// PushEncoded decodes an encoded still (JPEG, PNG, ...) and pushes it
func (d *RemoteDevice) PushEncoded(data []byte) (bool, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to decode frame: %w", err)
	}
	return d.PushFrame(img), nil
}

// Fail reports that the client could not provide its camera. A pending Open
// returns ErrPermissionDenied or ErrNoDevice wrapped with reason.
func (d *RemoteDevice) Fail(reason string, denied bool) {
	d.mu.Lock()
	feed := d.current
	d.mu.Unlock()
	if feed == nil {
		return
	}
	cause := ErrNoDevice
	if denied {
		cause = ErrPermissionDenied
	}
	feed.fail(fmt.Errorf("%w: %s", cause, reason))
}

// Streaming reports whether a feed is currently open
func (d *RemoteDevice) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

func (d *RemoteDevice) detach(feed *remoteFeed) {
	d.mu.Lock()
	if d.current == feed {
		d.current = nil
	}
	d.mu.Unlock()
	if d.onStop != nil {
		d.onStop()
	}
}

type remoteFeed struct {
	track *Track

	mu    sync.RWMutex
	frame image.Image

	first     chan struct{}
	firstOnce sync.Once
	failed    chan struct{}
	failOnce  sync.Once
	failErr   error
}

func newRemoteFeed() *remoteFeed {
	return &remoteFeed{
		first:  make(chan struct{}),
		failed: make(chan struct{}),
	}
}

func (f *remoteFeed) Tracks() []*Track { return []*Track{f.track} }

func (f *remoteFeed) Frame() image.Image {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frame
}

func (f *remoteFeed) setFrame(img image.Image) {
	f.mu.Lock()
	f.frame = img
	f.mu.Unlock()
	f.firstOnce.Do(func() { close(f.first) })
}

func (f *remoteFeed) fail(err error) {
	f.failOnce.Do(func() {
		f.failErr = err
		close(f.failed)
	})
}
