// Package capture freezes a camera frame into an encoded still artifact.
package capture

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/franckalain/sosscan/internal/camera"
	"github.com/franckalain/sosscan/internal/errors"
)

// MIMEType is the format of every artifact
const MIMEType = "image/jpeg"

const (
	DefaultQuality      = 92
	DefaultMaxDimension = 1600
)

// Options tunes the encoder
type Options struct {
	Quality      int // JPEG quality, 1-100
	MaxDimension int // longest edge in pixels, 0 keeps the frame size
}

// Capturer turns the current frame of a camera handle into an Artifact
type Capturer struct {
	store  *Store
	opts   Options
	logger *slog.Logger
}

// NewCapturer creates a capturer registering artifacts in store
func NewCapturer(store *Store, opts Options, logger *slog.Logger) *Capturer {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxDimension < 0 {
		opts.MaxDimension = 0
	}
	return &Capturer{store: store, opts: opts, logger: logger.With("component", "capture")}
}

// Capture encodes the latest frame of h. On success all tracks of h are
// stopped; the still replaces the live feed.
func (c *Capturer) Capture(h *camera.Handle) (*Artifact, error) {
	if !h.Active() {
		return nil, captureFailed(errors.NewStd("camera handle is not active"), "inactive")
	}
	width, height := h.FrameSize()
	if width == 0 || height == 0 {
		return nil, captureFailed(errors.NewStd("no frame available"), "empty_frame")
	}

	frame := h.Frame()
	if c.opts.MaxDimension > 0 && (width > c.opts.MaxDimension || height > c.opts.MaxDimension) {
		frame = imaging.Fit(frame, c.opts.MaxDimension, c.opts.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(c.opts.Quality)); err != nil {
		return nil, captureFailed(fmt.Errorf("failed to encode frame: %w", err), "encode")
	}

	b := frame.Bounds()
	data := buf.Bytes()
	a := &Artifact{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Data:       data,
		MIMEType:   MIMEType,
		CapturedAt: time.Now(),
		store:      c.store,
	}
	a.ID = c.store.register(data, MIMEType)

	h.StopTracks()

	c.logger.Debug("frame captured", "artifact", a.ID, "width", a.Width, "height", a.Height, "bytes", len(data))
	return a, nil
}

func captureFailed(err error, reason string) error {
	return errors.New(fmt.Errorf("capture failed: %w", err)).
		Category(errors.CategoryCaptureFailed).
		Context(errors.ContextReason, reason).
		Build()
}
