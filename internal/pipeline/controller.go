// Package pipeline drives one scan attempt from camera acquisition through
// analysis to a single ScanOutcome.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/franckalain/sosscan/internal/camera"
	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/errors"
	"github.com/franckalain/sosscan/internal/metrics"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/franckalain/sosscan/internal/models"
	"github.com/franckalain/sosscan/internal/normalize"
	"github.com/franckalain/sosscan/internal/telemetry"
	"github.com/google/uuid"
)

var (
	// ErrAnalysisInProgress is returned when a capture is requested while a run is analyzing
	ErrAnalysisInProgress = errors.NewStd("analysis already in progress")
	// ErrNotStreaming is returned when a capture is requested without a live camera
	ErrNotStreaming = errors.NewStd("camera is not streaming")
	// ErrNotIdle is returned when Start is called on a run that already began
	ErrNotIdle = errors.NewStd("pipeline is not idle")
	// ErrSuperseded is returned when a run was restarted or closed while it was working
	ErrSuperseded = errors.NewStd("run was superseded")
	// ErrNothingToAnalyze is returned when Analyze is called while the camera is
	// being acquired or after the run already succeeded
	ErrNothingToAnalyze = errors.NewStd("nothing to analyze in this state")
	ErrClosed           = errors.NewStd("pipeline is closed")
)

// Submitter sends an analysis request to the model
type Submitter interface {
	Submit(ctx context.Context, req *ml.AnalysisRequest) (*ml.RawResponse, error)
}

// Options wires a controller to its stages
type Options struct {
	Camera   *camera.Session
	Capturer *capture.Capturer
	Builder  *ml.RequestBuilder
	Client   Submitter

	// RequestTimeout bounds each analysis; zero leaves it to the caller's context
	RequestTimeout time.Duration

	Metrics  *metrics.Metrics
	Reporter telemetry.Reporter
	Logger   *slog.Logger

	// OnStateChange is called with the new state on every transition. It runs
	// with the controller locked and must not call back into it.
	OnStateChange func(State)
}

// Controller owns the camera handle, the captured artifact and the outcome of
// the current run. At most one analysis is in flight per controller.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	run      uint64 // bumped on restart and close; stale work compares against it
	runID    string
	handle   *camera.Handle
	artifact *capture.Artifact
	outcome  *models.ScanOutcome
	handoff  *models.Handoff
	cancel   context.CancelFunc
	acquired chan struct{} // closed once the in-flight acquisition has let go of the device
	closed   bool
}

// New creates an idle controller
func New(opts Options) *Controller {
	if opts.Builder == nil {
		opts.Builder = ml.NewRequestBuilder()
	}
	if opts.Reporter == nil {
		opts.Reporter = telemetry.NopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		opts:   opts,
		logger: opts.Logger.With("component", "pipeline"),
		state:  StateIdle,
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID identifies the current run
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Outcome returns the outcome of the current run, nil until it finishes
func (c *Controller) Outcome() *models.ScanOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// ArtifactRef returns the reference of the captured still, empty if none is held
func (c *Controller) ArtifactRef() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact.Ref()
}

// TakeHandoff returns the handoff for the presentation stage. Each handoff is
// returned once; later calls get nil until another run finishes.
func (c *Controller) TakeHandoff() *models.Handoff {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handoff
	c.handoff = nil
	return h
}

// Start acquires the camera and begins streaming
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	ctx, run, done := c.beginAcquireLocked(ctx)
	c.mu.Unlock()

	return c.acquire(ctx, run, done)
}

// CaptureAndAnalyze freezes the current frame, releases the camera and runs the
// analysis. While a run is analyzing further calls return ErrAnalysisInProgress
// and change nothing. The returned outcome is nil only with an error.
func (c *Controller) CaptureAndAnalyze(ctx context.Context) (*models.ScanOutcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	switch c.state {
	case StateAnalyzing:
		c.mu.Unlock()
		return nil, ErrAnalysisInProgress
	case StateStreaming:
	default:
		c.mu.Unlock()
		return nil, ErrNotStreaming
	}

	a, err := c.opts.Capturer.Capture(c.handle)
	if err != nil {
		c.failLocked(err)
		outcome := c.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	c.replaceArtifactLocked(a)
	c.releaseHandleLocked()
	c.setStateLocked(StateCaptured)
	c.logger.Info("captured still", "run", c.runID, "artifact", a.Ref(), "width", a.Width, "height", a.Height, "bytes", len(a.Data))

	run, actx := c.beginAnalysisLocked(ctx)
	c.mu.Unlock()

	return c.analyze(actx, run, a)
}

// Analyze submits the held still again, e.g. after a failed analysis. Without
// a captured still the run fails with MissingInput and the model is not called.
// A succeeded run or one still acquiring the camera returns ErrNothingToAnalyze.
func (c *Controller) Analyze(ctx context.Context) (*models.ScanOutcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	switch c.state {
	case StateAnalyzing:
		c.mu.Unlock()
		return nil, ErrAnalysisInProgress
	case StateAcquiringCamera, StateSucceeded:
		c.mu.Unlock()
		return nil, ErrNothingToAnalyze
	}
	if c.artifact == nil || c.artifact.Released() {
		c.failLocked(errors.Newf("no captured image to analyze").
			Category(errors.CategoryMissingInput).
			Build())
		outcome := c.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	a := c.artifact
	run, actx := c.beginAnalysisLocked(ctx)
	c.mu.Unlock()

	return c.analyze(actx, run, a)
}

// Restart abandons the current run and acquires the camera again. An analysis
// still in flight is cancelled and its response, if any, is discarded.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.logger.Info("restarting run", "run", c.runID, "state", c.state)
	prev := c.acquired
	c.resetLocked()
	ctx, run, done := c.beginAcquireLocked(ctx)
	c.mu.Unlock()

	// The superseded acquisition has been cancelled; the device only accepts
	// one open at a time, so wait for it to give the device back.
	if prev != nil {
		<-prev
	}
	return c.acquire(ctx, run, done)
}

// Close tears the controller down, releasing everything it holds
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.resetLocked()
	c.opts.Camera.Close()
	c.setStateLocked(StateIdle)
}

// beginAcquireLocked moves a fresh run into AcquiringCamera
func (c *Controller) beginAcquireLocked(ctx context.Context) (context.Context, uint64, chan struct{}) {
	c.runID = uuid.NewString()
	c.setStateLocked(StateAcquiringCamera)
	ctx, c.cancel = context.WithCancel(ctx)
	c.acquired = make(chan struct{})
	return ctx, c.run, c.acquired
}

func (c *Controller) acquire(ctx context.Context, run uint64, done chan struct{}) error {
	defer close(done)
	h, err := c.opts.Camera.Acquire(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired == done {
		c.acquired = nil
	}
	if c.closed || run != c.run || c.state != StateAcquiringCamera {
		if run == c.run && c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.opts.Camera.Release(h)
		return ErrSuperseded
	}
	c.cancel()
	c.cancel = nil
	if err != nil {
		c.failLocked(err)
		return nil
	}
	c.handle = h
	c.opts.Metrics.CameraOpened()
	c.setStateLocked(StateStreaming)
	return nil
}

func (c *Controller) beginAnalysisLocked(ctx context.Context) (uint64, context.Context) {
	var cancel context.CancelFunc
	if c.opts.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	c.cancel = cancel
	c.outcome = nil
	c.handoff = nil
	c.setStateLocked(StateAnalyzing)
	return c.run, ctx
}

// analyze runs without the lock; finish decides whether the result still counts
func (c *Controller) analyze(ctx context.Context, run uint64, a *capture.Artifact) (*models.ScanOutcome, error) {
	req, err := c.opts.Builder.Build(a)
	if err != nil {
		return c.finish(run, a, nil, err)
	}

	resp, err := c.opts.Client.Submit(ctx, req)
	if err != nil {
		return c.finish(run, a, nil, err)
	}
	c.opts.Metrics.ObserveAnalysis(resp.Latency)

	assessment, err := normalize.Normalize(resp.Text)
	return c.finish(run, a, assessment, err)
}

func (c *Controller) finish(run uint64, a *capture.Artifact, assessment *models.Assessment, err error) (*models.ScanOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || run != c.run {
		c.opts.Metrics.LateResponseDiscarded()
		c.logger.Info("discarded response of superseded run", "artifact", a.Ref(), "error", err)
		return nil, ErrSuperseded
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err != nil {
		c.failLocked(err)
		return c.outcome, nil
	}

	c.outcome = models.Succeeded(assessment)
	c.handoff = &models.Handoff{RunID: c.runID, ImageRef: a.Ref(), Assessment: assessment}
	c.opts.Metrics.ObserveOutcome(metrics.OutcomeSucceeded)
	c.logger.Info("scan succeeded", "run", c.runID, "artifact", a.Ref())
	c.setStateLocked(StateSucceeded)
	return c.outcome, nil
}

// failLocked ends the run with a classified failure. The camera is released;
// the still stays held so the failure can be shown next to it, and goes with
// the next restart or close.
func (c *Controller) failLocked(err error) {
	category, reason := Classify(err)
	msg := UserMessage(category, reason)

	attrs := []any{"run", c.runID, "category", category, "error", err}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		if excerpt, ok := ee.GetContext()[errors.ContextExcerpt]; ok {
			attrs = append(attrs, "excerpt", excerpt)
		}
	}
	c.logger.Error("scan failed", attrs...)
	c.opts.Reporter.ReportFailure(err, category)
	c.opts.Metrics.ObserveOutcome(string(category))

	c.releaseHandleLocked()
	c.outcome = models.Failed(category, msg)
	c.handoff = &models.Handoff{RunID: c.runID, ImageRef: c.artifact.Ref(), FailureMessage: msg}
	c.setStateLocked(StateFailed)
}

// resetLocked cancels in-flight work and drops everything the run holds
func (c *Controller) resetLocked() {
	c.run++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.replaceArtifactLocked(nil)
	c.releaseHandleLocked()
	c.outcome = nil
	c.handoff = nil
}

func (c *Controller) replaceArtifactLocked(a *capture.Artifact) {
	if c.artifact != nil && c.artifact != a {
		c.artifact.Release()
	}
	c.artifact = a
}

func (c *Controller) releaseHandleLocked() {
	if c.handle == nil {
		return
	}
	c.opts.Camera.Release(c.handle)
	c.handle = nil
	c.opts.Metrics.CameraReleased()
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", "run", c.runID, "from", c.state, "to", s)
	c.state = s
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}
