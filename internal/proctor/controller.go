package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

const (
	DefaultTickInterval     = time.Second
	DefaultSnapshotInterval = 120 * time.Second
	DefaultAdvisoryTTL      = 3 * time.Second
	reportTimeout           = 15 * time.Second
)

var DefaultThresholds = []int{300, 60}

type Config struct {
	SessionID        string
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	AdvisoryTTL      time.Duration
	Thresholds       []int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.AdvisoryTTL <= 0 {
		c.AdvisoryTTL = DefaultAdvisoryTTL
	}
	if c.Thresholds == nil {
		c.Thresholds = DefaultThresholds
	}
	return c
}

type submitResult struct {
	resp *models.SubmitResponse
	err  error
}

// Controller runs one candidate's test session: countdown, snapshot capture,
// integrity reporting and the terminal submission. All state transitions happen
// on the goroutine running Run.
type Controller struct {
	api    API
	camera CameraOpener
	view   View
	clock  clockwork.Clock
	cfg    Config

	signals   chan models.IntegrityKind
	submitReq chan struct{}
	results   chan submitResult
	dismiss   chan int
	done      chan struct{}

	state atomic.Int32

	codeMu sync.Mutex
	code   *string

	// loop-owned
	thresholds    *thresholds
	inFlight      bool
	autoSubmitted bool
	nextAdvisory  int
	background    sync.WaitGroup
}

func NewController(api API, camera CameraOpener, view View, clock clockwork.Clock, cfg Config) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg = cfg.withDefaults()
	c := &Controller{
		api:        api,
		camera:     camera,
		view:       view,
		clock:      clock,
		cfg:        cfg,
		signals:    make(chan models.IntegrityKind, 64),
		submitReq:  make(chan struct{}, 1),
		results:    make(chan submitResult, 1),
		dismiss:    make(chan int, 16),
		done:       make(chan struct{}),
		thresholds: newThresholds(cfg.Thresholds),
	}
	c.state.Store(int32(StateLoading))
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// SetCode replaces the editor contents submitted on the next submission.
func (c *Controller) SetCode(code string) {
	c.codeMu.Lock()
	defer c.codeMu.Unlock()
	c.code = &code
}

func (c *Controller) Code() string {
	c.codeMu.Lock()
	defer c.codeMu.Unlock()
	if c.code == nil {
		return ""
	}
	return *c.code
}

// Signal reports an integrity event observed by the page and returns whether the
// triggering event's default action must be prevented. Signals outside an
// active session are not reported.
func (c *Controller) Signal(kind models.IntegrityKind) bool {
	if st := c.State(); st == StateActive || st == StateSubmitting {
		select {
		case c.signals <- kind:
		default:
			log.Warn().Str("kind", string(kind)).Msg("integrity signal dropped")
		}
	}
	return kind.Suppressed()
}

// RequestSubmit asks for a user-initiated submission. It is a no-op while a
// submission is already pending.
func (c *Controller) RequestSubmit() {
	select {
	case c.submitReq <- struct{}{}:
	default:
	}
}

// Run drives the session until it reaches a terminal state or ctx is done. The
// camera is released and every timer stopped before Run returns. Background
// reports and an in-flight submission are not cancelled by ctx.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.view.StateChanged(StateLoading)

	session, err := c.api.GetSession(ctx, c.cfg.SessionID)
	if err != nil {
		msg := "Failed to load test session"
		if errors.Is(err, ErrSessionNotFound) {
			msg = "Test session not found"
		}
		c.showAdvisory(AdvisorySession, msg, true)
		c.setState(StateFailed)
		return fmt.Errorf("load session: %w", err)
	}

	c.codeMu.Lock()
	if c.code == nil {
		starter := session.StarterCode
		c.code = &starter
	}
	c.codeMu.Unlock()

	cam, err := c.openCamera(ctx)
	if cam != nil {
		defer func() {
			if err := cam.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to release camera")
			}
		}()
	}
	if err != nil {
		c.showAdvisory(AdvisoryCamera, "Camera access denied. The test continues without proctoring.", true)
	}

	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	var snapshots <-chan time.Time
	if cam != nil {
		snapTicker := c.clock.NewTicker(c.cfg.SnapshotInterval)
		defer snapTicker.Stop()
		snapshots = snapTicker.Chan()
	}

	remaining := session.RemainingSeconds(c.clock.Now())
	c.setState(StateActive)
	c.thresholds.arm(remaining)
	c.onRemaining(ctx, remaining)

	for {
		if c.State().Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.Chan():
			c.onRemaining(ctx, session.RemainingSeconds(c.clock.Now()))

		case <-snapshots:
			if c.State() == StateActive {
				c.captureSnapshot(ctx, cam)
			}

		case kind := <-c.signals:
			c.reportIntegrity(ctx, kind)

		case <-c.submitReq:
			c.startSubmit(ctx)

		case res := <-c.results:
			c.finishSubmit(res)

		case id := <-c.dismiss:
			c.view.DismissAdvisory(id)
		}
	}
}

// Wait blocks until Run has returned and every fire-and-forget report it
// started has finished. It must only be called once Run has been started.
func (c *Controller) Wait() {
	<-c.done
	c.background.Wait()
}

func (c *Controller) openCamera(ctx context.Context) (Camera, error) {
	if c.camera == nil {
		return nil, errors.New("no camera available")
	}
	cam, err := c.camera.Open(ctx)
	if err != nil {
		log.Info().Err(err).Msg("camera unavailable, continuing without snapshots")
		return nil, err
	}
	return cam, nil
}

func (c *Controller) onRemaining(ctx context.Context, remaining int) {
	c.view.Remaining(remaining)

	if t, ok := c.thresholds.cross(remaining); ok {
		c.showAdvisory(AdvisoryTime, thresholdMessage(t), false)
	}

	if remaining <= 0 && !c.autoSubmitted {
		c.autoSubmitted = true
		c.startSubmit(ctx)
	}
}

func (c *Controller) startSubmit(ctx context.Context) {
	if c.inFlight || c.State().Terminal() {
		return
	}
	c.inFlight = true
	c.setState(StateSubmitting)

	code := c.Code()
	submitCtx := context.WithoutCancel(ctx)
	go func() {
		resp, err := c.api.Submit(submitCtx, c.cfg.SessionID, code)
		c.results <- submitResult{resp: resp, err: err}
	}()
}

func (c *Controller) finishSubmit(res submitResult) {
	c.inFlight = false

	switch {
	case res.err == nil:
		c.showAdvisory(AdvisorySubmitted, "Test submitted successfully", true)
		c.setState(StateSucceeded)
	case errors.Is(res.err, ErrAlreadySubmitted):
		c.showAdvisory(AdvisorySubmitted, "This test has already been submitted", true)
		c.setState(StateSucceeded)
	case errors.Is(res.err, ErrDeadlineExceeded):
		c.showAdvisory(AdvisorySession, "The time limit for this test has passed", true)
		c.setState(StateFailed)
	default:
		log.Warn().Err(res.err).Str("session_id", c.cfg.SessionID).Msg("submission failed")
		c.showAdvisory(AdvisorySubmitError, "Failed to submit test. Please try again.", true)
		c.setState(StateActive)
	}
}

func (c *Controller) captureSnapshot(ctx context.Context, cam Camera) {
	image, contentType, err := cam.Capture(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot capture failed")
		return
	}
	at := c.clock.Now()
	c.goBackground(ctx, func(ctx context.Context) {
		if err := c.api.UploadSnapshot(ctx, c.cfg.SessionID, image, contentType, at); err != nil {
			log.Warn().Err(err).Msg("snapshot upload failed")
		}
	})
}

func (c *Controller) reportIntegrity(ctx context.Context, kind models.IntegrityKind) {
	at := c.clock.Now()
	c.goBackground(ctx, func(ctx context.Context) {
		if err := c.api.ReportIntegrityEvent(ctx, c.cfg.SessionID, kind, at); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("integrity report failed")
		}
	})
	c.showAdvisory(AdvisoryIntegrity, kind.Advisory(), false)
}

func (c *Controller) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	c.background.Add(1)
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	go func() {
		defer c.background.Done()
		defer cancel()
		fn(reportCtx)
	}()
}

func (c *Controller) showAdvisory(kind AdvisoryKind, message string, persistent bool) {
	c.nextAdvisory++
	a := Advisory{ID: c.nextAdvisory, Kind: kind, Message: message, Persistent: persistent}
	c.view.ShowAdvisory(a)
	if persistent {
		return
	}
	c.clock.AfterFunc(c.cfg.AdvisoryTTL, func() {
		select {
		case c.dismiss <- a.ID:
		case <-c.done:
		}
	})
}

func (c *Controller) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.view.StateChanged(s)
	}
}
