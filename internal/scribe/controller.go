// Package scribe coordinates a consultation: microphone capture, the
// streaming transcription session, and transcript assembly.
package scribe

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/audio"
	"github.com/mavrk/scribed/internal/metrics"
	"github.com/mavrk/scribed/internal/transcriber"
	"github.com/mavrk/scribed/internal/transcript"
	"github.com/mavrk/scribed/internal/usage"
)

// ErrAlreadyRecording is reported when Start is called mid-session.
var ErrAlreadyRecording = errors.New("a recording is already in progress")

// Recorder is the microphone capture seam.
type Recorder interface {
	Start(ctx context.Context) (<-chan audio.Frame, <-chan error, error)
	Stop()
}

// Meter is the entitlement seam.
type Meter interface {
	CanProceed() usage.Decision
	Record() error
}

// AdapterFactory builds a fresh streaming adapter per session. Sessions
// are single-use, so every recording needs a new one.
type AdapterFactory func() transcriber.StreamingAdapter

// RecorderFactory builds a fresh recorder per session.
type RecorderFactory func() Recorder

// Callbacks fan consultation progress out to the surrounding surfaces.
// All callbacks may be nil.
type Callbacks struct {
	// OnUpdate receives the preview text after each transcript event.
	OnUpdate transcript.UpdateFunc
	// OnSegment receives each finalized segment exactly once.
	OnSegment transcript.SegmentFunc
	// OnError receives session failures and rejected starts.
	OnError func(error)
	// OnStateChange fires when recording starts or stops.
	OnStateChange func(recording bool)
}

// Controller owns at most one live consultation at a time. The
// assembled transcript outlives the session: a stream failure keeps
// everything finalized so far.
type Controller struct {
	log         zerolog.Logger
	m           *metrics.Metrics
	newAdapter  AdapterFactory
	newRecorder RecorderFactory
	meter       Meter
	sessionOpts transcriber.SessionOptions

	mu        sync.Mutex
	streamCfg transcriber.StreamConfig
	active    *liveSession
	assembler *transcript.Assembler
	callbacks Callbacks
}

// liveSession bundles everything torn down together when a recording
// ends.
type liveSession struct {
	session  *transcriber.Session
	recorder Recorder
	cancel   context.CancelFunc
	done     chan struct{} // closed when the event pump drains
}

// New creates a controller.
func New(newAdapter AdapterFactory, newRecorder RecorderFactory, meter Meter, cfg transcriber.StreamConfig, opts transcriber.SessionOptions, log zerolog.Logger, m *metrics.Metrics) *Controller {
	if m == nil {
		m = metrics.Nop()
	}
	return &Controller{
		log:         log,
		m:           m,
		newAdapter:  newAdapter,
		newRecorder: newRecorder,
		meter:       meter,
		sessionOpts: opts,
		streamCfg:   cfg,
		assembler:   transcript.New(log),
	}
}

// SetCallbacks replaces the callback set. Safe before or between
// recordings.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
	c.assembler.OnUpdate(cb.OnUpdate)
	c.assembler.OnSegment(cb.OnSegment)
}

func (c *Controller) reportError(err error) {
	c.mu.Lock()
	onError := c.callbacks.OnError
	c.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func (c *Controller) reportState(recording bool) {
	c.mu.Lock()
	onState := c.callbacks.OnStateChange
	c.mu.Unlock()
	if onState != nil {
		onState(recording)
	}
}

// Start opens a new consultation recording. It reports false, with the
// reason routed through OnError, when a session is already live, the
// usage allowance is exhausted, or the stream cannot be opened. The
// allowance is only consumed after the stream is up.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		c.reportError(ErrAlreadyRecording)
		return false
	}
	cfg := c.streamCfg
	c.mu.Unlock()

	if d := c.meter.CanProceed(); !d.Allowed {
		c.reportError(&usage.QuotaError{Limit: usage.FreeDailyLimit})
		return false
	}

	live, err := c.open(ctx, cfg)
	if err != nil {
		c.reportError(err)
		return false
	}

	c.mu.Lock()
	if c.active != nil {
		// lost the race to another Start
		c.mu.Unlock()
		c.teardown(live)
		c.reportError(ErrAlreadyRecording)
		return false
	}
	c.active = live
	c.mu.Unlock()

	if err := c.meter.Record(); err != nil {
		c.log.Warn().Err(err).Msg("failed to record usage")
	}

	c.reportState(true)
	return true
}

// open starts a session and recorder pair and wires the pumps.
func (c *Controller) open(ctx context.Context, cfg transcriber.StreamConfig) (*liveSession, error) {
	sessionCtx, cancel := context.WithCancel(context.Background())

	session := transcriber.NewSession(c.newAdapter(), cfg, c.sessionOpts, c.log, c.m)
	if err := session.Start(ctx); err != nil {
		cancel()
		return nil, err
	}

	recorder := c.newRecorder()
	frames, recErrs, err := recorder.Start(sessionCtx)
	if err != nil {
		session.Stop(ctx)
		cancel()
		return nil, err
	}

	live := &liveSession{
		session:  session,
		recorder: recorder,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		for frame := range frames {
			c.m.FramesCaptured.Inc()
			session.Enqueue(frame)
		}
	}()

	go func() {
		for err := range recErrs {
			c.log.Error().Err(err).Msg("capture error")
			c.reportError(err)
			c.stopLive(live)
			return
		}
	}()

	go c.pumpEvents(live)

	return live, nil
}

// pumpEvents folds session events into the assembler until the stream
// ends. A terminal error tears the recording down but keeps the
// transcript assembled so far.
func (c *Controller) pumpEvents(live *liveSession) {
	defer close(live.done)

	for ev := range live.session.Events() {
		if ev.Err != nil {
			c.reportError(ev.Err)
			go c.stopLive(live)
			continue
		}
		c.assembler.Apply(ev)
	}
}

// stopLive ends a recording if it is still the active one.
func (c *Controller) stopLive(live *liveSession) {
	c.mu.Lock()
	if c.active != live {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	c.teardown(live)
	c.reportState(false)
}

// teardown stops capture first so no new frames queue, then lets the
// session drain trailing finals.
func (c *Controller) teardown(live *liveSession) {
	live.recorder.Stop()
	live.cancel()
	live.session.Stop(context.Background())
	<-live.done
}

// Stop ends the live recording and returns the assembled transcript and
// segments. Idle controllers return the accumulated record unchanged.
func (c *Controller) Stop() (string, []transcript.Segment) {
	c.mu.Lock()
	live := c.active
	c.active = nil
	c.mu.Unlock()

	if live != nil {
		c.teardown(live)
		c.reportState(false)
	}
	return c.assembler.Transcript(), c.assembler.Segments()
}

// SetSpecialty changes the vocabulary profile. A live session is
// restarted with the new profile; the assembled transcript carries
// over.
func (c *Controller) SetSpecialty(ctx context.Context, specialty transcriber.Specialty) error {
	if !specialty.Valid() {
		return errors.New("unknown specialty: " + string(specialty))
	}

	c.mu.Lock()
	c.streamCfg.Specialty = specialty
	live := c.active
	cfg := c.streamCfg
	c.mu.Unlock()

	if live == nil {
		return nil
	}

	c.log.Info().Str("specialty", string(specialty)).Msg("restarting stream with new specialty")

	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
	c.teardown(live)

	replacement, err := c.open(ctx, cfg)
	if err != nil {
		c.reportState(false)
		c.reportError(err)
		return err
	}

	c.mu.Lock()
	if c.active != nil {
		// a concurrent Start claimed the slot during the restart; the
		// replacement loses so at most one session stays live
		c.mu.Unlock()
		c.teardown(replacement)
		return nil
	}
	c.active = replacement
	c.mu.Unlock()
	return nil
}

// Clear discards the assembled transcript, segments, and entities.
func (c *Controller) Clear() {
	c.assembler.Reset()
}

// Recording reports whether a session is live.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Specialty returns the current vocabulary profile.
func (c *Controller) Specialty() transcriber.Specialty {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCfg.Specialty
}

// Transcript returns the authoritative transcript assembled so far.
func (c *Controller) Transcript() string {
	return c.assembler.Transcript()
}

// Segments returns the finalized segments assembled so far.
func (c *Controller) Segments() []transcript.Segment {
	return c.assembler.Segments()
}

// Entities returns the grouped medical entities assembled so far.
func (c *Controller) Entities() transcript.EntitySummary {
	return c.assembler.Entities()
}
