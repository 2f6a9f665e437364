package transcriber

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/audio"
	"github.com/mavrk/scribed/internal/metrics"
)

// SessionState is the lifecycle state of a streaming session.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StateStopping SessionState = "stopping"
	StateClosed   SessionState = "closed"
	StateFailed   SessionState = "failed"
)

// Terminal reports whether the state allows no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// SessionOptions tune queueing and shutdown behavior.
type SessionOptions struct {
	// QueueCap bounds the outbound frame queue. When the transport stalls
	// and the queue fills, the oldest queued frame is dropped and a
	// warning logged: recent audio wins over unbounded memory growth.
	QueueCap int

	// DrainTimeout bounds how long Stop waits for trailing final results
	// after the last audio frame.
	DrainTimeout time.Duration
}

// DefaultSessionOptions returns the production defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		QueueCap:     64,
		DrainTimeout: 3 * time.Second,
	}
}

// Session owns one bidirectional stream: an outbound queue of audio
// frames and an inbound sequence of transcript events. Sessions are
// single-use; Closed and Failed are terminal and a new recording needs a
// fresh Session.
type Session struct {
	id      string
	cfg     StreamConfig
	adapter StreamingAdapter
	log     zerolog.Logger
	m       *metrics.Metrics
	opts    SessionOptions

	mu        sync.Mutex
	state     SessionState
	failErr   error
	streamID  string
	createdAt time.Time
	outClosed bool

	outbound chan audio.Frame
	events   chan TranscriptEvent

	failOnce sync.Once
	wg       sync.WaitGroup
	writerWg sync.WaitGroup
}

// NewSession creates an Idle session around the given adapter.
func NewSession(adapter StreamingAdapter, cfg StreamConfig, opts SessionOptions, log zerolog.Logger, m *metrics.Metrics) *Session {
	if opts.QueueCap <= 0 {
		opts.QueueCap = DefaultSessionOptions().QueueCap
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultSessionOptions().DrainTimeout
	}
	if m == nil {
		m = metrics.Nop()
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		cfg:       cfg,
		adapter:   adapter,
		log:       log.With().Str("session", id).Logger(),
		m:         m,
		opts:      opts,
		state:     StateIdle,
		createdAt: time.Now(),
		outbound:  make(chan audio.Frame, opts.QueueCap),
		events:    make(chan TranscriptEvent, 100),
	}
}

// ID returns the locally generated session identifier.
func (s *Session) ID() string { return s.id }

// StreamID returns the backend-assigned stream id, empty before Start.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure reason for a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

// Config returns the handshake configuration the session was opened with.
func (s *Session) Config() StreamConfig { return s.cfg }

// Start performs the handshake and launches the outbound writer and
// inbound forwarder. Idle -> Starting -> Active.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateStarting
	s.mu.Unlock()

	streamID, err := s.adapter.Start(ctx, s.cfg)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.failErr = err
		s.mu.Unlock()
		s.m.SessionsFailed.Inc()
		close(s.events)
		return err
	}

	s.mu.Lock()
	s.streamID = streamID
	s.state = StateActive
	s.mu.Unlock()
	s.m.SessionsStarted.Inc()

	s.writerWg.Add(1)
	go s.writeLoop()

	s.wg.Add(1)
	go s.forwardEvents()

	return nil
}

// Enqueue submits a frame for transmission. Never blocks: if the queue
// is full the oldest queued frame is evicted so the most recent audio is
// kept. Frames arriving outside Active are discarded.
func (s *Session) Enqueue(frame audio.Frame) {
	s.mu.Lock()
	if s.state != StateActive || s.outClosed {
		s.mu.Unlock()
		return
	}

	select {
	case s.outbound <- frame:
	default:
		// Queue full: evict the oldest frame, then retry once.
		select {
		case <-s.outbound:
			s.m.FramesDropped.Inc()
			s.log.Warn().Msg("outbound queue full, dropped oldest frame")
		default:
		}
		select {
		case s.outbound <- frame:
		default:
			s.m.FramesDropped.Inc()
		}
	}
	s.m.OutboundQueue.Set(float64(len(s.outbound)))
	s.mu.Unlock()
}

// writeLoop forwards queued frames in submission order. A write error
// fails the session; remaining queued frames are discarded.
func (s *Session) writeLoop() {
	defer s.writerWg.Done()

	for frame := range s.outbound {
		if s.State() == StateFailed {
			continue // drain and discard
		}
		if err := s.adapter.SendFrame(frame.Data); err != nil {
			s.fail(err)
			continue
		}
		s.m.FramesSent.Inc()
		s.m.OutboundQueue.Set(float64(len(s.outbound)))
	}
}

// forwardEvents filters and relays inbound events. Events carrying a
// foreign session id are ignored entirely; a terminal error is relayed
// exactly once.
func (s *Session) forwardEvents() {
	defer s.wg.Done()
	defer close(s.events)

	for ev := range s.adapter.Events() {
		if ev.Err != nil {
			s.fail(ev.Err)
			continue
		}
		if ev.SessionID != "" && ev.SessionID != s.StreamID() {
			s.m.StaleEvents.Inc()
			s.log.Debug().Str("got", ev.SessionID).Msg("ignoring event for foreign session")
			continue
		}
		if ev.IsFinal {
			s.m.FinalEvents.Inc()
		} else {
			s.m.InterimEvents.Inc()
		}
		s.events <- ev
	}
}

// fail records the first terminal error, relays it, and tears the
// transport down. Later errors are ignored.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.state = StateFailed
		s.failErr = err
		if !s.outClosed {
			s.outClosed = true
			close(s.outbound)
		}
		s.mu.Unlock()

		s.m.SessionsFailed.Inc()
		s.log.Error().Err(err).Msg("session failed")

		select {
		case s.events <- TranscriptEvent{SessionID: s.streamID, Err: err}:
		default:
		}

		// Close in the background; the forwarder keeps draining the
		// adapter channel until it closes.
		go s.adapter.Close()
	})
}

// Events returns the filtered inbound event sequence. It closes when the
// session ends.
func (s *Session) Events() <-chan TranscriptEvent {
	return s.events
}

// Stop closes the outbound side first to signal end-of-audio, waits a
// bounded grace period for trailing final events, then releases the
// stream. Active -> Stopping -> Closed. Idempotent on terminal sessions.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateActive && s.state != StateStopping {
		s.state = StateClosed
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	alreadyClosed := s.outClosed
	if !s.outClosed {
		s.outClosed = true
		close(s.outbound)
	}
	s.mu.Unlock()

	if !alreadyClosed {
		// Flush whatever was queued before signalling end-of-audio.
		s.writerWg.Wait()

		graceCtx, cancel := context.WithTimeout(ctx, s.opts.DrainTimeout)
		err := s.adapter.Finalize(graceCtx)
		cancel()
		if err != nil && err != context.DeadlineExceeded {
			s.log.Debug().Err(err).Msg("finalize ended early")
		}
	}

	_ = s.adapter.Close()
	s.wg.Wait()

	s.mu.Lock()
	if s.state != StateFailed {
		s.state = StateClosed
	}
	s.mu.Unlock()

	s.m.SessionDuration.Observe(time.Since(s.createdAt).Seconds())
	return nil
}
