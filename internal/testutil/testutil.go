// Package testutil provides in-memory doubles for the capture and
// transcription seams.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mavrk/scribed/internal/audio"
	"github.com/mavrk/scribed/internal/transcriber"
	"github.com/mavrk/scribed/internal/usage"
)

// MockAdapter is an in-memory StreamingAdapter. Tests drive the inbound
// side with Emit and inspect the outbound side with SentFrames.
type MockAdapter struct {
	mu        sync.Mutex
	StreamID  string
	StartErr  error
	SendErr   error
	sent      [][]byte
	events    chan transcriber.TranscriptEvent
	closeOnce sync.Once
	started   bool
	finalized bool
}

// NewMockAdapter creates an adapter reporting the given stream id.
func NewMockAdapter(streamID string) *MockAdapter {
	return &MockAdapter{
		StreamID: streamID,
		events:   make(chan transcriber.TranscriptEvent, 64),
	}
}

func (m *MockAdapter) Start(ctx context.Context, cfg transcriber.StreamConfig) (string, error) {
	if m.StartErr != nil {
		return "", m.StartErr
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return m.StreamID, nil
}

func (m *MockAdapter) SendFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.sent = append(m.sent, cp)
	return nil
}

func (m *MockAdapter) Events() <-chan transcriber.TranscriptEvent { return m.events }

func (m *MockAdapter) Finalize(ctx context.Context) error {
	m.mu.Lock()
	m.finalized = true
	m.mu.Unlock()
	return nil
}

func (m *MockAdapter) Close() error {
	m.closeOnce.Do(func() { close(m.events) })
	return nil
}

// Emit pushes one event onto the inbound channel.
func (m *MockAdapter) Emit(ev transcriber.TranscriptEvent) {
	if ev.SessionID == "" {
		ev.SessionID = m.StreamID
	}
	m.events <- ev
}

// EmitFinal pushes a final transcript event.
func (m *MockAdapter) EmitFinal(resultID, text, speaker string) {
	m.Emit(transcriber.TranscriptEvent{
		ResultID:  resultID,
		Text:      text,
		Speaker:   speaker,
		IsFinal:   true,
		Timestamp: time.Now(),
	})
}

// SentFrames returns a copy of the frames sent so far.
func (m *MockAdapter) SentFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Started reports whether Start succeeded.
func (m *MockAdapter) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Finalized reports whether Finalize was called.
func (m *MockAdapter) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// MockRecorder is an in-memory capture source. Tests push frames with
// Feed and failures with Fail.
type MockRecorder struct {
	mu       sync.Mutex
	StartErr error
	frames   chan audio.Frame
	errs     chan error
	stopOnce sync.Once
	started  bool
}

// NewMockRecorder creates an idle mock recorder.
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		frames: make(chan audio.Frame, 64),
		errs:   make(chan error, 1),
	}
}

func (r *MockRecorder) Start(ctx context.Context) (<-chan audio.Frame, <-chan error, error) {
	if r.StartErr != nil {
		return nil, nil, r.StartErr
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return r.frames, r.errs, nil
}

func (r *MockRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.frames)
		close(r.errs)
	})
}

// Feed pushes one captured frame.
func (r *MockRecorder) Feed(data []byte) {
	r.frames <- audio.Frame{Data: data, Timestamp: time.Now()}
}

// Fail pushes one capture error.
func (r *MockRecorder) Fail(err error) {
	r.errs <- err
}

// Started reports whether Start succeeded.
func (r *MockRecorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// MockMeter is an entitlement double with a configurable decision.
type MockMeter struct {
	mu       sync.Mutex
	Decision usage.Decision
	recorded int
}

// NewMockMeter creates a meter that allows everything.
func NewMockMeter() *MockMeter {
	return &MockMeter{Decision: usage.Decision{Allowed: true, Remaining: -1}}
}

func (m *MockMeter) CanProceed() usage.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Decision
}

func (m *MockMeter) Record() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded++
	return nil
}

// Recorded returns how many transcriptions were counted.
func (m *MockMeter) Recorded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorded
}
