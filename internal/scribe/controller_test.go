package scribe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/metrics"
	"github.com/mavrk/scribed/internal/testutil"
	"github.com/mavrk/scribed/internal/transcriber"
	"github.com/mavrk/scribed/internal/usage"
)

type harness struct {
	controller *Controller
	meter      *testutil.MockMeter
	metrics    *metrics.Metrics

	mu        sync.Mutex
	adapters  []*testutil.MockAdapter
	recorders []*testutil.MockRecorder

	errs   chan error
	states chan bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		meter:   testutil.NewMockMeter(),
		metrics: metrics.New(),
		errs:    make(chan error, 16),
		states:  make(chan bool, 16),
	}

	newAdapter := func() transcriber.StreamingAdapter {
		h.mu.Lock()
		defer h.mu.Unlock()
		a := testutil.NewMockAdapter("stream-1")
		h.adapters = append(h.adapters, a)
		return a
	}
	newRecorder := func() Recorder {
		h.mu.Lock()
		defer h.mu.Unlock()
		r := testutil.NewMockRecorder()
		h.recorders = append(h.recorders, r)
		return r
	}

	h.controller = New(newAdapter, newRecorder, h.meter,
		transcriber.DefaultStreamConfig(), transcriber.SessionOptions{}, zerolog.Nop(), h.metrics)
	h.controller.SetCallbacks(Callbacks{
		OnError:       func(err error) { h.errs <- err },
		OnStateChange: func(rec bool) { h.states <- rec },
	})
	return h
}

func (h *harness) adapter(i int) *testutil.MockAdapter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adapters[i]
}

func (h *harness) recorder(i int) *testutil.MockRecorder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recorders[i]
}

func (h *harness) wantError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error callback")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_StartStop(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}
	if !h.controller.Recording() {
		t.Error("controller should be recording")
	}
	if h.meter.Recorded() != 1 {
		t.Errorf("usage recorded %d times, want 1", h.meter.Recorded())
	}

	h.adapter(0).EmitFinal("r-1", "patient is well", "0")
	waitFor(t, func() bool { return h.controller.Transcript() != "" }, "transcript never updated")

	text, segments := h.controller.Stop()
	if text != "patient is well " {
		t.Errorf("transcript = %q", text)
	}
	if len(segments) != 1 || segments[0].Speaker != "Doctor" {
		t.Errorf("segments = %+v", segments)
	}
	if h.controller.Recording() {
		t.Error("controller should be idle after Stop")
	}
	if !h.adapter(0).Finalized() {
		t.Error("Stop should finalize the stream")
	}
}

func TestController_RejectsConcurrentStart(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("first Start() should succeed")
	}
	if h.controller.Start(context.Background()) {
		t.Error("second Start() should be rejected")
	}
	if err := h.wantError(t); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("error = %v, want ErrAlreadyRecording", err)
	}
	if h.meter.Recorded() != 1 {
		t.Errorf("rejected start must not consume the allowance, recorded = %d", h.meter.Recorded())
	}

	h.controller.Stop()
}

func TestController_QuotaExhaustedBlocksStart(t *testing.T) {
	h := newHarness(t)
	h.meter.Decision = usage.Decision{Allowed: false, Reason: "daily limit reached"}

	if h.controller.Start(context.Background()) {
		t.Fatal("Start() should be rejected when the allowance is exhausted")
	}

	err := h.wantError(t)
	var quota *usage.QuotaError
	if !errors.As(err, &quota) {
		t.Errorf("error = %v, want QuotaError", err)
	}
	if len(h.adapters) != 0 {
		t.Error("no stream should be opened when the quota blocks the start")
	}
}

func TestController_StreamOpenFailureDoesNotConsumeQuota(t *testing.T) {
	h := newHarness(t)

	failing := func() transcriber.StreamingAdapter {
		a := testutil.NewMockAdapter("stream-1")
		a.StartErr = &transcriber.StreamError{Err: errors.New("dial refused")}
		return a
	}
	h.controller.newAdapter = failing

	if h.controller.Start(context.Background()) {
		t.Fatal("Start() should fail when the stream cannot be opened")
	}
	if !transcriber.IsStreamError(h.wantError(t)) {
		t.Error("failure reason should be the stream error")
	}
	if h.meter.Recorded() != 0 {
		t.Errorf("failed start must not consume the allowance, recorded = %d", h.meter.Recorded())
	}
}

func TestController_FramesFlowToStream(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}

	h.recorder(0).Feed([]byte{1, 2})
	h.recorder(0).Feed([]byte{3, 4})

	waitFor(t, func() bool { return len(h.adapter(0).SentFrames()) == 2 }, "frames never reached the stream")

	if got := promtest.ToFloat64(h.metrics.FramesCaptured); got != 2 {
		t.Errorf("frames captured counter = %v, want 2", got)
	}

	h.controller.Stop()
}

func TestController_StreamFailureKeepsPartialTranscript(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}

	h.adapter(0).EmitFinal("r-1", "history of hypertension", "")
	waitFor(t, func() bool { return h.controller.Transcript() != "" }, "transcript never updated")

	h.adapter(0).Emit(transcriber.TranscriptEvent{
		Err: &transcriber.StreamError{Err: errors.New("connection reset")},
	})

	if !transcriber.IsStreamError(h.wantError(t)) {
		t.Error("stream failure should reach OnError")
	}
	waitFor(t, func() bool { return !h.controller.Recording() }, "controller never returned to idle")

	if got := h.controller.Transcript(); got != "history of hypertension " {
		t.Errorf("transcript = %q, partial transcript must survive the failure", got)
	}

	// a fresh recording works after the failure
	if !h.controller.Start(context.Background()) {
		t.Error("Start() after failure should succeed with a fresh session")
	}
	h.controller.Stop()
}

func TestController_CaptureFailureStopsRecording(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}

	h.recorder(0).Fail(errors.New("pw-record exited"))

	if h.wantError(t) == nil {
		t.Error("capture failure should reach OnError")
	}
	waitFor(t, func() bool { return !h.controller.Recording() }, "controller never returned to idle")
}

func TestController_SetSpecialtyRestartsLiveSession(t *testing.T) {
	h := newHarness(t)

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}

	h.adapter(0).EmitFinal("r-1", "before the switch", "")
	waitFor(t, func() bool { return h.controller.Transcript() != "" }, "transcript never updated")

	if err := h.controller.SetSpecialty(context.Background(), transcriber.SpecialtyCardiology); err != nil {
		t.Fatalf("SetSpecialty() error = %v", err)
	}
	if h.controller.Specialty() != transcriber.SpecialtyCardiology {
		t.Errorf("specialty = %v", h.controller.Specialty())
	}
	if len(h.adapters) != 2 {
		t.Fatalf("adapters opened = %d, want 2 (session restarted)", len(h.adapters))
	}

	h.adapter(1).EmitFinal("r-2", "after the switch", "")
	waitFor(t, func() bool {
		return strings.Contains(h.controller.Transcript(), "after the switch")
	}, "restarted session events never arrived")

	if got := h.controller.Transcript(); !strings.Contains(got, "before the switch") {
		t.Errorf("transcript = %q, must carry over across the restart", got)
	}

	h.controller.Stop()
}

// gatedAdapter parks the stream handshake until the gate opens.
type gatedAdapter struct {
	*testutil.MockAdapter
	gate <-chan struct{}
}

func (g *gatedAdapter) Start(ctx context.Context, cfg transcriber.StreamConfig) (string, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.MockAdapter.Start(ctx, cfg)
}

func TestController_SetSpecialtyLosesRaceToConcurrentStart(t *testing.T) {
	h := newHarness(t)

	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	defer release()

	orig := h.controller.newAdapter
	var calls int32
	h.controller.newAdapter = func() transcriber.StreamingAdapter {
		a := orig().(*testutil.MockAdapter)
		if atomic.AddInt32(&calls, 1) == 2 {
			return &gatedAdapter{MockAdapter: a, gate: gate}
		}
		return a
	}

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() should succeed")
	}

	setDone := make(chan error, 1)
	go func() {
		setDone <- h.controller.SetSpecialty(context.Background(), transcriber.SpecialtyCardiology)
	}()

	// the replacement is parked in its handshake, leaving the slot free
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, "restart never reached the handshake")

	if !h.controller.Start(context.Background()) {
		t.Fatal("Start() during the restart window should succeed")
	}

	release()
	if err := <-setDone; err != nil {
		t.Fatalf("SetSpecialty() error = %v", err)
	}

	if !h.controller.Recording() {
		t.Error("the concurrently started session must stay live")
	}
	waitFor(t, func() bool { return h.adapter(1).Finalized() }, "losing replacement was never torn down")
	if h.adapter(2).Finalized() {
		t.Error("winning session must not be torn down")
	}

	h.controller.Stop()
}

func TestController_SetSpecialtyRejectsUnknown(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.SetSpecialty(context.Background(), transcriber.Specialty("DERMATOLOGY")); err == nil {
		t.Error("unknown specialty should be rejected")
	}
}

func TestController_SetSpecialtyWhileIdle(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.SetSpecialty(context.Background(), transcriber.SpecialtyNeurology); err != nil {
		t.Fatalf("SetSpecialty() error = %v", err)
	}
	if len(h.adapters) != 0 {
		t.Error("idle specialty change should not open a stream")
	}

	h.controller.Start(context.Background())
	h.controller.Stop()
}

func TestController_Clear(t *testing.T) {
	h := newHarness(t)

	h.controller.Start(context.Background())
	h.adapter(0).EmitFinal("r-1", "to be discarded", "")
	waitFor(t, func() bool { return h.controller.Transcript() != "" }, "transcript never updated")
	h.controller.Stop()

	h.controller.Clear()
	if h.controller.Transcript() != "" || len(h.controller.Segments()) != 0 {
		t.Error("Clear should discard the assembled record")
	}
}
