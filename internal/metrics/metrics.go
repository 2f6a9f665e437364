// Package metrics exposes Prometheus counters for the streaming pipeline.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	// Audio pipeline
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	BytesSent      prometheus.Counter
	OutboundQueue  prometheus.Gauge

	// Inbound events
	EventsReceived prometheus.Counter
	FinalEvents    prometheus.Counter
	InterimEvents  prometheus.Counter
	ParseErrors    prometheus.Counter
	StaleEvents    prometheus.Counter

	// Session lifecycle
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// LLM
	NotesGenerated prometheus.Counter
	NoteDuration   prometheus.Histogram
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}

	m := &Metrics{
		registry:        reg,
		FramesCaptured:  factory("scribed_frames_captured_total", "Audio frames read from the capture device"),
		FramesSent:      factory("scribed_frames_sent_total", "Audio frames written to the transcription stream"),
		FramesDropped:   factory("scribed_frames_dropped_total", "Audio frames dropped from the outbound queue under backpressure"),
		BytesSent:       factory("scribed_audio_bytes_sent_total", "PCM bytes written to the transcription stream"),
		EventsReceived:  factory("scribed_transcript_events_total", "Transcript events received from the backend"),
		FinalEvents:     factory("scribed_final_events_total", "Final transcript events applied to the transcript"),
		InterimEvents:   factory("scribed_interim_events_total", "Interim transcript events previewed"),
		ParseErrors:     factory("scribed_event_parse_errors_total", "Malformed inbound events dropped"),
		StaleEvents:     factory("scribed_stale_events_total", "Events ignored because they belong to another session"),
		SessionsStarted: factory("scribed_sessions_started_total", "Transcription sessions started"),
		SessionsFailed:  factory("scribed_sessions_failed_total", "Transcription sessions that ended in a stream error"),
		NotesGenerated:  factory("scribed_notes_generated_total", "Clinical notes generated"),
	}

	m.OutboundQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scribed_outbound_queue_frames",
		Help: "Frames currently queued for transmission",
	})
	m.SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribed_session_duration_seconds",
		Help:    "Duration of transcription sessions",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.NoteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribed_note_duration_seconds",
		Help:    "Time spent generating a clinical note",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(m.OutboundQueue, m.SessionDuration, m.NoteDuration)

	return m
}

// Serve exposes the registry on addr (loopback only by convention) until
// ctx is cancelled. Errors other than server shutdown are logged, not fatal.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn().Err(err).Msg("metrics listener stopped")
	}
}

// Nop returns a metrics set that is registered nowhere, for tests and for
// runs with metrics disabled.
func Nop() *Metrics { return New() }
