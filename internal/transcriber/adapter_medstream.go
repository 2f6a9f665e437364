package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/audio"
	"github.com/mavrk/scribed/internal/metrics"
)

// EndpointConfig locates the streaming transcription service.
type EndpointConfig struct {
	BaseURL string // e.g. wss://transcribe.example.com
	Path    string // e.g. /v1/medical/stream
}

// MedstreamAdapter implements StreamingAdapter over the backend's
// websocket protocol: a JSON configuration handshake, binary PCM frames
// outbound, JSON transcript events inbound, and a CloseStream message to
// end the audio.
type MedstreamAdapter struct {
	endpoint EndpointConfig
	apiKey   string
	log      zerolog.Logger
	metrics  *metrics.Metrics

	conn     *websocket.Conn
	eventsCh chan TranscriptEvent
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	streamID string

	handshakeTimeout time.Duration

	// signalled when the backend acknowledges CloseStream
	endOfStream chan struct{}
}

// Wire messages. The handshake mirrors the backend's medical streaming
// parameters: fixed PCM encoding and sample rate, vocabulary specialty,
// conversation vs dictation mode, and speaker labelling.
type medstreamStart struct {
	Type              string `json:"type"`
	LanguageCode      string `json:"language_code"`
	MediaEncoding     string `json:"media_encoding"`
	SampleRateHertz   int    `json:"sample_rate_hertz"`
	Specialty         string `json:"specialty"`
	Mode              string `json:"mode"`
	ShowSpeakerLabels bool   `json:"show_speaker_labels"`
}

type medstreamClose struct {
	Type string `json:"type"`
}

type medstreamMessage struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id,omitempty"`
	ResultID   string            `json:"result_id,omitempty"`
	IsPartial  bool              `json:"is_partial,omitempty"`
	Transcript string            `json:"transcript,omitempty"`
	Speaker    string            `json:"speaker,omitempty"`
	Entities   []medstreamEntity `json:"entities,omitempty"`
	Error      *medstreamError   `json:"error,omitempty"`
}

type medstreamEntity struct {
	Category string  `json:"category"`
	Text     string  `json:"text"`
	Type     string  `json:"type,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

type medstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMedstreamAdapter creates a streaming adapter for the medical
// transcription backend.
func NewMedstreamAdapter(endpoint EndpointConfig, apiKey string, log zerolog.Logger, m *metrics.Metrics) *MedstreamAdapter {
	if m == nil {
		m = metrics.Nop()
	}
	return &MedstreamAdapter{
		endpoint:         endpoint,
		apiKey:           apiKey,
		log:              log,
		metrics:          m,
		eventsCh:         make(chan TranscriptEvent, 100),
		handshakeTimeout: 10 * time.Second,
		endOfStream:      make(chan struct{}),
	}
}

// Start dials the backend, sends the configuration handshake, and waits
// for the ready acknowledgment carrying the stream id.
func (a *MedstreamAdapter) Start(ctx context.Context, cfg StreamConfig) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return "", ErrSessionActive
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	wsURL, err := a.buildURL()
	if err != nil {
		return "", &StreamError{Err: fmt.Errorf("build url: %w", err)}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+a.apiKey)

	dialCtx, cancel := context.WithTimeout(a.ctx, a.handshakeTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			a.log.Debug().Int("status", resp.StatusCode).Msg("dial rejected")
		}
		return "", &StreamError{Err: fmt.Errorf("websocket dial: %w", err)}
	}
	a.conn = conn

	start := medstreamStart{
		Type:              "StartStream",
		LanguageCode:      cfg.Language,
		MediaEncoding:     "pcm",
		SampleRateHertz:   audio.SampleRate,
		Specialty:         string(cfg.Specialty),
		Mode:              string(cfg.Mode),
		ShowSpeakerLabels: cfg.SpeakerLabels,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return "", &StreamError{Err: fmt.Errorf("send handshake: %w", err)}
	}

	streamID, err := a.awaitReady(conn)
	if err != nil {
		conn.Close()
		return "", err
	}
	a.streamID = streamID
	a.started = true

	a.wg.Add(1)
	go a.readLoop()

	a.log.Debug().Str("stream", streamID).Str("specialty", string(cfg.Specialty)).Msg("stream ready")
	return streamID, nil
}

// awaitReady reads until the ready ack. A rejection or anything else
// before the ack is a handshake failure.
func (a *MedstreamAdapter) awaitReady(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(a.handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", &StreamError{Err: fmt.Errorf("handshake read: %w", err)}
	}

	var msg medstreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", &StreamError{Err: fmt.Errorf("handshake parse: %w", err)}
	}

	switch msg.Type {
	case "Ready":
		if msg.SessionID == "" {
			return "", &StreamError{Err: fmt.Errorf("ready ack missing session id")}
		}
		return msg.SessionID, nil
	case "Error":
		return "", &StreamError{Err: fmt.Errorf("handshake rejected: %s", msg.Error.Message)}
	default:
		return "", &StreamError{Err: fmt.Errorf("unexpected handshake reply %q", msg.Type)}
	}
}

func (a *MedstreamAdapter) buildURL() (string, error) {
	u, err := url.Parse(a.endpoint.BaseURL + a.endpoint.Path)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// readLoop consumes inbound messages until the connection ends. A
// malformed event is dropped and logged; only transport errors terminate
// the stream.
func (a *MedstreamAdapter) readLoop() {
	defer a.wg.Done()
	defer close(a.eventsCh)

	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			a.eventsCh <- TranscriptEvent{
				SessionID: a.streamID,
				Err:       &StreamError{Err: fmt.Errorf("websocket read: %w", err)},
			}
			return
		}

		var msg medstreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			a.metrics.ParseErrors.Inc()
			a.log.Warn().Err(err).Msg("malformed event dropped")
			continue
		}

		switch msg.Type {
		case "Transcript":
			a.metrics.EventsReceived.Inc()
			a.eventsCh <- a.toEvent(msg)

		case "End":
			select {
			case <-a.endOfStream:
			default:
				close(a.endOfStream)
			}
			return

		case "Error":
			errMsg := "backend error"
			if msg.Error != nil {
				errMsg = msg.Error.Message
				if msg.Error.Code != "" {
					errMsg = msg.Error.Code + ": " + errMsg
				}
			}
			a.eventsCh <- TranscriptEvent{
				SessionID: a.streamID,
				Err:       &StreamError{Err: fmt.Errorf("%s", errMsg)},
			}
			return

		default:
			a.log.Debug().Str("type", msg.Type).Msg("unknown message type")
		}
	}
}

func (a *MedstreamAdapter) toEvent(msg medstreamMessage) TranscriptEvent {
	ev := TranscriptEvent{
		SessionID: msg.SessionID,
		ResultID:  msg.ResultID,
		Text:      msg.Transcript,
		Speaker:   msg.Speaker,
		IsFinal:   !msg.IsPartial,
		Timestamp: time.Now(),
	}
	if ev.SessionID == "" {
		ev.SessionID = a.streamID
	}
	for _, e := range msg.Entities {
		ev.Entities = append(ev.Entities, Entity{
			Category:   EntityCategory(e.Category),
			Text:       e.Text,
			Type:       e.Type,
			Confidence: e.Score,
		})
	}
	return ev
}

// SendFrame writes one binary PCM frame. Write errors are terminal; the
// caller tears the session down and starts a new one.
func (a *MedstreamAdapter) SendFrame(frame []byte) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return ErrNotStarted
	}
	conn := a.conn
	a.mu.Unlock()

	select {
	case <-a.ctx.Done():
		return a.ctx.Err()
	default:
	}

	a.mu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	a.mu.Unlock()
	if err != nil {
		return &StreamError{Err: fmt.Errorf("websocket write: %w", err)}
	}
	a.metrics.BytesSent.Add(float64(len(frame)))
	return nil
}

// Events returns the inbound event channel.
func (a *MedstreamAdapter) Events() <-chan TranscriptEvent {
	return a.eventsCh
}

// Finalize sends CloseStream and waits for the backend's end-of-stream
// ack so trailing final results are not lost. Bounded by ctx.
func (a *MedstreamAdapter) Finalize(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	conn := a.conn
	a.mu.Unlock()

	a.mu.Lock()
	err := conn.WriteJSON(medstreamClose{Type: "CloseStream"})
	a.mu.Unlock()
	if err != nil {
		return &StreamError{Err: fmt.Errorf("finalize write: %w", err)}
	}

	select {
	case <-a.endOfStream:
		return nil
	case <-ctx.Done():
		a.log.Debug().Msg("finalize grace period elapsed")
		return ctx.Err()
	case <-a.ctx.Done():
		return a.ctx.Err()
	}
}

// Close releases the connection and waits for the reader to finish.
// Idempotent.
func (a *MedstreamAdapter) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	conn := a.conn
	a.started = false
	a.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}

	a.wg.Wait()
	return nil
}
