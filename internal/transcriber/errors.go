package transcriber

import "errors"

// StreamError marks a transport-level failure: network reset, handshake
// rejection, auth failure. Terminal for the session; the caller must
// start a fresh session, the stream does not self-heal.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	if e == nil || e.Err == nil {
		return "transcription stream error"
	}
	return "transcription stream error: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsStreamError reports whether err is (or wraps) a StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

var (
	// ErrNotStarted is returned when audio is sent before the handshake.
	ErrNotStarted = errors.New("stream not started")
	// ErrSessionActive is returned when Start is called on a session that
	// is not Idle. Sessions are single-use.
	ErrSessionActive = errors.New("session already started")
	// ErrSessionClosed is returned for operations on a terminal session.
	ErrSessionClosed = errors.New("session closed")
)
