// Package transcriber streams PCM audio to the medical transcription
// backend and yields incremental transcript events.
package transcriber

import (
	"context"
	"time"
)

// EntityCategory identifies the kind of medical entity tagged in a final
// transcript span.
type EntityCategory string

const (
	EntityMedication EntityCategory = "MEDICATION"
	EntityCondition  EntityCategory = "MEDICAL_CONDITION"
	EntityProcedure  EntityCategory = "TEST_TREATMENT_PROCEDURE"
	EntityAnatomy    EntityCategory = "ANATOMY"
	EntityTestName   EntityCategory = "TEST_NAME"
	EntityTestValue  EntityCategory = "TEST_VALUE"
	EntityTestUnit   EntityCategory = "TEST_UNIT"
)

// Entity is a tagged span of recognized medical information returned
// alongside final transcript text.
type Entity struct {
	Category   EntityCategory
	Text       string
	Type       string
	Confidence float64
}

// TranscriptEvent is one unit received from the backend. Events with a
// non-nil Err are terminal: the stream is dead and no further transcript
// events will follow.
type TranscriptEvent struct {
	SessionID string
	ResultID  string
	Text      string
	Speaker   string
	IsFinal   bool
	Entities  []Entity
	Timestamp time.Time
	Err       error
}

// Mode selects how the backend segments speech.
type Mode string

const (
	ModeConversation Mode = "CONVERSATION"
	ModeDictation    Mode = "DICTATION"
)

// Specialty selects the medical vocabulary profile.
type Specialty string

const (
	SpecialtyPrimaryCare Specialty = "PRIMARYCARE"
	SpecialtyCardiology  Specialty = "CARDIOLOGY"
	SpecialtyNeurology   Specialty = "NEUROLOGY"
	SpecialtyOncology    Specialty = "ONCOLOGY"
	SpecialtyRadiology   Specialty = "RADIOLOGY"
	SpecialtyUrology     Specialty = "UROLOGY"
)

// Specialties returns all supported vocabulary profiles.
func Specialties() []Specialty {
	return []Specialty{
		SpecialtyPrimaryCare,
		SpecialtyCardiology,
		SpecialtyNeurology,
		SpecialtyOncology,
		SpecialtyRadiology,
		SpecialtyUrology,
	}
}

// Valid reports whether s names a supported specialty.
func (s Specialty) Valid() bool {
	for _, known := range Specialties() {
		if s == known {
			return true
		}
	}
	return false
}

// StreamConfig is the one-time handshake sent when a stream opens. The
// configuration of a live stream is never mutated; changing specialty or
// mode requires a new stream.
type StreamConfig struct {
	Language      string
	Specialty     Specialty
	Mode          Mode
	SpeakerLabels bool
}

// DefaultStreamConfig returns the handshake defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Language:      "en-US",
		Specialty:     SpecialtyPrimaryCare,
		Mode:          ModeConversation,
		SpeakerLabels: true,
	}
}

// StreamingAdapter is the seam to a streaming transcription backend.
type StreamingAdapter interface {
	// Start opens the stream and performs the configuration handshake.
	// It returns the backend-assigned stream id.
	Start(ctx context.Context, cfg StreamConfig) (string, error)

	// SendFrame forwards one frame of s16le PCM audio.
	SendFrame(frame []byte) error

	// Events returns the inbound event sequence. The channel closes when
	// the stream ends; a terminal error arrives as an event with Err set.
	Events() <-chan TranscriptEvent

	// Finalize signals end of audio and waits, bounded by ctx, for the
	// backend to flush trailing final results.
	Finalize(ctx context.Context) error

	// Close releases the connection. Idempotent.
	Close() error
}
