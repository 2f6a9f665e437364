// Package transcript assembles the incremental event stream into an
// authoritative transcript with attributed segments and grouped medical
// entities.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/transcriber"
)

// Segment is one finalized utterance with its attributed speaker.
type Segment struct {
	Speaker   string              `json:"speaker"`
	Text      string              `json:"text"`
	Timestamp time.Time           `json:"timestamp"`
	Entities  []transcriber.Entity `json:"entities,omitempty"`
}

// EntityInfo is one recognized span inside an entity group.
type EntityInfo struct {
	Text       string  `json:"text"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EntitySummary groups recognized medical entities across the whole
// consultation.
type EntitySummary struct {
	Medications []EntityInfo `json:"medications,omitempty"`
	Conditions  []EntityInfo `json:"conditions,omitempty"`
	Procedures  []EntityInfo `json:"procedures,omitempty"`
	Anatomy     []EntityInfo `json:"anatomy,omitempty"`
	Tests       []EntityInfo `json:"tests,omitempty"`
}

// UpdateFunc receives the preview text after each event. interim is true
// for previews that include unfinalized speech; the authoritative
// transcript itself is only advanced by final events.
type UpdateFunc func(text string, interim bool)

// SegmentFunc receives each finalized segment exactly once.
type SegmentFunc func(Segment)

// Assembler folds transcript events into the growing consultation
// record. Interim events never mutate state; a final event appends its
// text once, keyed by result id.
type Assembler struct {
	log zerolog.Logger

	mu         sync.Mutex
	transcript strings.Builder
	segments   []Segment
	entities   EntitySummary
	seen       map[string]bool

	onUpdate  UpdateFunc
	onSegment SegmentFunc
}

// New returns an empty assembler.
func New(log zerolog.Logger) *Assembler {
	return &Assembler{
		log:  log,
		seen: make(map[string]bool),
	}
}

// OnUpdate registers the preview callback.
func (a *Assembler) OnUpdate(fn UpdateFunc) {
	a.mu.Lock()
	a.onUpdate = fn
	a.mu.Unlock()
}

// OnSegment registers the finalized-segment callback.
func (a *Assembler) OnSegment(fn SegmentFunc) {
	a.mu.Lock()
	a.onSegment = fn
	a.mu.Unlock()
}

// Apply folds one event into the record. Events with Err set are
// ignored here; failure handling belongs to the session owner.
func (a *Assembler) Apply(ev transcriber.TranscriptEvent) {
	if ev.Err != nil {
		return
	}
	if ev.IsFinal {
		a.applyFinal(ev)
		return
	}
	a.applyInterim(ev)
}

func (a *Assembler) applyInterim(ev transcriber.TranscriptEvent) {
	if ev.Text == "" {
		return
	}
	a.mu.Lock()
	preview := a.transcript.String() + ev.Text
	update := a.onUpdate
	a.mu.Unlock()

	if update != nil {
		update(preview, true)
	}
}

func (a *Assembler) applyFinal(ev transcriber.TranscriptEvent) {
	if strings.TrimSpace(ev.Text) == "" {
		return
	}

	a.mu.Lock()
	if ev.ResultID != "" && a.seen[ev.ResultID] {
		a.mu.Unlock()
		a.log.Debug().Str("result", ev.ResultID).Msg("duplicate final ignored")
		return
	}
	if ev.ResultID != "" {
		a.seen[ev.ResultID] = true
	}

	a.transcript.WriteString(ev.Text)
	a.transcript.WriteString(" ")

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	segment := Segment{
		Speaker:   resolveSpeaker(ev),
		Text:      ev.Text,
		Timestamp: ts,
		Entities:  ev.Entities,
	}
	a.segments = append(a.segments, segment)
	a.groupEntities(ev.Entities)

	text := a.transcript.String()
	update := a.onUpdate
	complete := a.onSegment
	a.mu.Unlock()

	if complete != nil {
		complete(segment)
	}
	if update != nil {
		update(text, false)
	}
}

// groupEntities buckets recognized spans. Test names and values share
// one bucket; units and unrecognized categories are skipped. Caller
// holds the lock.
func (a *Assembler) groupEntities(entities []transcriber.Entity) {
	for _, e := range entities {
		info := EntityInfo{Text: e.Text, Type: e.Type, Confidence: e.Confidence}
		switch e.Category {
		case transcriber.EntityMedication:
			a.entities.Medications = append(a.entities.Medications, info)
		case transcriber.EntityCondition:
			a.entities.Conditions = append(a.entities.Conditions, info)
		case transcriber.EntityProcedure:
			a.entities.Procedures = append(a.entities.Procedures, info)
		case transcriber.EntityAnatomy:
			a.entities.Anatomy = append(a.entities.Anatomy, info)
		case transcriber.EntityTestName, transcriber.EntityTestValue:
			a.entities.Tests = append(a.entities.Tests, info)
		}
	}
}

// Transcript returns the authoritative transcript so far. Only final
// events contribute; a partial transcript survives a mid-session failure.
func (a *Assembler) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript.String()
}

// Segments returns a copy of the finalized segments in arrival order.
func (a *Assembler) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

// Entities returns the grouped entity summary so far.
func (a *Assembler) Entities() EntitySummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entities
}

// Reset discards all accumulated state.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript.Reset()
	a.segments = nil
	a.entities = EntitySummary{}
	a.seen = make(map[string]bool)
}
