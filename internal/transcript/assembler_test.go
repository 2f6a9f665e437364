package transcript

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/transcriber"
)

func finalEvent(id, text string) transcriber.TranscriptEvent {
	return transcriber.TranscriptEvent{
		ResultID:  id,
		Text:      text,
		IsFinal:   true,
		Timestamp: time.Now(),
	}
}

func interimEvent(text string) transcriber.TranscriptEvent {
	return transcriber.TranscriptEvent{Text: text, IsFinal: false}
}

func TestAssembler_FinalAppendsWithSeparator(t *testing.T) {
	a := New(zerolog.Nop())

	a.Apply(finalEvent("r-1", "patient presents with headache"))
	a.Apply(finalEvent("r-2", "onset two days ago"))

	want := "patient presents with headache onset two days ago "
	if got := a.Transcript(); got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
	if len(a.Segments()) != 2 {
		t.Errorf("segments = %d, want 2", len(a.Segments()))
	}
}

func TestAssembler_InterimDoesNotMutate(t *testing.T) {
	a := New(zerolog.Nop())

	var previews []string
	var interims []bool
	a.OnUpdate(func(text string, interim bool) {
		previews = append(previews, text)
		interims = append(interims, interim)
	})

	a.Apply(finalEvent("r-1", "blood pressure is"))
	a.Apply(interimEvent("one forty over"))
	a.Apply(interimEvent("one forty over ninety"))

	if got := a.Transcript(); got != "blood pressure is " {
		t.Errorf("transcript mutated by interim: %q", got)
	}
	if len(a.Segments()) != 1 {
		t.Errorf("segments = %d, want 1", len(a.Segments()))
	}

	if len(previews) != 3 {
		t.Fatalf("updates = %d, want 3", len(previews))
	}
	if interims[0] {
		t.Error("final update flagged interim")
	}
	if previews[1] != "blood pressure is one forty over" {
		t.Errorf("interim preview = %q", previews[1])
	}
	if previews[2] != "blood pressure is one forty over ninety" || !interims[2] {
		t.Errorf("interim preview = %q interim=%v", previews[2], interims[2])
	}
}

func TestAssembler_DuplicateFinalIgnored(t *testing.T) {
	a := New(zerolog.Nop())

	var completed int
	a.OnSegment(func(Segment) { completed++ })

	a.Apply(finalEvent("r-1", "take one tablet daily"))
	a.Apply(finalEvent("r-1", "take one tablet daily"))

	if got := a.Transcript(); got != "take one tablet daily " {
		t.Errorf("transcript = %q, duplicate final was applied", got)
	}
	if completed != 1 {
		t.Errorf("segment callback fired %d times, want 1", completed)
	}
}

func TestAssembler_EmptyFinalDiscarded(t *testing.T) {
	a := New(zerolog.Nop())

	a.Apply(finalEvent("r-1", ""))
	a.Apply(finalEvent("r-2", "   "))

	if a.Transcript() != "" {
		t.Errorf("transcript = %q, want empty", a.Transcript())
	}
	if len(a.Segments()) != 0 {
		t.Errorf("segments = %d, want 0", len(a.Segments()))
	}
}

func TestAssembler_ErrorEventIgnored(t *testing.T) {
	a := New(zerolog.Nop())

	a.Apply(finalEvent("r-1", "before failure"))
	a.Apply(transcriber.TranscriptEvent{Err: &transcriber.StreamError{}})

	if got := a.Transcript(); got != "before failure " {
		t.Errorf("transcript = %q, partial transcript must survive failure", got)
	}
}

func TestAssembler_SpeakerAttribution(t *testing.T) {
	tests := []struct {
		name    string
		speaker string
		text    string
		want    string
	}{
		{"channel zero is doctor", "0", "how are you today", SpeakerDoctor},
		{"other channel is patient", "1", "not great", SpeakerPatient},
		{"doctor phrases", "", "I recommend we check your blood pressure", SpeakerDoctor},
		{"patient phrases", "", "it hurts when I breathe and it is getting worse", SpeakerPatient},
		{"no cues", "", "okay then", SpeakerUnknown},
		{"tied cues", "", "i feel we should follow up", SpeakerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(zerolog.Nop())
			ev := finalEvent("r-1", tt.text)
			ev.Speaker = tt.speaker
			a.Apply(ev)

			segs := a.Segments()
			if len(segs) != 1 {
				t.Fatalf("segments = %d, want 1", len(segs))
			}
			if segs[0].Speaker != tt.want {
				t.Errorf("speaker = %q, want %q", segs[0].Speaker, tt.want)
			}
		})
	}
}

func TestAssembler_GroupsEntities(t *testing.T) {
	a := New(zerolog.Nop())

	ev := finalEvent("r-1", "started lisinopril for hypertension after the echo")
	ev.Entities = []transcriber.Entity{
		{Category: transcriber.EntityMedication, Text: "lisinopril", Type: "GENERIC_NAME", Confidence: 0.97},
		{Category: transcriber.EntityCondition, Text: "hypertension", Type: "DX_NAME", Confidence: 0.95},
		{Category: transcriber.EntityProcedure, Text: "echo", Confidence: 0.82},
		{Category: transcriber.EntityAnatomy, Text: "heart"},
		{Category: transcriber.EntityTestName, Text: "blood pressure"},
		{Category: transcriber.EntityTestValue, Text: "140/90"},
		{Category: transcriber.EntityTestUnit, Text: "mmHg"},
		{Category: "SOMETHING_NEW", Text: "ignored"},
	}
	a.Apply(ev)

	sum := a.Entities()
	if len(sum.Medications) != 1 || sum.Medications[0].Text != "lisinopril" {
		t.Errorf("medications = %+v", sum.Medications)
	}
	if len(sum.Conditions) != 1 || sum.Conditions[0].Text != "hypertension" {
		t.Errorf("conditions = %+v", sum.Conditions)
	}
	if len(sum.Procedures) != 1 {
		t.Errorf("procedures = %+v", sum.Procedures)
	}
	if len(sum.Anatomy) != 1 {
		t.Errorf("anatomy = %+v", sum.Anatomy)
	}
	if len(sum.Tests) != 2 {
		t.Errorf("tests = %+v, name and value share a bucket", sum.Tests)
	}

	segs := a.Segments()
	if len(segs[0].Entities) != 8 {
		t.Errorf("segment keeps raw entities, got %d", len(segs[0].Entities))
	}
}

func TestAssembler_Reset(t *testing.T) {
	a := New(zerolog.Nop())

	a.Apply(finalEvent("r-1", "some text"))
	a.Reset()

	if a.Transcript() != "" || len(a.Segments()) != 0 {
		t.Error("reset should clear transcript and segments")
	}

	// result ids from before the reset are valid again
	a.Apply(finalEvent("r-1", "fresh start"))
	if a.Transcript() != "fresh start " {
		t.Errorf("transcript = %q", a.Transcript())
	}
}
