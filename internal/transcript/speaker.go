package transcript

import (
	"strings"

	"github.com/mavrk/scribed/internal/transcriber"
)

const (
	SpeakerDoctor  = "Doctor"
	SpeakerPatient = "Patient"
	SpeakerUnknown = "Speaker"
)

// Phrase cues for attributing an utterance when the backend supplies no
// speaker label. Clinical vocabulary leans Doctor, first-person symptom
// reporting leans Patient.
var doctorPhrases = []string{
	"i recommend", "prescribed", "diagnosis", "examination shows",
	"let me examine", "blood pressure", "temperature",
	"any allergies", "medical history", "follow up",
	"take this medication", "dosage", "side effects",
}

var patientPhrases = []string{
	"i feel", "it hurts", "i have been", "my symptoms",
	"started yesterday", "for days", "getting worse",
	"i am taking", "allergic to", "family history",
}

// resolveSpeaker attributes a final utterance. An explicit channel label
// wins: label "0" is the doctor's channel, anything else the patient's.
// Without a label the phrase heuristic needs a strict majority, else the
// utterance stays unattributed.
func resolveSpeaker(ev transcriber.TranscriptEvent) string {
	if ev.Speaker != "" {
		if ev.Speaker == "0" {
			return SpeakerDoctor
		}
		return SpeakerPatient
	}
	return detectSpeaker(ev.Text)
}

func detectSpeaker(text string) string {
	lower := strings.ToLower(text)

	var doctorScore, patientScore int
	for _, p := range doctorPhrases {
		if strings.Contains(lower, p) {
			doctorScore++
		}
	}
	for _, p := range patientPhrases {
		if strings.Contains(lower, p) {
			patientScore++
		}
	}

	switch {
	case doctorScore > patientScore:
		return SpeakerDoctor
	case patientScore > doctorScore:
		return SpeakerPatient
	default:
		return SpeakerUnknown
	}
}
