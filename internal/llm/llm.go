// Package llm drafts clinical notes and billing suggestions from
// finished consultation transcripts.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyTranscript is returned when there is nothing to draft from.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Generator drafts documents from a consultation transcript.
type Generator interface {
	// GenerateNote drafts a clinical note using the requested template.
	GenerateNote(ctx context.Context, req NoteRequest) (string, error)

	// SuggestBilling proposes MBS item numbers for the consultation.
	SuggestBilling(ctx context.Context, transcript, visitType string) (string, error)
}

// NoteResult bundles the outputs of a full drafting pass.
type NoteResult struct {
	Note     string
	Billing  string
	Duration time.Duration
}

// Draft runs note generation and billing suggestion against the same
// transcript. Billing failures are soft: the note still comes back and
// Billing is left empty.
func Draft(ctx context.Context, g Generator, req NoteRequest) (NoteResult, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return NoteResult{}, ErrEmptyTranscript
	}

	start := time.Now()

	note, err := g.GenerateNote(ctx, req)
	if err != nil {
		return NoteResult{}, err
	}

	billing, err := g.SuggestBilling(ctx, req.Transcript, req.VisitType)
	if err != nil {
		billing = ""
	}

	return NoteResult{
		Note:     note,
		Billing:  billing,
		Duration: time.Since(start),
	}, nil
}
