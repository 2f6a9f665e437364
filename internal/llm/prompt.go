package llm

import (
	"fmt"
	"time"
)

// NoteTemplate selects the clinical note layout.
type NoteTemplate string

const (
	TemplateSOAP     NoteTemplate = "soap"
	TemplateConsult  NoteTemplate = "consult"
	TemplateProgress NoteTemplate = "progress"
)

// Valid reports whether t names a known template.
func (t NoteTemplate) Valid() bool {
	switch t {
	case TemplateSOAP, TemplateConsult, TemplateProgress:
		return true
	}
	return false
}

// NoteRequest carries everything needed to draft a clinical note.
type NoteRequest struct {
	Transcript  string
	PatientName string
	VisitType   string
	Template    NoteTemplate
	When        time.Time
}

const soapPrompt = `You are a medical scribe. Generate a professional SOAP note from the following medical consultation transcript.

IMPORTANT INSTRUCTIONS:
- Extract actual information from the transcript only
- Use medical terminology appropriately
- Be concise but thorough
- Include specific details mentioned in the conversation
- Format using MARKDOWN with proper headers and bullet points
- Use **bold** for important terms and findings
- Use bullet points for lists

Patient: %s
Visit Type: %s
Date: %s
Time: %s

Transcript:
%s

Generate a SOAP note in MARKDOWN format:

# SOAP Note

## Subjective
- **Chief Complaint:**
- **History of Present Illness:**
- **Past Medical History:**
- **Current Medications:**
- **Allergies:**

## Objective
- **Vital Signs:**
- **Physical Examination:**
- **Laboratory/Test Results:**

## Assessment
- **Primary Diagnosis:**
- **Differential Diagnoses:**
- **Clinical Reasoning:**

## Plan
- **Medications:**
- **Diagnostic Tests:**
- **Follow-up:**
- **Patient Education:**`

const consultPrompt = `You are a medical scribe. Generate a professional consultation note from the following medical transcript.

IMPORTANT INSTRUCTIONS:
- Extract actual information from the transcript only
- Use medical terminology appropriately
- Be comprehensive and detailed
- Include all relevant clinical information
- Format using MARKDOWN with proper headers and bullet points
- Use **bold** for emphasis and important findings

Patient: %s
Visit Type: %s
Date: %s
Time: %s

Transcript:
%s

Generate a consultation note in MARKDOWN format with these sections: Chief Complaint, History of Present Illness, Past Medical History, Current Medications, Allergies, Review of Systems, Physical Examination (Vital Signs, General Appearance, System-Specific Findings), Assessment and Plan, Follow-up.`

const progressPrompt = `You are a medical scribe. Generate a professional progress note from the following medical consultation.

IMPORTANT INSTRUCTIONS:
- Focus on changes since last visit
- Extract actual information from the transcript only
- Note improvements or worsening of conditions
- Be concise and relevant
- Format using MARKDOWN with proper headers and bullet points

Patient: %s
Visit Type: %s
Date: %s
Time: %s

Transcript:
%s

Generate a progress note in MARKDOWN format with these sections: Interval History, Current Symptoms (Improved, Unchanged, Worsened, New), Medication Review, Examination Findings, Assessment (Progress Since Last Visit, Current Status), Plan (Medication Adjustments, Continued Treatments, Next Steps).`

const billingPrompt = `You are a medical billing specialist. Based on the following medical consultation transcript, suggest appropriate Medicare Benefits Schedule (MBS) billing codes.

IMPORTANT INSTRUCTIONS:
- Analyze the consultation type, duration, and services provided
- Suggest only applicable MBS item numbers
- Be specific about which codes apply
- Format response as a simple list without headers

Visit Type: %s
Date: %s

Transcript:
%s

Provide billing suggestions in this format (NO HEADERS, just the codes):
[Item Number] - [Brief description]
Example: 23 - Level B consultation (6-20 minutes)`

// BuildNotePrompt renders the prompt for the requested template,
// defaulting to SOAP for unrecognized templates.
func BuildNotePrompt(req NoteRequest) string {
	when := req.When
	if when.IsZero() {
		when = time.Now()
	}
	date := when.Format("2006-01-02")
	clock := when.Format("15:04")

	tmpl := soapPrompt
	switch req.Template {
	case TemplateConsult:
		tmpl = consultPrompt
	case TemplateProgress:
		tmpl = progressPrompt
	}
	return fmt.Sprintf(tmpl, req.PatientName, req.VisitType, date, clock, req.Transcript)
}

// BuildBillingPrompt renders the MBS code suggestion prompt.
func BuildBillingPrompt(transcript, visitType string, when time.Time) string {
	if when.IsZero() {
		when = time.Now()
	}
	return fmt.Sprintf(billingPrompt, visitType, when.Format("2006-01-02"), transcript)
}
