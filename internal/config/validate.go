package config

import (
	"fmt"

	"github.com/mavrk/scribed/internal/llm"
	"github.com/mavrk/scribed/internal/transcriber"
)

func (c *Config) Validate() error {
	if c.Recording.SampleRate != 16000 {
		return fmt.Errorf("invalid recording.sample_rate: %d (the stream requires 16000)", c.Recording.SampleRate)
	}
	if c.Recording.Channels != 1 {
		return fmt.Errorf("invalid recording.channels: %d (the stream requires mono)", c.Recording.Channels)
	}
	if c.Recording.Format != "s16le" {
		return fmt.Errorf("invalid recording.format: %s (must be s16le)", c.Recording.Format)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}

	if c.Stream.BaseURL == "" {
		return fmt.Errorf("invalid stream.base_url: empty")
	}
	if c.Stream.APIKey == "" {
		return fmt.Errorf("stream API key required: not found in config (stream.api_key) or environment variable (SCRIBED_API_KEY)")
	}
	if !transcriber.Specialty(c.Stream.Specialty).Valid() {
		return fmt.Errorf("invalid stream.specialty: %s (must be one of %v)", c.Stream.Specialty, transcriber.Specialties())
	}
	switch transcriber.Mode(c.Stream.Mode) {
	case transcriber.ModeConversation, transcriber.ModeDictation:
	default:
		return fmt.Errorf("invalid stream.mode: %s (must be CONVERSATION or DICTATION)", c.Stream.Mode)
	}
	if c.Stream.QueueCap <= 0 {
		return fmt.Errorf("invalid stream.queue_cap: %d", c.Stream.QueueCap)
	}
	if c.Stream.DrainTimeout <= 0 {
		return fmt.Errorf("invalid stream.drain_timeout: %v", c.Stream.DrainTimeout)
	}

	if c.LLM.Enabled {
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model required when llm.enabled = true")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("OpenAI API key required for note drafting: not found in config (llm.api_key) or environment variable (OPENAI_API_KEY)")
		}
	}

	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("invalid history.max_entries: %d", c.History.MaxEntries)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr required when metrics.enabled = true")
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true, "": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}

// StreamSettings converts the file section into the handshake config.
func (c *Config) StreamSettings() transcriber.StreamConfig {
	return transcriber.StreamConfig{
		Language:      c.Stream.Language,
		Specialty:     transcriber.Specialty(c.Stream.Specialty),
		Mode:          transcriber.Mode(c.Stream.Mode),
		SpeakerLabels: c.Stream.SpeakerLabels,
	}
}

// SessionSettings converts the file section into session options.
func (c *Config) SessionSettings() transcriber.SessionOptions {
	return transcriber.SessionOptions{
		QueueCap:     c.Stream.QueueCap,
		DrainTimeout: c.Stream.DrainTimeout,
	}
}

// NoteTemplateOrDefault maps a template name onto a known template.
func NoteTemplateOrDefault(name string) llm.NoteTemplate {
	t := llm.NoteTemplate(name)
	if !t.Valid() {
		return llm.TemplateSOAP
	}
	return t
}
