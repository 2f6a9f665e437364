package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/metrics"
)

const (
	defaultModel       = openai.GPT4oMini
	defaultTemperature = 0.7
)

// OpenAIGenerator drafts notes through the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// OpenAIOption customizes the generator.
type OpenAIOption func(*OpenAIGenerator)

// WithModel overrides the completion model.
func WithModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithBaseURL points the client at a compatible endpoint, used for
// proxies and tests.
func WithBaseURL(apiKey, baseURL string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		g.client = openai.NewClientWithConfig(cfg)
	}
}

// NewOpenAIGenerator creates a generator with the given API key.
func NewOpenAIGenerator(apiKey string, log zerolog.Logger, m *metrics.Metrics, opts ...OpenAIOption) *OpenAIGenerator {
	if m == nil {
		m = metrics.Nop()
	}
	g := &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       defaultModel,
		temperature: defaultTemperature,
		log:         log,
		metrics:     m,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateNote drafts a clinical note using the requested template.
func (g *OpenAIGenerator) GenerateNote(ctx context.Context, req NoteRequest) (string, error) {
	start := time.Now()

	note, err := g.complete(ctx, BuildNotePrompt(req))
	if err != nil {
		return "", err
	}

	g.metrics.NotesGenerated.Inc()
	g.metrics.NoteDuration.Observe(time.Since(start).Seconds())
	g.log.Debug().
		Str("template", string(req.Template)).
		Dur("took", time.Since(start)).
		Msg("note generated")
	return note, nil
}

// SuggestBilling proposes MBS item numbers for the consultation.
func (g *OpenAIGenerator) SuggestBilling(ctx context.Context, transcript, visitType string) (string, error) {
	return g.complete(ctx, BuildBillingPrompt(transcript, visitType, time.Now()))
}
