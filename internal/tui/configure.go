// Package tui is the interactive configuration wizard.
package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mavrk/scribed/internal/config"
	"github.com/mavrk/scribed/internal/transcriber"
)

var (
	colorPrimary = lipgloss.Color("#0EA5E9")
	colorMuted   = lipgloss.Color("#94A3B8")

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// ConfigureResult holds the configuration result from the wizard.
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

func specialtyOptions() []huh.Option[string] {
	var options []huh.Option[string]
	labels := map[transcriber.Specialty]string{
		transcriber.SpecialtyPrimaryCare: "Primary Care",
		transcriber.SpecialtyCardiology:  "Cardiology",
		transcriber.SpecialtyNeurology:   "Neurology",
		transcriber.SpecialtyOncology:    "Oncology",
		transcriber.SpecialtyRadiology:   "Radiology",
		transcriber.SpecialtyUrology:     "Urology",
	}
	for _, s := range transcriber.Specialties() {
		options = append(options, huh.NewOption(labels[s], string(s)))
	}
	return options
}

// Run walks through the configuration wizard, starting from the
// existing config when there is one.
func Run(existing *config.Config) (*ConfigureResult, error) {
	cfg := existing
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	fmt.Println(styleHeader.Render("Scribed Configuration"))
	fmt.Println(styleMuted.Render("Medical scribe daemon setup. Values are written to config.toml."))
	fmt.Println()

	notifyType := cfg.Notifications.Type
	if notifyType == "" {
		notifyType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription API key").
				Description("Bearer token for the streaming transcription service").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Stream.APIKey),

			huh.NewSelect[string]().
				Title("Medical specialty").
				Description("Vocabulary profile for the transcription stream").
				Options(specialtyOptions()...).
				Value(&cfg.Stream.Specialty),

			huh.NewSelect[string]().
				Title("Transcription mode").
				Options(
					huh.NewOption("Conversation (doctor and patient)", string(transcriber.ModeConversation)),
					huh.NewOption("Dictation (single speaker)", string(transcriber.ModeDictation)),
				).
				Value(&cfg.Stream.Mode),
		),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable clinical note drafting?").
				Description("Uses OpenAI to draft SOAP, consultation, and progress notes").
				Value(&cfg.LLM.Enabled),

			huh.NewInput().
				Title("OpenAI API key").
				Description("Leave empty to use the OPENAI_API_KEY environment variable").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.LLM.APIKey),

			huh.NewSelect[string]().
				Title("Note model").
				Options(
					huh.NewOption("gpt-4o-mini (fast, recommended)", "gpt-4o-mini"),
					huh.NewOption("gpt-4o (thorough)", "gpt-4o"),
				).
				Value(&cfg.LLM.Model),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notifications").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
					huh.NewOption("None", "none"),
				).
				Value(&notifyType),

			huh.NewConfirm().
				Title("Expose Prometheus metrics?").
				Description("Serves /metrics on localhost:9090").
				Value(&cfg.Metrics.Enabled),
		),
	)

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return &ConfigureResult{Cancelled: true}, nil
		}
		return nil, err
	}

	cfg.Notifications.Type = notifyType
	cfg.Notifications.Enabled = notifyType != "none"
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}

	return &ConfigureResult{Config: cfg}, nil
}
