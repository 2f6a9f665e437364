package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mavrk/scribed/internal/bus"
	"github.com/mavrk/scribed/internal/config"
	"github.com/mavrk/scribed/internal/daemon"
	"github.com/mavrk/scribed/internal/history"
	"github.com/mavrk/scribed/internal/llm"
	"github.com/mavrk/scribed/internal/logging"
	"github.com/mavrk/scribed/internal/metrics"
	"github.com/mavrk/scribed/internal/transcriber"
	"github.com/mavrk/scribed/internal/tui"
	"github.com/mavrk/scribed/internal/usage"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "scribed",
	Short: "Medical scribe daemon: live consultation transcription and note drafting",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		startCmd(),
		stopCmd(),
		statusCmd(),
		specialtyCmd(),
		clearCmd(),
		usageCmd(),
		noteCmd(),
		historyCmd(),
		configureCmd(),
		versionCmd(),
		quitCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start recording a consultation",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdRecord, "")
			if err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and save the consultation",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdPause, "")
			if err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current recording status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus, "")
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func specialtyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specialty <name>",
		Short: "Switch the medical specialty for the live stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := transcriber.Specialty(strings.ToUpper(args[0]))
			if !s.Valid() {
				var names []string
				for _, v := range transcriber.Specialties() {
					names = append(names, string(v))
				}
				return fmt.Errorf("unknown specialty %q (choose from %s)", args[0], strings.Join(names, ", "))
			}
			resp, err := bus.SendCommand(bus.CmdSpecialty, string(s))
			if err != nil {
				return fmt.Errorf("failed to set specialty: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the current transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdClear, "")
			if err != nil {
				return fmt.Errorf("failed to clear transcript: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show today's transcription allowance",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdUsage, "")
			if err != nil {
				return fmt.Errorf("failed to get usage: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get daemon and protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion, "")
			if err != nil {
				fmt.Printf("client version=%s (daemon not running)\n", daemon.Version)
				return nil
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Shut the daemon down",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit, "")
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for scribed.
This will guide you through setting up:
- Transcription service API key and specialty
- Clinical note drafting (OpenAI)
- Notifications and metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func noteCmd() *cobra.Command {
	var (
		templateName string
		patientName  string
		visitType    string
	)

	cmd := &cobra.Command{
		Use:   "note [consultation-id]",
		Short: "Draft a clinical note from a saved consultation",
		Long: `Drafts a clinical note and billing suggestion from a saved
consultation transcript. With no id the most recent consultation is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runNote(cmd.Context(), id, templateName, patientName, visitType)
		},
	}

	cmd.Flags().StringVar(&templateName, "template", "soap", "note template: soap, consult, progress")
	cmd.Flags().StringVar(&patientName, "patient", "", "patient name for the note header")
	cmd.Flags().StringVar(&visitType, "visit", "", "visit type, e.g. 'Follow-up'")

	return cmd
}

func runNote(ctx context.Context, id, templateName, patientName, visitType string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.LLM.Enabled {
		return fmt.Errorf("note drafting is disabled: run scribed configure")
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no OpenAI API key configured: set llm.api_key or OPENAI_API_KEY")
	}

	log := logging.New(logging.Config{Level: cfg.General.LogLevel, Format: cfg.General.LogFormat})

	historyDir, err := config.HistoryDir()
	if err != nil {
		return err
	}
	store, err := history.NewStore(historyDir, cfg.History.MaxEntries, logging.WithComponent(log, "history"))
	if err != nil {
		return err
	}

	consultation, err := loadConsultation(store, id)
	if err != nil {
		return err
	}

	template := config.NoteTemplateOrDefault(templateName)
	gen := llm.NewOpenAIGenerator(cfg.LLM.APIKey,
		logging.WithComponent(log, "llm"), metrics.Nop(),
		llm.WithModel(cfg.LLM.Model))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	result, err := llm.Draft(ctx, gen, llm.NoteRequest{
		Transcript:  consultation.Transcript,
		PatientName: patientName,
		VisitType:   visitType,
		Template:    template,
		When:        consultation.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("note generation failed: %w", err)
	}

	consultation.Note = result.Note
	consultation.Billing = result.Billing
	consultation.Template = string(template)
	if patientName != "" {
		consultation.PatientName = patientName
	}
	if visitType != "" {
		consultation.VisitType = visitType
	}
	if err := store.Save(consultation); err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}

	statePath, err := config.UsageStatePath()
	if err == nil {
		if meter, merr := usage.NewMeter(statePath, logging.WithComponent(log, "usage")); merr == nil {
			_ = meter.RecordNote()
		}
	}

	fmt.Println(result.Note)
	if result.Billing != "" {
		fmt.Println()
		fmt.Println("--- Billing suggestion ---")
		fmt.Println(result.Billing)
	}
	return nil
}

// loadConsultation resolves an explicit id, or falls back to the most
// recent consultation when id is empty.
func loadConsultation(store *history.Store, id string) (*history.Consultation, error) {
	if id != "" {
		return store.Get(id)
	}
	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no consultations recorded yet")
	}
	return entries[0], nil
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved consultations",
	}

	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyDeleteCmd())

	return cmd
}

func openStore() (*history.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return nil, err
		}
		cfg = config.DefaultConfig()
	}
	log := logging.New(logging.Config{Level: "warn", Format: "console"})
	historyDir, err := config.HistoryDir()
	if err != nil {
		return nil, err
	}
	return history.NewStore(historyDir, cfg.History.MaxEntries, log)
}

func historyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved consultations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no consultations recorded yet")
				return nil
			}
			for _, c := range entries {
				noted := " "
				if c.Note != "" {
					noted = "n"
				}
				fmt.Printf("%s  %s  [%s] %-12s %5d chars %s\n",
					c.ID, c.CreatedAt.Format("2006-01-02 15:04"), noted,
					c.Specialty, len(c.Transcript), c.PatientName)
			}
			return nil
		},
	}
}

func historyShowCmd() *cobra.Command {
	var showNote bool

	cmd := &cobra.Command{
		Use:   "show <consultation-id>",
		Short: "Print a consultation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			c, err := store.Get(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Consultation %s (%s, %s)\n\n", c.ID,
				c.CreatedAt.Format("2006-01-02 15:04"), c.Specialty)

			if showNote {
				if c.Note == "" {
					return fmt.Errorf("no note drafted yet: run scribed note %s", c.ID)
				}
				fmt.Println(c.Note)
				return nil
			}

			if len(c.Segments) > 0 {
				for _, seg := range c.Segments {
					fmt.Printf("[%s] %s\n", seg.Speaker, seg.Text)
				}
			} else {
				fmt.Println(c.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showNote, "note", false, "print the drafted note instead of the transcript")

	return cmd
}

func historyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <consultation-id>",
		Short: "Delete a saved consultation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
