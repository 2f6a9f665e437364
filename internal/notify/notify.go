// Package notify surfaces recording state and failures on the desktop.
package notify

import (
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

type Notifier interface {
	RecordingChanged(on bool)
	QuotaExhausted(msg string)
	Error(msg string)
}

// Desktop sends notifications through notify-send.
type Desktop struct {
	Log zerolog.Logger
}

func (d Desktop) send(args ...string) {
	cmd := exec.Command("notify-send", append([]string{"-a", "Scribed"}, args...)...)
	if err := cmd.Run(); err != nil {
		d.Log.Warn().Err(err).Msg("failed to send notification")
	}
}

func (d Desktop) RecordingChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	d.send(fmt.Sprintf("Scribed: %s Recording", state))
}

func (d Desktop) QuotaExhausted(msg string) {
	d.send("-u", "normal", "Scribed: Daily Limit Reached", msg)
}

func (d Desktop) Error(msg string) {
	d.send("-u", "critical", "Scribed: Error", msg)
}

// Log writes notifications to the logger only, for headless use.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) RecordingChanged(on bool) {
	l.Logger.Info().Bool("recording", on).Msg("recording state changed")
}

func (l Log) QuotaExhausted(msg string) {
	l.Logger.Warn().Msg(msg)
}

func (l Log) Error(msg string) {
	l.Logger.Error().Msg(msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool) {}

func (Nop) QuotaExhausted(msg string) {}

func (Nop) Error(msg string) {}
