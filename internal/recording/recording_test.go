package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestValidateConfigRejectsUnsupportedRates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"wrong sample rate", func(c *Config) { c.SampleRate = 44100 }, "sample_rate"},
		{"stereo", func(c *Config) { c.Channels = 2 }, "channels"},
		{"float format", func(c *Config) { c.Format = "f32le" }, "format"},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, "buffer_size"},
		{"zero channel buffer", func(c *Config) { c.ChannelBufferSize = 0 }, "channel_buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			r := NewRecorder(cfg, zerolog.Nop())

			err := r.validateConfig()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zerolog.Nop())
	if err := r.validateConfig(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zerolog.Nop())
	r.Stop()
	r.Stop()
	if r.IsRecording() {
		t.Error("recorder should not be recording")
	}
}

func TestStartWithBadConfigFailsFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	r := NewRecorder(cfg, zerolog.Nop())

	_, _, err := r.Start(context.Background())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError at start, got %v", err)
	}
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &DeviceError{Err: errors.New("permission denied")}
	if err.Error() == "" {
		t.Fatal("empty message")
	}
	if !errors.Is(err, err.Err) {
		t.Error("DeviceError should unwrap to its cause")
	}
}

func TestBuildPwRecordArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "alsa_input.usb"
	r := NewRecorder(cfg, zerolog.Nop())

	args := r.buildPwRecordArgs()
	want := map[string]bool{"--format": false, "--rate": false, "--target": false}
	for _, a := range args {
		if _, ok := want[a]; ok {
			want[a] = true
		}
	}
	for flag, seen := range want {
		if !seen {
			t.Errorf("missing %s in args %v", flag, args)
		}
	}
}
