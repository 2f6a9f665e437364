package config

import "time"

// GeneralConfig holds settings that apply across the application.
type GeneralConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "json" or "console"
}

type Config struct {
	General       GeneralConfig       `toml:"general"`
	Recording     RecordingConfig     `toml:"recording"`
	Stream        StreamConfig        `toml:"stream"`
	LLM           LLMConfig           `toml:"llm"`
	Usage         UsageConfig         `toml:"usage"`
	History       HistoryConfig       `toml:"history"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	FrameBytes        int    `toml:"frame_bytes"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

// StreamConfig configures the transcription stream.
type StreamConfig struct {
	BaseURL       string        `toml:"base_url"`
	Path          string        `toml:"path"`
	APIKey        string        `toml:"api_key"`
	Language      string        `toml:"language"`
	Specialty     string        `toml:"specialty"`
	Mode          string        `toml:"mode"`
	SpeakerLabels bool          `toml:"speaker_labels"`
	QueueCap      int           `toml:"queue_cap"`
	DrainTimeout  time.Duration `toml:"drain_timeout"`
}

// LLMConfig configures clinical note drafting.
type LLMConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

// UsageConfig configures the entitlement meter.
type UsageConfig struct {
	Email          string `toml:"email"`
	RemoteEndpoint string `toml:"remote_endpoint"`
}

// HistoryConfig configures consultation persistence.
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}
