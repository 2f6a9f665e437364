package config

import "time"

// DefaultConfig returns the initial configuration written by the
// configure command.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16le",
			BufferSize:        8192,
			FrameBytes:        4096,
			Device:            "",
			ChannelBufferSize: 30,
		},
		Stream: StreamConfig{
			BaseURL:       "wss://transcribe.mavrk.health",
			Path:          "/v1/medical/stream",
			Language:      "en-US",
			Specialty:     "PRIMARYCARE",
			Mode:          "CONVERSATION",
			SpeakerLabels: true,
			QueueCap:      64,
			DrainTimeout:  3 * time.Second,
		},
		LLM: LLMConfig{
			Enabled: true,
			Model:   "gpt-4o-mini",
		},
		History: HistoryConfig{
			MaxEntries: 500,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "localhost:9090",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
	}
}
