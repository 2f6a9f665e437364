// Package recording acquires the microphone through pw-record and
// produces bounded s16le PCM frames on a channel.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/audio"
)

// DeviceError reports that no usable microphone is available: the capture
// tool is missing, the audio server is down, or permission was denied.
// Fatal to session start; the user must fix the device and retry.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	if e == nil || e.Err == nil {
		return "audio device unavailable"
	}
	return fmt.Sprintf("audio device unavailable: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigError reports an unsupported capture configuration. Not retryable
// without reconfiguration; the pipeline performs no runtime resampling.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid capture configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds capture settings. The transcription backend only accepts
// 16 kHz mono s16le, so anything else fails validation at start.
type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	FrameBytes        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        audio.SampleRate,
		Channels:          audio.Channels,
		Format:            "s16le",
		BufferSize:        8192,
		FrameBytes:        audio.DefaultFrameBytes,
		Device:            "",
		ChannelBufferSize: 30,
	}
}

// Recorder captures microphone audio via a pw-record subprocess. One
// capture at a time; Stop is idempotent and may be called before Start.
type Recorder struct {
	config    Config
	log       zerolog.Logger
	recording atomic.Bool

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func NewRecorder(config Config, log zerolog.Logger) *Recorder {
	return &Recorder{config: config, log: log}
}

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Start validates the configuration, probes the audio server, and begins
// delivering frames. The frame channel is buffered so the capture loop
// never blocks on a slow consumer.
func (r *Recorder) Start(ctx context.Context) (<-chan audio.Frame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, errors.New("already recording")
	}

	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}

	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, &DeviceError{Err: err}
	}

	captureCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan audio.Frame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(captureCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

// Stop requests the capture loop to end. Safe to call repeatedly or
// before Start.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the capture loop has released the device.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frameCh chan<- audio.Frame, errCh chan<- error) {
	framer := audio.NewFramer(r.config.FrameBytes)

	defer func() {
		if frame, ok := framer.Flush(time.Now()); ok {
			select {
			case frameCh <- frame:
			default:
			}
		}
		close(frameCh)
		close(errCh)
		r.recording.Store(false)

		// Reap the child process.
		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.mu.Unlock()

		r.wg.Done()
	}()

	args := r.buildPwRecordArgs()
	cmd := exec.CommandContext(ctx, "pw-record", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, &DeviceError{Err: fmt.Errorf("create stdout pipe: %w", err)})
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, &DeviceError{Err: fmt.Errorf("create stderr pipe: %w", err)})
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, &DeviceError{Err: fmt.Errorf("start pw-record: %w", err)})
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.log.Debug().Str("stderr", scanner.Text()).Msg("pw-record")
		}
	}()

	buffer := make([]byte, r.config.BufferSize)
	var droppedCount int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			for _, frame := range framer.Push(buffer[:n], time.Now()) {
				select {
				case frameCh <- frame:
				case <-ctx.Done():
					return
				default:
					// Consumer stalled; drop rather than block the device
					// read. Network backpressure is handled downstream by
					// the session's outbound queue.
					droppedCount++
					if time.Since(lastDropLog) > time.Second {
						r.log.Warn().Int("dropped", droppedCount).Msg("capture frames dropped, consumer stalled")
						lastDropLog = time.Now()
						droppedCount = 0
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			r.emitErr(errCh, &DeviceError{Err: fmt.Errorf("read audio: %w", readErr)})
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	r.log.Error().Err(err).Msg("capture error")
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
		"-", // stdout
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return args
}

// CheckPipeWireAvailable probes for pw-record and a running audio server.
func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate != audio.SampleRate {
		return &ConfigError{Field: "sample_rate", Err: fmt.Errorf("backend requires %d Hz, got %d", audio.SampleRate, r.config.SampleRate)}
	}
	if r.config.Channels != audio.Channels {
		return &ConfigError{Field: "channels", Err: fmt.Errorf("backend requires mono, got %d channels", r.config.Channels)}
	}
	if r.config.Format != "s16le" {
		return &ConfigError{Field: "format", Err: fmt.Errorf("backend requires s16le, got %q", r.config.Format)}
	}
	if r.config.BufferSize <= 0 {
		return &ConfigError{Field: "buffer_size", Err: fmt.Errorf("must be positive, got %d", r.config.BufferSize)}
	}
	if r.config.ChannelBufferSize <= 0 {
		return &ConfigError{Field: "channel_buffer_size", Err: fmt.Errorf("must be positive, got %d", r.config.ChannelBufferSize)}
	}
	return nil
}
