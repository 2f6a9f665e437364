// Package daemon runs the long-lived scribed process: it owns the
// consultation controller and answers control-socket commands.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/bus"
	"github.com/mavrk/scribed/internal/config"
	"github.com/mavrk/scribed/internal/history"
	"github.com/mavrk/scribed/internal/logging"
	"github.com/mavrk/scribed/internal/metrics"
	"github.com/mavrk/scribed/internal/notify"
	"github.com/mavrk/scribed/internal/recording"
	"github.com/mavrk/scribed/internal/scribe"
	"github.com/mavrk/scribed/internal/transcriber"
	"github.com/mavrk/scribed/internal/usage"
)

// Version is stamped at build time.
var Version = "dev"

type Daemon struct {
	log        zerolog.Logger
	manager    *config.Manager
	notifier   notify.Notifier
	meter      *usage.Meter
	store      *history.Store
	controller *scribe.Controller
	metrics    *metrics.Metrics
	checker    *usage.RemoteChecker
	email      string

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a daemon from the configuration on disk.
func New() (*Daemon, error) {
	bootLog := logging.New(logging.Config{Level: "info", Format: "console"})

	manager, err := config.NewManager(bootLog)
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()

	log := logging.New(logging.Config{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
	})

	m := metrics.New()

	statePath, err := config.UsageStatePath()
	if err != nil {
		return nil, err
	}
	meter, err := usage.NewMeter(statePath, logging.WithComponent(log, "usage"))
	if err != nil {
		return nil, err
	}

	historyDir, err := config.HistoryDir()
	if err != nil {
		return nil, err
	}
	store, err := history.NewStore(historyDir, cfg.History.MaxEntries, logging.WithComponent(log, "history"))
	if err != nil {
		return nil, err
	}

	newAdapter := func() transcriber.StreamingAdapter {
		current := manager.GetConfig()
		return transcriber.NewMedstreamAdapter(
			transcriber.EndpointConfig{BaseURL: current.Stream.BaseURL, Path: current.Stream.Path},
			current.Stream.APIKey,
			logging.WithComponent(log, "stream"),
			m,
		)
	}
	newRecorder := func() scribe.Recorder {
		current := manager.GetConfig()
		return recording.NewRecorder(recording.Config{
			SampleRate:        current.Recording.SampleRate,
			Channels:          current.Recording.Channels,
			Format:            current.Recording.Format,
			BufferSize:        current.Recording.BufferSize,
			FrameBytes:        current.Recording.FrameBytes,
			Device:            current.Recording.Device,
			ChannelBufferSize: current.Recording.ChannelBufferSize,
		}, logging.WithComponent(log, "recording"))
	}

	controller := scribe.New(newAdapter, newRecorder, meter,
		cfg.StreamSettings(), cfg.SessionSettings(),
		logging.WithComponent(log, "scribe"), m)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		switch cfg.Notifications.Type {
		case "log":
			notifier = notify.Log{Logger: log}
		case "none":
		default:
			notifier = notify.Desktop{Log: log}
		}
	}

	var checker *usage.RemoteChecker
	if cfg.Usage.RemoteEndpoint != "" {
		checker = usage.NewRemoteChecker(cfg.Usage.RemoteEndpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		log:        log,
		manager:    manager,
		notifier:   notifier,
		meter:      meter,
		store:      store,
		controller: controller,
		metrics:    m,
		checker:    checker,
		email:      cfg.Usage.Email,
		ctx:        ctx,
		cancel:     cancel,
	}

	controller.SetCallbacks(scribe.Callbacks{
		OnStateChange: notifier.RecordingChanged,
		OnError:       d.onControllerError,
	})

	return d, nil
}

func (d *Daemon) onControllerError(err error) {
	d.log.Error().Err(err).Msg("consultation error")

	var quota *usage.QuotaError
	if errors.As(err, &quota) {
		d.notifier.QuotaExhausted(quota.Error())
		return
	}
	d.notifier.Error(err.Error())
}

// Run serves the control socket until a quit command or signal.
func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		d.log.Warn().Err(err).Msg("config watching disabled")
	}
	defer d.manager.Stop()

	if cfg := d.manager.GetConfig(); cfg.Metrics.Enabled {
		go d.metrics.Serve(d.ctx, cfg.Metrics.Addr, logging.WithComponent(d.log, "metrics"))
	}

	if d.checker != nil {
		go func() {
			syncCtx, cancel := context.WithTimeout(d.ctx, 10*time.Second)
			defer cancel()
			_ = d.meter.Sync(syncCtx, d.checker, d.email)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		d.log.Info().Str("signal", sig.String()).Msg("shutting down")
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.log.Info().Str("version", Version).Msg("daemon started, listening on control socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				d.shutdown()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

// shutdown ends a live recording cleanly before exit.
func (d *Daemon) shutdown() {
	if d.controller.Recording() {
		d.stopAndSave()
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	cmd, arg := bus.ParseCommand(line)

	switch cmd {
	case bus.CmdRecord:
		// Clear only when idle: a rejected start must leave the live
		// session's transcript untouched.
		if d.controller.Recording() {
			fmt.Fprint(c, "ERR start_rejected\n")
			return
		}
		d.controller.Clear()
		if d.controller.Start(d.ctx) {
			fmt.Fprint(c, "OK recording\n")
		} else {
			fmt.Fprint(c, "ERR start_rejected\n")
		}

	case bus.CmdPause:
		if !d.controller.Recording() {
			fmt.Fprint(c, "ERR not_recording\n")
			return
		}
		id, chars := d.stopAndSave()
		fmt.Fprintf(c, "OK stopped id=%s chars=%d\n", id, chars)

	case bus.CmdStatus:
		state := "idle"
		if d.controller.Recording() {
			state = "recording"
		}
		fmt.Fprintf(c, "STATUS status=%s specialty=%s chars=%d\n",
			state, d.controller.Specialty(), len(d.controller.Transcript()))

	case bus.CmdSpecialty:
		if err := d.controller.SetSpecialty(d.ctx, transcriber.Specialty(arg)); err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		fmt.Fprintf(c, "OK specialty=%s\n", arg)

	case bus.CmdClear:
		d.controller.Clear()
		fmt.Fprint(c, "OK cleared\n")

	case bus.CmdUsage:
		if d.checker != nil {
			syncCtx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
			_ = d.meter.Sync(syncCtx, d.checker, d.email)
			cancel()
		}
		st := d.meter.Status()
		decision := d.meter.CanProceed()
		fmt.Fprintf(c, "USAGE tier=%s today=%d remaining=%d total=%d\n",
			st.Tier, st.Count, decision.Remaining, st.TotalTranscriptions)

	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s version=%s\n", bus.ProtoVer, Version)

	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()

	default:
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

// stopAndSave ends the recording and persists the consultation.
func (d *Daemon) stopAndSave() (string, int) {
	text, segments := d.controller.Stop()
	if text == "" {
		return "", 0
	}

	consultation := &history.Consultation{
		Specialty:  string(d.controller.Specialty()),
		Transcript: text,
		Segments:   segments,
		Entities:   d.controller.Entities(),
	}
	if err := d.store.Save(consultation); err != nil {
		d.log.Error().Err(err).Msg("failed to save consultation")
		d.notifier.Error("failed to save consultation: " + err.Error())
		return "", len(text)
	}

	d.log.Info().
		Str("id", consultation.ID).
		Int("segments", len(segments)).
		Int("chars", len(text)).
		Str("specialty", consultation.Specialty).
		Msg("consultation saved")
	return consultation.ID, len(text)
}
