// Package main provides a noise level meter that samples microphone audio,
// tracks per-session sound level statistics and serves them to live clients.
//
// Usage:
//
//	noisemeter [-config path/to/config.json] [-replay capture.raw]
//
// If -config is not specified, the meter looks for config.json in the same
// directory as the binary. -replay reads raw S16LE mono PCM from a file
// instead of the microphone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/audio"
	"github.com/oszuidwest/zwfm-noisemeter/internal/config"
	"github.com/oszuidwest/zwfm-noisemeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisemeter/internal/logging"
	"github.com/oszuidwest/zwfm-noisemeter/internal/meter"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	replayPath := flag.String("replay", "", "Read raw S16LE mono PCM from this file instead of the microphone")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if err := run(*configPath, *replayPath); err != nil {
		slog.Error("noise meter failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, replayPath string) (err error) {
	if configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return util.WrapError("get executable path", err)
		}
		configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", configPath)

	cfg := config.New(configPath, Version)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	snap := cfg.Snapshot()

	if err := logging.Setup(snap.LogPath, snap.Debug); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, logging.Close())
	}()
	slog.Info("configuration loaded", "path", cfg.FilePath(), "profiles", len(snap.Profiles), "location", snap.Location)

	var events *eventlog.Logger
	if snap.HasEventLog() {
		events, err = eventlog.NewLogger(snap.EventLogPath)
		if err != nil {
			return util.WrapError("open event log", err)
		}
		defer func() {
			err = errors.Join(err, events.Close())
		}()
	}

	open, err := sourceFactory(&snap, replayPath)
	if err != nil {
		return err
	}

	mgr, autoStart, err := buildManager(&snap, open, events)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	srv := NewServer(ctx, cfg, mgr)
	mgr.StartAll(ctx, autoStart)

	// Start web server.
	httpServer := srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if err := mgr.StopAll(); err != nil {
		errs = append(errs, err)
	}

	slog.Info("shutdown complete")
	return errors.Join(errs...)
}

// sourceFactory returns how each meter opens its audio: a replay file when
// replayPath is set, otherwise the platform capture command.
func sourceFactory(cfg *config.Snapshot, replayPath string) (meter.SourceFactory, error) {
	if replayPath != "" {
		if _, err := os.Stat(replayPath); err != nil {
			return nil, util.WrapError("open replay file", err)
		}
		slog.Info("replaying audio from file", "path", replayPath)
		return func(context.Context) (audio.Source, error) {
			f, err := os.Open(replayPath)
			if err != nil {
				return nil, err
			}
			return audio.NewReaderSource(f), nil
		}, nil
	}

	ffmpegPath := util.ResolveFFmpegPath(cfg.FFmpegPath)
	if ffmpegPath != "" {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	input, sampleRate := cfg.AudioInput, cfg.SampleRate
	return func(context.Context) (audio.Source, error) {
		src, err := audio.StartCommandSource(input, ffmpegPath, sampleRate)
		if err != nil {
			return nil, err
		}
		return src, nil
	}, nil
}

// buildManager creates one meter per configured profile and returns the
// profiles to start at launch.
func buildManager(cfg *config.Snapshot, open meter.SourceFactory, events *eventlog.Logger) (*meter.Manager, []string, error) {
	loud := meter.LoudConfig{
		ThresholdDB: cfg.HighNoiseDB,
		DurationMs:  cfg.LoudDurationMs,
		RecoveryMs:  cfg.LoudRecoveryMs,
	}

	mgr := meter.NewManager()
	var autoStart []string
	for _, p := range cfg.Profiles {
		m := meter.New(meter.Options{
			Profile:     p.Name,
			Interval:    p.Interval(),
			BlockSize:   p.BlockSize,
			ChartPoints: cfg.ChartPoints,
			Loud:        loud,
			Open:        open,
			Events:      events,
		})
		if err := mgr.Add(m); err != nil {
			return nil, nil, err
		}
		if p.AutoStart {
			autoStart = append(autoStart, p.Name)
		}
	}
	return mgr, autoStart, nil
}
