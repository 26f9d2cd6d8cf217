// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
	MaxAgeDays = 7
)

var (
	mu      sync.Mutex
	logFile *lumberjack.Logger
)

// Setup installs the default logger. Output always goes to stdout; when
// logPath is set it is also written to a rotating file.
func Setup(logPath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	writers := []io.Writer{os.Stdout}

	if logPath != "" {
		if err := util.CheckPathWritable(filepath.Dir(logPath)); err != nil {
			return util.WrapError("prepare log directory", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
		}
		writers = append(writers, logFile)
	}

	slog.SetDefault(New(io.MultiWriter(writers...), debug))
	slog.Info("logging initialized", "path", logPath, "debug", debug)
	return nil
}

// New returns a text logger writing to w.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Close closes the log file, if any. The default logger keeps writing to
// stdout.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	slog.SetDefault(New(os.Stdout, false))
	err := logFile.Close()
	logFile = nil
	return err
}
