package util

import "log/slog"

// LogResult executes fn and logs whether it succeeded.
func LogResult(fn func() error, action string) {
	if err := fn(); err != nil {
		slog.Error("action failed", "action", action, "error", err)
		return
	}
	slog.Debug("action completed", "action", action)
}
