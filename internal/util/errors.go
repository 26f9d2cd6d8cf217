package util

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// maxErrorLineLength is the maximum length for extracted error messages.
const maxErrorLineLength = 200

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// ExtractLastError extracts the last meaningful line from stderr output.
func ExtractLastError(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			if len(line) > maxErrorLineLength {
				return line[:maxErrorLineLength] + "..."
			}
			return line
		}
	}
	return ""
}

// SafeCloseFunc returns a function that closes c and logs a failure.
// Intended for defer.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close", "resource", name, "error", err)
		}
	}
}
