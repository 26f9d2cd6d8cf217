package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath rejects empty paths and paths containing traversal components.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}

	// Reject traversal before cleaning; Clean would silently resolve it.
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}

	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: invalid path", field)
	}

	return nil
}

// CheckPathWritable verifies that a directory exists (creating it if needed)
// and that files can be created in it.
func CheckPathWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("path writability check failed", "path", dir, "error", err, "step", "mkdir")
		return fmt.Errorf("path is not writable")
	}

	f, err := os.CreateTemp(dir, ".noisemeter-write-test-*")
	if err != nil {
		slog.Error("path writability check failed", "path", dir, "error", err, "step", "create")
		return fmt.Errorf("path is not writable")
	}
	name := f.Name()

	if _, err := f.WriteString("ok"); err != nil {
		_ = f.Close()
		_ = os.Remove(name) // Best effort cleanup
		slog.Error("path writability check failed", "path", dir, "error", err, "step", "write")
		return fmt.Errorf("path is not writable")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name) // Best effort cleanup
		slog.Error("path writability check failed", "path", dir, "error", err, "step", "close")
		return fmt.Errorf("path is not writable")
	}
	if err := os.Remove(name); err != nil {
		slog.Error("path writability check failed", "path", dir, "error", err, "step", "remove")
		return fmt.Errorf("path is not writable")
	}

	return nil
}
