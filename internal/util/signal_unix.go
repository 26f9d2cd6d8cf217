//go:build !windows

package util

import (
	"errors"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that stop the meter.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a capture process (arecord or FFmpeg) to stop.
// Both flush and exit on SIGINT; a process that has already exited is
// not an error.
func GracefulSignal(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
