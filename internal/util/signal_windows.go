//go:build windows

package util

import "os"

// ShutdownSignals returns the signals that stop the meter.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal asks a capture process to stop.
// Windows has no SIGINT for child processes; the process is killed after
// the command's WaitDelay instead.
func GracefulSignal(_ *os.Process) error {
	return nil
}
