// Package types provides shared type definitions used across the noise meter.
package types

import (
	"time"
)

// MeterState represents the current state of a meter profile.
type MeterState string

const (
	// StateStopped indicates the meter is not sampling.
	StateStopped MeterState = "stopped"
	// StateStarting indicates the meter is opening its audio source.
	StateStarting MeterState = "starting"
	// StateRunning indicates the meter is actively sampling.
	StateRunning MeterState = "running"
	// StatePaused indicates sampling is suspended but the session is kept.
	StatePaused MeterState = "paused"
	// StateStopping indicates the meter is shutting down.
	StateStopping MeterState = "stopping"
)

const (
	// InitialRetryDelay is the starting delay between source reopen attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between source reopen attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxRetries is the maximum number of consecutive source failures.
	MaxRetries = 10
	// SuccessThreshold is the run duration after which the retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
)

// StatusInterval is how often status is pushed to WebSocket clients.
const StatusInterval = 3000 * time.Millisecond

// LevelStats summarizes a session for level consumers.
type LevelStats struct {
	Min     int     `json:"min"`               // Lowest reading, unclamped
	Max     int     `json:"max"`               // Highest reading, unclamped
	Average float64 `json:"average,omitempty"` // Mean over the full history
	Count   int     `json:"count"`             // Number of readings
}

// LevelsMessage is sent to clients for every new reading.
type LevelsMessage struct {
	Type    string     `json:"type"`    // "levels"
	Profile string     `json:"profile"` // Profile that produced the reading
	Reading int        `json:"reading"` // Unclamped reading in dB
	Display int        `json:"display"` // Reading clamped to the display range
	Loud    bool       `json:"loud"`    // Display value above the high-noise threshold
	Stats   LevelStats `json:"stats"`   // Session statistics after this reading
}

// ProfileStatus contains runtime status for one meter profile.
type ProfileStatus struct {
	Name       string     `json:"name"`                  // Profile name
	IntervalMs int64      `json:"interval_ms"`           // Sampling interval
	State      MeterState `json:"state"`                 // Current state
	SessionID  string     `json:"session_id,omitempty"`  // Current session identifier
	ElapsedMs  int64      `json:"elapsed_ms"`            // Time spent sampling this session
	Elapsed    string     `json:"elapsed,omitempty"`     // Human-readable elapsed time
	Latest     int        `json:"latest"`                // Last reading, unclamped
	InLoud     bool       `json:"in_loud,omitempty"`     // Sustained loud noise confirmed
	RetryCount int        `json:"retry_count,omitempty"` // Current source retry attempt
	MaxRetries int        `json:"max_retries"`           // Max allowed retries
	LastError  string     `json:"last_error,omitempty"`  // Most recent source error
	Stats      LevelStats `json:"stats"`                 // Session statistics
	Chart      []int      `json:"chart,omitempty"`       // Latest readings, oldest first
}

// StatusResponse is sent to clients with the status of all profiles.
type StatusResponse struct {
	Type        string          `json:"type"`          // "status"
	Location    string          `json:"location"`      // Configured location label
	AudioInput  string          `json:"audio_input"`   // Selected audio input device
	Platform    string          `json:"platform"`      // Operating system platform
	HighNoiseDB int             `json:"high_noise_db"` // Loud threshold in dB
	DisplayMin  int             `json:"display_min"`   // Lower display bound
	DisplayMax  int             `json:"display_max"`   // Upper display bound
	Profiles    []ProfileStatus `json:"profiles"`      // Per-profile status
	Devices     []AudioDevice   `json:"devices"`       // Available audio devices
	Version     VersionInfo     `json:"version"`       // Version information
}

// CommandResult is the standard response for command execution.
type CommandResult struct {
	Type    string `json:"type"`            // "<command>_result"
	Success bool   `json:"success"`         // true if command succeeded
	Error   any    `json:"error,omitempty"` // Message or *ValidationError if failed
	Data    any    `json:"data,omitempty"`  // Optional response data
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// VersionInfo contains build and configuration version data.
type VersionInfo struct {
	Current       string `json:"current"`                  // Running version
	Commit        string `json:"commit,omitempty"`         // Git commit hash
	BuildTime     string `json:"build_time,omitempty"`     // Build timestamp
	ConfigVersion string `json:"config_version,omitempty"` // Version that wrote the config file
	ConfigNewer   bool   `json:"config_newer,omitempty"`   // Config written by a newer build
}
