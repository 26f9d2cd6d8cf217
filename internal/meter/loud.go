package meter

import (
	"sync"
	"time"
)

// LoudConfig holds the configurable thresholds for loud noise detection.
type LoudConfig struct {
	ThresholdDB int   // display level above which noise is considered loud
	DurationMs  int64 // milliseconds above threshold before triggering
	RecoveryMs  int64 // milliseconds at or below threshold before recovering
}

// LoudEvent is the result of a loud detection update.
type LoudEvent struct {
	// Current state
	InLoud     bool  // Currently in confirmed loud state
	DurationMs int64 // Current loud duration in ms (0 if not loud)

	// State transitions
	JustEntered     bool  // True on the reading when loud noise is first confirmed
	JustRecovered   bool  // True on the reading when recovery completes
	TotalDurationMs int64 // Total loud duration in ms (only set when JustRecovered)
}

// LoudDetector tracks sustained loud noise.
// It is safe for concurrent use.
type LoudDetector struct {
	mu             sync.Mutex
	loudStart      time.Time // when the current loud period started
	recoveryStart  time.Time // when the level dropped after a loud period
	inLoud         bool      // currently in confirmed loud state
	loudDurationMs int64     // duration reported on recovery
}

// NewLoudDetector creates a new loud noise detector.
func NewLoudDetector() *LoudDetector {
	return &LoudDetector{}
}

// IsLoud reports whether a display value is above the threshold.
func IsLoud(display int, cfg LoudConfig) bool {
	return display > cfg.ThresholdDB
}

// Update feeds a display value observed at now and returns the current state.
func (d *LoudDetector) Update(display int, cfg LoudConfig, now time.Time) LoudEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var event LoudEvent

	if IsLoud(display, cfg) {
		d.recoveryStart = time.Time{}

		if d.loudStart.IsZero() {
			d.loudStart = now
		}

		durationMs := now.Sub(d.loudStart).Milliseconds()
		d.loudDurationMs = durationMs

		switch {
		case d.inLoud:
			event.InLoud = true
			event.DurationMs = durationMs
		case durationMs >= cfg.DurationMs:
			d.inLoud = true
			event.InLoud = true
			event.DurationMs = durationMs
			event.JustEntered = true
		}
		return event
	}

	if !d.inLoud {
		d.loudStart = time.Time{}
		return event
	}

	// Quiet again after a confirmed loud period; keep loudStart during recovery.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}

	if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
		event.JustRecovered = true
		event.TotalDurationMs = d.loudDurationMs

		d.inLoud = false
		d.loudDurationMs = 0
		d.loudStart = time.Time{}
		d.recoveryStart = time.Time{}
		return event
	}

	event.InLoud = true
	return event
}

// InLoud reports whether loud noise is currently confirmed.
func (d *LoudDetector) InLoud() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inLoud
}

// Reset clears the detection state.
func (d *LoudDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loudStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inLoud = false
	d.loudDurationMs = 0
}
