// Package report renders a summary of a measurement session.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/level"
)

// ErrNoData is returned when a session has no readings to report on.
var ErrNoData = errors.New("no data recorded yet")

// Report summarizes one session.
type Report struct {
	Profile   string        `json:"profile"`
	SessionID string        `json:"session_id,omitempty"`
	MinDB     int           `json:"min_db"`
	MaxDB     int           `json:"max_db"`
	AvgDB     int           `json:"avg_db"`
	Readings  int           `json:"readings"`
	Duration  time.Duration `json:"-"`
	DurationS string        `json:"duration"`
	Location  string        `json:"location"`
}

// Build creates a report from a session snapshot. Average is truncated
// toward zero.
func Build(profile, sessionID string, st *level.Stats, elapsed time.Duration, location string) (*Report, error) {
	avg, ok := st.AverageInt()
	if !ok {
		return nil, ErrNoData
	}
	return &Report{
		Profile:   profile,
		SessionID: sessionID,
		MinDB:     int(st.Min),
		MaxDB:     int(st.Max),
		AvgDB:     avg,
		Readings:  st.Count(),
		Duration:  elapsed,
		DurationS: FormatDuration(elapsed),
		Location:  location,
	}, nil
}

// FormatDuration formats d as "MM min, SS sec". Minutes are not capped.
func FormatDuration(d time.Duration) string {
	d = max(d, 0)
	minutes := int64(d / time.Minute)
	seconds := int64(d/time.Second) % 60
	return fmt.Sprintf("%02d min, %02d sec", minutes, seconds)
}

// Text renders the report as plain text.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("Noise Report\n")
	b.WriteString("-------------------\n")
	fmt.Fprintf(&b, "Min dB: %d dB\n", r.MinDB)
	fmt.Fprintf(&b, "Max dB: %d dB\n", r.MaxDB)
	fmt.Fprintf(&b, "Avg dB: %d dB\n", r.AvgDB)
	fmt.Fprintf(&b, "Duration: %s\n", r.DurationS)
	fmt.Fprintf(&b, "Location: %s", r.Location)
	return b.String()
}
