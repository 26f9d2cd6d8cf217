package level

import (
	"slices"
	"sync"
)

// Session reset values. SentinelMin sits above any realistic reading and
// SentinelMax below, so the first recorded reading replaces both.
const (
	SentinelMin Reading = 120
	SentinelMax Reading = 0
)

// Display bounds for gauge-style consumers.
const (
	DisplayMin = 0
	DisplayMax = 120
)

// DisplayValue clamps a reading to the bounded display range.
// Statistics are always kept on the unclamped reading.
func DisplayValue(r Reading) int {
	return min(max(int(r), DisplayMin), DisplayMax)
}

// Session holds the running statistics of one measurement session.
// It is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	min     Reading
	max     Reading
	last    Reading
	history []Reading
}

// NewSession returns an empty session with sentinel min/max values.
func NewSession() *Session {
	return &Session{
		min: SentinelMin,
		max: SentinelMax,
	}
}

// Record appends r to the history and updates min and max. The first reading
// of a session replaces both sentinels, so min and max always equal the
// extremes of the history.
func (s *Session) Record(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		s.min, s.max = r, r
	} else {
		s.min = min(s.min, r)
		s.max = max(s.max, r)
	}
	s.history = append(s.history, r)
	s.last = r
}

// Reset discards the history and restores the sentinel values.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.last = 0
	s.min = SentinelMin
	s.max = SentinelMax
}

// Len returns the number of recorded readings.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Snapshot returns a point-in-time copy of the session.
func (s *Session) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Min:     s.min,
		Max:     s.max,
		Last:    s.last,
		History: slices.Clone(s.history),
	}
}

// Stats is an immutable copy of a session's statistics. History is owned by
// the Stats value and may be handed to other goroutines.
type Stats struct {
	Min     Reading
	Max     Reading
	Last    Reading
	History []Reading
}

// Count returns the number of readings in the snapshot.
func (st Stats) Count() int {
	return len(st.History)
}

// Empty reports whether no readings were recorded.
func (st Stats) Empty() bool {
	return len(st.History) == 0
}

// Average returns the arithmetic mean over the full history.
// It reports false for an empty history.
func (st Stats) Average() (float64, bool) {
	if len(st.History) == 0 {
		return 0, false
	}
	var sum int64
	for _, r := range st.History {
		sum += int64(r)
	}
	return float64(sum) / float64(len(st.History)), true
}

// AverageInt returns the mean truncated toward zero.
func (st Stats) AverageInt() (int, bool) {
	avg, ok := st.Average()
	if !ok {
		return 0, false
	}
	return int(avg), true
}

// Tail returns at most n of the most recent readings, oldest first.
func (st Stats) Tail(n int) []Reading {
	if n <= 0 {
		return nil
	}
	if len(st.History) <= n {
		return slices.Clone(st.History)
	}
	return slices.Clone(st.History[len(st.History)-n:])
}
