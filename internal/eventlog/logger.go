// Package eventlog records measurement session and loud-noise events in a
// JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted EventType = "session_started"
	SessionPaused  EventType = "session_paused"
	SessionResumed EventType = "session_resumed"
	SessionEnded   EventType = "session_ended"
	SourceError    EventType = "source_error"
	SourceRetry    EventType = "source_retry"
)

// Loud noise event types.
const (
	LoudStart EventType = "loud_start"
	LoudEnd   EventType = "loud_end"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Profile   string    `json:"profile,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	Readings   int    `json:"readings,omitempty"`
	MinDB      int    `json:"min_db,omitempty"`
	MaxDB      int    `json:"max_db,omitempty"`
	AvgDB      int    `json:"avg_db,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
}

// LoudDetails contains loud-noise event details.
type LoudDetails struct {
	LevelDB     int   `json:"level_db"`
	ThresholdDB int   `json:"threshold_db"`
	DurationMs  int64 `json:"duration_ms,omitempty"`
}

// Logger writes events to a JSON lines file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSession logs a session lifecycle or source event.
func (l *Logger) LogSession(eventType EventType, profile, sessionID, message string, details *SessionDetails) error {
	event := &Event{
		Type:      eventType,
		Profile:   profile,
		SessionID: sessionID,
		Message:   message,
	}
	if details != nil {
		event.Details = details
	}
	return l.Log(event)
}

// LogLoudStart logs the start of sustained loud noise.
func (l *Logger) LogLoudStart(profile, sessionID string, levelDB, thresholdDB int) error {
	return l.Log(&Event{
		Type:      LoudStart,
		Profile:   profile,
		SessionID: sessionID,
		Details: &LoudDetails{
			LevelDB:     levelDB,
			ThresholdDB: thresholdDB,
		},
	})
}

// LogLoudEnd logs recovery from sustained loud noise.
func (l *Logger) LogLoudEnd(profile, sessionID string, levelDB, thresholdDB int, durationMs int64) error {
	return l.Log(&Event{
		Type:      LoudEnd,
		Profile:   profile,
		SessionID: sessionID,
		Details: &LoudDetails{
			LevelDB:     levelDB,
			ThresholdDB: thresholdDB,
			DurationMs:  durationMs,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSession TypeFilter = "session"
	FilterLoud    TypeFilter = "loud"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads up to n events starting from offset, filtered by type.
// Events are returned newest first; hasMore reports whether older matching
// events remain. n is capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) (events []Event, hasMore bool, err error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer util.SafeCloseFunc(file, "event log")()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events = make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterSession:
		return IsSessionEvent(t)
	case FilterLoud:
		return IsLoudEvent(t)
	default:
		return true
	}
}

// IsSessionEvent reports whether the event type is a session event.
func IsSessionEvent(t EventType) bool {
	switch t {
	case SessionStarted, SessionPaused, SessionResumed, SessionEnded, SourceError, SourceRetry:
		return true
	}
	return false
}

// IsLoudEvent reports whether the event type is a loud-noise event.
func IsLoudEvent(t EventType) bool {
	return t == LoudStart || t == LoudEnd
}
