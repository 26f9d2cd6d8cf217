// Package meter runs the sampling loop that turns an audio source into a
// stream of sound level readings. Each Meter owns one measurement session
// and one audio source at a time.
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-noisemeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisemeter/internal/level"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
	"go.uber.org/atomic"
)

// Sentinel errors for meter operations.
var (
	ErrAlreadyRunning = errors.New("meter already running")
	ErrNotRunning     = errors.New("meter not running")
	ErrNotPaused      = errors.New("meter not paused")
	ErrNoSource       = errors.New("no audio source configured")
)

// errSourceEnded reports that a finite source delivered all of its data.
var errSourceEnded = errors.New("source ended")

// Options configures a Meter.
type Options struct {
	Profile     string           // Profile name used in logs and updates
	Interval    time.Duration    // Wait between blocks; zero reads back to back
	BlockSize   int              // Samples per block
	ChartPoints int              // Readings included in status charts
	Loud        LoudConfig       // Loud noise thresholds
	Open        SourceFactory    // Opens the audio source
	Events      *eventlog.Logger // Optional event log
	Backoff     *util.Backoff    // Optional retry backoff; defaults to 3s..60s
	MaxRetries  int              // Consecutive short runs before giving up; defaults to types.MaxRetries
}

// Update is published for every new reading, in arrival order.
type Update struct {
	Profile   string
	SessionID string
	Time      time.Time
	Reading   level.Reading // Unclamped
	Display   int           // Clamped to the display range
	Loud      bool          // Display above the loud threshold
	InLoud    bool          // Sustained loud noise confirmed
	Stats     level.Stats   // Session snapshot including this reading
}

// Meter samples one audio source and records readings into a session.
// It is safe for concurrent use.
type Meter struct {
	opts    Options
	session *level.Session
	loud    *LoudDetector
	backoff *util.Backoff
	latest  *atomic.Int64

	// opMu serializes Start, Stop, Pause and Resume so a new loop never
	// starts while an old one is still being halted.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      types.MeterState
	parent     context.Context
	cancel     context.CancelFunc
	stopChan   chan struct{}
	done       chan struct{}
	source     *onceSource
	sessionID  string
	lastError  string
	retryCount int
	elapsed    time.Duration // accumulated over completed running periods
	runStart   time.Time     // start of the current running period

	subMu   sync.RWMutex
	subs    map[int]func(Update)
	nextSub int
}

// New creates a stopped Meter.
func New(opts Options) *Meter {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 1024
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = types.MaxRetries
	}
	b := opts.Backoff
	if b == nil {
		b = util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)
	}
	return &Meter{
		opts:    opts,
		session: level.NewSession(),
		loud:    NewLoudDetector(),
		backoff: b,
		latest:  atomic.NewInt64(0),
		state:   types.StateStopped,
		subs:    make(map[int]func(Update)),
	}
}

// Profile returns the profile name.
func (m *Meter) Profile() string {
	return m.opts.Profile
}

// State returns the current meter state.
func (m *Meter) State() types.MeterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SessionID returns the identifier of the current or last session.
func (m *Meter) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// Latest returns the most recent reading without locking.
func (m *Meter) Latest() level.Reading {
	return level.Reading(m.latest.Load())
}

// Stats returns a snapshot of the session statistics.
func (m *Meter) Stats() level.Stats {
	return m.session.Snapshot()
}

// Elapsed returns the time spent sampling in the current session. Paused
// periods are not counted.
func (m *Meter) Elapsed() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.elapsedLocked()
}

func (m *Meter) elapsedLocked() time.Duration {
	if m.runStart.IsZero() {
		return m.elapsed
	}
	return m.elapsed + time.Since(m.runStart)
}

// Subscribe registers fn to receive every Update. fn is called on the
// sampling goroutine and must not block. The returned function unsubscribes.
func (m *Meter) Subscribe(fn func(Update)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// Status returns the current profile status.
func (m *Meter) Status() types.ProfileStatus {
	st := m.session.Snapshot()

	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := m.elapsedLocked()
	status := types.ProfileStatus{
		Name:       m.opts.Profile,
		IntervalMs: m.opts.Interval.Milliseconds(),
		State:      m.state,
		SessionID:  m.sessionID,
		ElapsedMs:  elapsed.Milliseconds(),
		Elapsed:    util.FormatDuration(elapsed.Milliseconds()),
		Latest:     int(m.Latest()),
		InLoud:     m.loud.InLoud(),
		RetryCount: m.retryCount,
		MaxRetries: m.opts.MaxRetries,
		LastError:  m.lastError,
		Stats:      Summarize(&st),
	}
	for _, r := range st.Tail(m.opts.ChartPoints) {
		status.Chart = append(status.Chart, int(r))
	}
	return status
}

// Summarize converts session statistics to their wire form.
func Summarize(st *level.Stats) types.LevelStats {
	ls := types.LevelStats{Count: st.Count()}
	if avg, ok := st.Average(); ok {
		ls.Min = int(st.Min)
		ls.Max = int(st.Max)
		ls.Average = avg
	}
	return ls
}

// Start begins a new session and starts sampling. Cancelling ctx stops
// sampling as if Stop had been called.
func (m *Meter) Start(ctx context.Context) error {
	if m.opts.Open == nil {
		return ErrNoSource
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.StateStopped {
		return ErrAlreadyRunning
	}

	m.session.Reset()
	m.loud.Reset()
	m.latest.Store(0)
	m.sessionID = uuid.NewString()
	m.elapsed = 0
	m.lastError = ""
	m.parent = ctx
	m.state = types.StateStarting
	m.startLoopLocked()

	slog.Info("session started", "profile", m.opts.Profile, "session_id", m.sessionID, "interval", m.opts.Interval)
	m.logSession(eventlog.SessionStarted, m.sessionID, "session started", nil)
	return nil
}

// startLoopLocked launches the sampling goroutine. Caller must hold m.mu.
func (m *Meter) startLoopLocked() {
	ctx, cancel := context.WithCancel(m.parent)
	m.cancel = cancel
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	m.retryCount = 0
	m.backoff.Reset()
	m.runStart = time.Now()

	go m.run(ctx, m.stopChan, m.done)
}

// haltLoop signals the sampling goroutine to exit, releases the source and
// waits for the goroutine. The caller must hold m.opMu and must have moved
// the state away from starting/running while holding m.mu.
func (m *Meter) haltLoop() {
	m.mu.Lock()
	stopChan, done, cancel, src := m.stopChan, m.done, m.cancel, m.source
	m.mu.Unlock()

	if stopChan != nil {
		close(stopChan)
	}
	if cancel != nil {
		cancel()
	}
	// Closing unblocks a pending read.
	if src != nil {
		if err := src.Close(); err != nil {
			slog.Warn("failed to close audio source", "profile", m.opts.Profile, "error", err)
		}
	}
	if done != nil {
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if done == nil || m.done != done {
		// The loop already finalized itself.
		return
	}
	m.stopChan = nil
	m.done = nil
	m.cancel = nil
	if !m.runStart.IsZero() {
		m.elapsed += time.Since(m.runStart)
		m.runStart = time.Time{}
	}
}

// Stop ends the session. The session statistics remain readable until the
// next Start. Stopping a stopped meter is a no-op.
func (m *Meter) Stop() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prev := m.state
	switch prev {
	case types.StateStopped, types.StateStopping:
		m.mu.Unlock()
		return nil
	case types.StatePaused:
		m.state = types.StateStopped
		m.mu.Unlock()
		m.endSession("session stopped")
		return nil
	}
	m.state = types.StateStopping
	m.mu.Unlock()

	m.haltLoop()

	m.mu.Lock()
	m.state = types.StateStopped
	m.mu.Unlock()

	m.endSession("session stopped")
	return nil
}

// Pause suspends sampling and releases the source but keeps the session.
func (m *Meter) Pause() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != types.StateRunning && m.state != types.StateStarting {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.state = types.StatePaused
	m.mu.Unlock()

	m.haltLoop()

	slog.Info("session paused", "profile", m.opts.Profile, "session_id", m.SessionID())
	m.logSession(eventlog.SessionPaused, m.SessionID(), "session paused", nil)
	return nil
}

// Resume continues a paused session with a fresh source.
func (m *Meter) Resume() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.StatePaused {
		return ErrNotPaused
	}
	m.state = types.StateStarting
	m.startLoopLocked()

	slog.Info("session resumed", "profile", m.opts.Profile, "session_id", m.sessionID)
	m.logSession(eventlog.SessionResumed, m.sessionID, "session resumed", nil)
	return nil
}

// Wait blocks until the current sampling goroutine exits.
func (m *Meter) Wait() {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// run executes the sampling loop, reopening the source with backoff when it
// fails.
func (m *Meter) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	reason := "session ended"
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in sampling loop", "profile", m.opts.Profile, "panic", r)
			reason = fmt.Sprintf("internal error: %v", r)
		}
		m.loopExited(done, reason)
		close(done)
	}()

	for {
		if stopRequested(ctx, stop) {
			return
		}

		startTime := time.Now()
		err := m.runSource(ctx, stop)
		runDuration := time.Since(startTime)

		if err == nil {
			return
		}
		if errors.Is(err, errSourceEnded) {
			reason = "source ended"
			return
		}
		if stopRequested(ctx, stop) {
			return
		}

		m.mu.Lock()
		m.lastError = err.Error()
		if runDuration >= types.SuccessThreshold {
			m.retryCount = 0
			m.backoff.Reset()
		}
		m.retryCount++
		attempt := m.retryCount
		if attempt >= m.opts.MaxRetries {
			m.lastError = fmt.Sprintf("stopped after %d failed attempts: %s", m.opts.MaxRetries, err)
			m.mu.Unlock()
			slog.Error("audio source failed, giving up", "profile", m.opts.Profile, "attempts", attempt)
			reason = m.lastErrorValue()
			return
		}
		if m.state == types.StateRunning {
			m.state = types.StateStarting
		}
		retryDelay := m.backoff.Next()
		m.mu.Unlock()

		slog.Error("audio source error", "profile", m.opts.Profile, "error", err)
		slog.Info("waiting before reopening source",
			"profile", m.opts.Profile, "delay", retryDelay, "attempt", attempt+1, "max_retries", m.opts.MaxRetries)
		m.logSession(eventlog.SourceRetry, m.SessionID(), "reopening source", &eventlog.SessionDetails{
			Error:      err.Error(),
			RetryCount: attempt,
			MaxRetries: m.opts.MaxRetries,
		})

		timer := time.NewTimer(retryDelay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Meter) lastErrorValue() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// runSource opens one source and samples it until stop, end of data or a
// read error. A nil error means sampling was asked to stop.
func (m *Meter) runSource(ctx context.Context, stop <-chan struct{}) (err error) {
	raw, err := m.opts.Open(ctx)
	if err != nil {
		return util.WrapError("open audio source", err)
	}
	src := newOnceSource(raw)

	m.mu.Lock()
	if m.state != types.StateStarting && m.state != types.StateRunning {
		// Stopped while the source was opening.
		m.mu.Unlock()
		if err := src.Close(); err != nil {
			slog.Warn("failed to close audio source", "profile", m.opts.Profile, "error", err)
		}
		return nil
	}
	m.source = src
	m.state = types.StateRunning
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.source = nil
		m.mu.Unlock()
		if cerr := src.Close(); cerr != nil {
			slog.Warn("failed to close audio source", "profile", m.opts.Profile, "error", cerr)
		}
	}()

	block := make([]int16, m.opts.BlockSize)
	var timer *time.Timer
	if m.opts.Interval > 0 {
		timer = time.NewTimer(m.opts.Interval)
		timer.Stop()
		defer timer.Stop()
	}

	for {
		if stopRequested(ctx, stop) {
			return nil
		}

		n, rerr := src.ReadBlock(ctx, block)
		if n > 0 {
			m.process(block[:n], time.Now())
		}
		if rerr != nil {
			if stopRequested(ctx, stop) {
				return nil
			}
			if errors.Is(rerr, io.EOF) {
				return errSourceEnded
			}
			return rerr
		}

		if timer == nil {
			continue
		}
		timer.Reset(m.opts.Interval)
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// process turns one block into a reading and publishes it.
func (m *Meter) process(block []int16, now time.Time) {
	r, ok, err := level.ComputeLevel(block)
	if err != nil {
		slog.Warn("failed to compute level", "profile", m.opts.Profile, "error", err)
		return
	}
	if !ok {
		// Silent block: level is undefined.
		return
	}

	m.session.Record(r)
	m.latest.Store(int64(r))

	display := level.DisplayValue(r)
	ev := m.loud.Update(display, m.opts.Loud, now)
	m.handleLoudEvent(&ev, display)

	m.publish(Update{
		Profile:   m.opts.Profile,
		SessionID: m.SessionID(),
		Time:      now,
		Reading:   r,
		Display:   display,
		Loud:      IsLoud(display, m.opts.Loud),
		InLoud:    ev.InLoud,
		Stats:     m.session.Snapshot(),
	})
}

func (m *Meter) handleLoudEvent(ev *LoudEvent, display int) {
	switch {
	case ev.JustEntered:
		slog.Warn("sustained loud noise", "profile", m.opts.Profile, "level_db", display,
			"threshold_db", m.opts.Loud.ThresholdDB, "duration_ms", ev.DurationMs)
		if l := m.opts.Events; l != nil {
			sessionID := m.SessionID()
			util.LogResult(func() error {
				return l.LogLoudStart(m.opts.Profile, sessionID, display, m.opts.Loud.ThresholdDB)
			}, "log loud start")
		}
	case ev.JustRecovered:
		slog.Info("loud noise ended", "profile", m.opts.Profile, "level_db", display,
			"duration", util.FormatDuration(ev.TotalDurationMs))
		if l := m.opts.Events; l != nil {
			sessionID := m.SessionID()
			util.LogResult(func() error {
				return l.LogLoudEnd(m.opts.Profile, sessionID, display, m.opts.Loud.ThresholdDB, ev.TotalDurationMs)
			}, "log loud end")
		}
	}
}

func (m *Meter) publish(u Update) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, fn := range m.subs {
		fn(u)
	}
}

// loopExited finalizes a session whose sampling goroutine ended on its own,
// without Stop or Pause. done identifies the exiting goroutine.
func (m *Meter) loopExited(done chan<- struct{}, reason string) {
	m.mu.Lock()
	if m.done != done || (m.state != types.StateStarting && m.state != types.StateRunning) {
		// Stop or Pause is finalizing, or a newer loop owns the meter.
		m.mu.Unlock()
		return
	}
	m.state = types.StateStopped
	if !m.runStart.IsZero() {
		m.elapsed += time.Since(m.runStart)
		m.runStart = time.Time{}
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.stopChan = nil
	m.done = nil
	m.cancel = nil
	m.mu.Unlock()

	m.endSession(reason)
}

// endSession logs the end of the current session with its statistics.
func (m *Meter) endSession(reason string) {
	st := m.session.Snapshot()
	details := &eventlog.SessionDetails{
		Readings:  st.Count(),
		ElapsedMs: m.Elapsed().Milliseconds(),
	}
	if avg, ok := st.AverageInt(); ok {
		details.MinDB = int(st.Min)
		details.MaxDB = int(st.Max)
		details.AvgDB = avg
	}
	m.mu.RLock()
	details.Error = m.lastError
	m.mu.RUnlock()

	sessionID := m.SessionID()
	slog.Info("session ended", "profile", m.opts.Profile, "session_id", sessionID,
		"reason", reason, "readings", details.Readings)
	m.logSession(eventlog.SessionEnded, sessionID, reason, details)
}

// logSession writes a session event if an event log is configured. It does
// not take m.mu.
func (m *Meter) logSession(eventType eventlog.EventType, sessionID, message string, details *eventlog.SessionDetails) {
	l := m.opts.Events
	if l == nil {
		return
	}
	util.LogResult(func() error {
		return l.LogSession(eventType, m.opts.Profile, sessionID, message, details)
	}, "log "+string(eventType))
}

// stopRequested reports whether sampling should end.
func stopRequested(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
