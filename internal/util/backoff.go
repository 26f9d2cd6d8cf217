package util

import (
	"sync"
	"time"
)

// Backoff yields the delays between attempts to reopen a failed audio
// source. Each delay doubles the previous one up to a ceiling.
// It is safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	next     time.Duration
	initial  time.Duration
	maxDelay time.Duration
}

// NewBackoff returns a Backoff starting at initial and capped at maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{
		next:     initial,
		initial:  initial,
		maxDelay: maxDelay,
	}
}

// Next returns the delay before the next reopen and doubles it for the
// attempt after.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.next
	b.next = min(2*b.next, b.maxDelay)
	return d
}

// Reset starts over from the initial delay, typically after a source ran
// long enough to count as healthy.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = b.initial
}
