package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrUnknownProfile is returned for a profile name that is not configured.
var ErrUnknownProfile = errors.New("unknown profile")

// Manager owns one Meter per configured profile.
//
// Concurrency: mu protects the meters map; each Meter does its own locking.
type Manager struct {
	mu     sync.RWMutex
	meters map[string]*Meter
	order  []string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		meters: make(map[string]*Meter),
	}
}

// Add registers a meter under its profile name.
func (m *Manager) Add(meter *Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := meter.Profile()
	if _, exists := m.meters[name]; exists {
		return fmt.Errorf("profile %q already registered", name)
	}
	m.meters[name] = meter
	m.order = append(m.order, name)
	return nil
}

// Meter returns the meter for a profile.
func (m *Manager) Meter(name string) (*Meter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meter, ok := m.meters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return meter, nil
}

// Meters returns all meters in registration order.
func (m *Manager) Meters() []*Meter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meters := make([]*Meter, 0, len(m.order))
	for _, name := range m.order {
		meters = append(meters, m.meters[name])
	}
	return meters
}

// Names returns the profile names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Start starts the named profile.
func (m *Manager) Start(ctx context.Context, name string) error {
	meter, err := m.Meter(name)
	if err != nil {
		return err
	}
	return meter.Start(ctx)
}

// StartAll starts the named profiles and logs failures.
func (m *Manager) StartAll(ctx context.Context, names []string) {
	for _, name := range names {
		if err := m.Start(ctx, name); err != nil {
			slog.Error("failed to start profile", "profile", name, "error", err)
		}
	}
}

// Subscribe registers fn on every meter. The returned function unsubscribes
// from all of them.
func (m *Manager) Subscribe(fn func(Update)) (unsubscribe func()) {
	meters := m.Meters()
	unsubs := make([]func(), 0, len(meters))
	for _, meter := range meters {
		unsubs = append(unsubs, meter.Subscribe(fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// StopAll stops every meter and collects the errors.
func (m *Manager) StopAll() error {
	meters := m.Meters()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, meter := range meters {
		wg.Go(func() {
			if err := meter.Stop(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", meter.Profile(), err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
