package meter

import (
	"context"
	"sync"

	"github.com/oszuidwest/zwfm-noisemeter/internal/audio"
)

// SourceFactory opens a new audio source. The meter owns the returned source
// and closes it when sampling ends.
type SourceFactory func(ctx context.Context) (audio.Source, error)

// onceSource makes Close idempotent so the loop and a concurrent Stop can both
// release the source while the device is released exactly once.
type onceSource struct {
	audio.Source

	once     sync.Once
	closeErr error
}

func newOnceSource(src audio.Source) *onceSource {
	return &onceSource{Source: src}
}

// Close closes the wrapped source on the first call and returns the same
// result on every call.
func (s *onceSource) Close() error {
	s.once.Do(func() {
		s.closeErr = s.Source.Close()
	})
	return s.closeErr
}
