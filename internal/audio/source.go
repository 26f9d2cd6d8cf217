package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/level"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// ShutdownTimeout is how long a capture process gets to exit after the
// graceful signal before it is killed.
const ShutdownTimeout = 3000 * time.Millisecond

// Source yields fixed-size blocks of mono S16 samples.
type Source interface {
	// ReadBlock fills dst with the next block and returns the number of
	// samples read. It blocks until a block is available. A short final
	// block is returned with a nil error; io.EOF follows.
	ReadBlock(ctx context.Context, dst []int16) (int, error)
	// Close releases the underlying device or stream and unblocks a
	// pending ReadBlock.
	Close() error
}

// ReaderSource reads raw S16LE mono PCM from an io.Reader.
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource returns a Source reading from r. If r implements
// io.Closer it is closed by Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

// ReadBlock implements Source.
func (s *ReaderSource) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return readBlock(s.r, &s.buf, dst)
}

// Close implements Source.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// readBlock reads one block of little-endian samples from r into dst.
func readBlock(r io.Reader, scratch *[]byte, dst []int16) (int, error) {
	size := len(dst) * BytesPerSample
	if cap(*scratch) < size {
		*scratch = make([]byte, size)
	}
	buf := (*scratch)[:size]

	n, err := io.ReadFull(r, buf)
	samples := n / BytesPerSample
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF) && samples > 0:
		err = nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = io.EOF
	default:
		return 0, err
	}

	level.DecodeS16LE(buf[:samples*BytesPerSample], dst[:0:len(dst)])
	return samples, err
}

// CommandSource captures audio from an external process (arecord or FFmpeg)
// writing raw PCM to stdout.
type CommandSource struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
	buf    []byte

	waitOnce sync.Once
	waitErr  error
}

// StartCommandSource launches the platform capture command for device.
func StartCommandSource(device, ffmpegPath string, sampleRate int) (*CommandSource, error) {
	name, args, err := BuildCaptureCommand(device, ffmpegPath, sampleRate)
	if err != nil {
		return nil, err
	}

	slog.Info("starting audio capture", "command", name, "input", device, "sample_rate", sampleRate)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)

	// Send the graceful signal first, kill after WaitDelay.
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("create stdout pipe", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, util.WrapError("start capture", err)
	}

	return &CommandSource{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: &stderr,
	}, nil
}

// ReadBlock implements Source.
func (s *CommandSource) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := readBlock(s.stdout, &s.buf, dst)
	if err == nil || n > 0 {
		return n, err
	}

	// The process went away; reap it so stderr is complete.
	waitErr := s.wait()
	if msg := util.ExtractLastError(s.stderr.String()); msg != "" {
		return 0, fmt.Errorf("capture stopped: %s", msg)
	}
	if waitErr != nil {
		return 0, fmt.Errorf("capture stopped: %w", waitErr)
	}
	return 0, err
}

// Close implements Source. It stops the capture process and waits for it.
func (s *CommandSource) Close() error {
	s.cancel()
	err := s.wait()

	// Exit statuses caused by our own signal are expected.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
		return util.WrapError("stop capture", err)
	}
	return nil
}

func (s *CommandSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
