// Package audio provides microphone capture: platform capture commands, device
// discovery and block-oriented sample sources.
package audio

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// Sentinel errors for capture setup.
var (
	ErrNoAudioDevice       = errors.New("no audio input device found")
	ErrCaptureToolNotFound = errors.New("capture tool not found")
)

// Capture format. Samples are mono signed 16-bit little-endian.
const (
	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 44100
	// Channels is the number of captured channels.
	Channels = 1
	// BytesPerSample is the size of one S16LE sample.
	BytesPerSample = 2
)

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for audio capture.
	BuildArgs func(device string, sampleRate int) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it attempts to use the default or auto-detect.
// The ffmpegPath parameter is used on platforms that use FFmpeg for capture.
func BuildCaptureCommand(device, ffmpegPath string, sampleRate int) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Auto-detect if still empty (Windows has no safe default).
	if device == "" {
		devices := ListDevices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	command, err := resolveCaptureTool(&cfg, ffmpegPath)
	if err != nil {
		return "", nil, err
	}

	return command, cfg.BuildArgs(device, sampleRate), nil
}

// resolveCaptureTool locates the capture executable. A configured FFmpeg path
// wins on platforms that capture through FFmpeg.
func resolveCaptureTool(cfg *CaptureConfig, ffmpegPath string) (string, error) {
	custom := ""
	if cfg.UsesFFmpeg {
		custom = ffmpegPath
	}
	path := util.ResolveTool(cfg.Command, custom)
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrCaptureToolNotFound, cmp.Or(custom, cfg.Command))
	}
	return path, nil
}
