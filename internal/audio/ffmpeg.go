//go:build darwin

package audio

import "strconv"

// buildFFmpegCaptureArgs constructs FFmpeg arguments for mono audio capture.
func buildFFmpegCaptureArgs(inputFormat, device string, sampleRate int) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}
