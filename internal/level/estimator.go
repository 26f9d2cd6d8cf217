// Package level converts raw microphone samples into sound level readings and
// keeps running statistics over a measurement session.
package level

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// FullScale is the reference amplitude for 16-bit signed audio.
	FullScale = 32767.0
	// CalibrationOffset maps full-scale amplitude to roughly 94 dB SPL.
	CalibrationOffset = 94.0
)

// ErrInvalidInput is returned when a block cannot be measured.
var ErrInvalidInput = errors.New("invalid input block")

// Reading is a single decibel estimate derived from one block of samples.
// It is not clamped and may fall outside the display range.
type Reading int

// ComputeLevel estimates the sound level of a block of mono S16 samples.
// It reports ok=false when the block has no energy, since the level of
// silence is undefined. The result depends only on block.
func ComputeLevel(block []int16) (r Reading, ok bool, err error) {
	if len(block) == 0 {
		return 0, false, fmt.Errorf("%w: empty block", ErrInvalidInput)
	}

	var sumSquares float64
	for _, s := range block {
		v := float64(s)
		sumSquares += v * v
	}

	rms := math.Sqrt(sumSquares / float64(len(block)))
	if rms <= 0 {
		return 0, false, nil
	}

	// Conversion to int truncates toward zero.
	db := 20*math.Log10(rms/FullScale) + CalibrationOffset
	return Reading(int(db)), true, nil
}

// DecodeS16LE decodes little-endian signed 16-bit mono PCM into dst and
// returns the filled slice. A trailing odd byte is ignored.
func DecodeS16LE(buf []byte, dst []int16) []int16 {
	n := len(buf) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:])) //nolint:gosec // Reinterpreting PCM bits
	}
	return dst
}
