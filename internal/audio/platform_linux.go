//go:build linux

package audio

import (
	"regexp"
	"strconv"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string, sampleRate int) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(sampleRate),
		"-c", strconv.Itoa(Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

func deviceListConfig() DeviceListConfig {
	return DeviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 4 {
				return nil
			}
			return &Device{
				ID:   "plughw:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []Device{
			{ID: "default", Name: "System default"},
		},
	}
}
