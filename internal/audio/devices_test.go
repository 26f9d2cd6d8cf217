package audio

import (
	"regexp"
	"testing"
)

func TestParseDeviceOutputSections(t *testing.T) {
	cfg := &DeviceListConfig{
		AudioStartMarker: "audio devices:",
		AudioStopMarker:  "video devices:",
		DevicePattern:    regexp.MustCompile(`\[(\d+)\]\s*(.+)`),
		ParseDevice: func(m []string) *Device {
			return &Device{ID: ":" + m[1], Name: m[2]}
		},
	}

	output := "video devices:\n[0] Camera\naudio devices:\n[0] Built-in Microphone\n[1] USB Mic\nvideo devices:\n[2] Screen\n"
	got := parseDeviceOutput(cfg, output)

	want := []Device{{ID: ":0", Name: "Built-in Microphone"}, {ID: ":1", Name: "USB Mic"}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseDeviceOutputFallback(t *testing.T) {
	fallback := []Device{{ID: "default", Name: "System default"}}
	cfg := &DeviceListConfig{
		DevicePattern:   regexp.MustCompile(`card (\d+)`),
		ParseDevice:     func(m []string) *Device { return &Device{ID: m[1]} },
		FallbackDevices: fallback,
	}

	got := parseDeviceOutput(cfg, "no cards here\n")
	if len(got) != 1 || got[0] != fallback[0] {
		t.Errorf("got %v, want fallback", got)
	}
}
