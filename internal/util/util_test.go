package util

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want 1s", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{45_000, "45s"},
		{154_000, "2m 34s"},
		{4_980_000, "1h 23m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatHumanTimeUnknown(t *testing.T) {
	for _, in := range []string{"", "unknown"} {
		if got := FormatHumanTime(in); got != "unknown" {
			t.Errorf("FormatHumanTime(%q) = %q", in, got)
		}
	}
	if got := FormatHumanTime("not-a-time"); got != "not-a-time" {
		t.Errorf("FormatHumanTime passes through unparsable input, got %q", got)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("open", nil) != nil {
		t.Error("WrapError(nil) must be nil")
	}

	base := errors.New("boom")
	err := WrapError("open device", base)
	if !errors.Is(err, base) {
		t.Error("wrapped error does not match base")
	}
	if err.Error() != "failed to open device: boom" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestExtractLastError(t *testing.T) {
	stderr := "line one\n\narecord: main:830: audio open error: Device or resource busy\n\n"
	if got := ExtractLastError(stderr); got != "arecord: main:830: audio open error: Device or resource busy" {
		t.Errorf("ExtractLastError = %q", got)
	}

	long := strings.Repeat("x", 300)
	if got := ExtractLastError(long); len(got) != maxErrorLineLength+3 {
		t.Errorf("long line not truncated: len %d", len(got))
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"", true},
		{"../etc/passwd", true},
		{"logs/../../x", true},
		{"/var/log/noisemeter/events.jsonl", false},
		{"events.jsonl", false},
	}
	for _, tt := range tests {
		err := ValidatePath("path", tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePath(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestCheckPathWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	if err := CheckPathWritable(dir); err != nil {
		t.Fatalf("CheckPathWritable: %v", err)
	}
}

