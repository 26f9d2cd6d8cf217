package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path, "v1.2.0")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("written config is not JSON: %v", err)
	}
	if onDisk["config_version"] != "1.2.0" {
		t.Errorf("config_version = %v, want 1.2.0", onDisk["config_version"])
	}

	snap := cfg.Snapshot()
	if snap.WebPort != DefaultWebPort || snap.SampleRate != DefaultSampleRate {
		t.Errorf("port/sample rate = %d/%d", snap.WebPort, snap.SampleRate)
	}
	if snap.HighNoiseDB != DefaultHighNoiseDB || snap.ChartPoints != DefaultChartPoints {
		t.Errorf("high noise/chart points = %d/%d", snap.HighNoiseDB, snap.ChartPoints)
	}
	if len(snap.Profiles) != 2 {
		t.Fatalf("profiles = %+v", snap.Profiles)
	}
	if snap.Profiles[0].IntervalMs != 1000 || snap.Profiles[1].IntervalMs != 200 {
		t.Errorf("default cadences = %d/%d, want 1000/200", snap.Profiles[0].IntervalMs, snap.Profiles[1].IntervalMs)
	}
}

func TestLoadDevBuildDoesNotStampVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path, "dev")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v := cfg.Snapshot().ConfigVersion; v != "" {
		t.Errorf("ConfigVersion = %q, want empty", v)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noisemeter.yaml")
	writeFile(t, path, `
system:
  port: 9090
session:
  location: Vlissingen
  high_noise_db: 65
profiles:
  - name: fast
    interval_ms: 100
    block_size: 512
`)

	cfg := New(path, "dev")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != 9090 || snap.Location != "Vlissingen" || snap.HighNoiseDB != 65 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Profiles) != 1 || snap.Profiles[0].Name != "fast" {
		t.Fatalf("file profiles must replace defaults, got %+v", snap.Profiles)
	}
	if snap.LoudDurationMs != DefaultLoudDurationMs {
		t.Errorf("LoudDurationMs = %d, want default", snap.LoudDurationMs)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"system":{"port":8081},"session":{"location":"Studio"}}`)
	writeFile(t, filepath.Join(dir, ".env"), "NOISEMETER_AUDIO_INPUT=hw:1\n")

	t.Setenv(EnvPort, "9191")
	t.Setenv(EnvLocation, "Middelburg")
	// godotenv does not override existing variables. t.Setenv restores the
	// original state, so the value loaded from .env does not leak.
	t.Setenv(EnvAudioInput, "")
	if err := os.Unsetenv(EnvAudioInput); err != nil {
		t.Fatal(err)
	}

	cfg := New(path, "dev")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != 9191 {
		t.Errorf("port = %d, want 9191", snap.WebPort)
	}
	if snap.Location != "Middelburg" {
		t.Errorf("location = %q", snap.Location)
	}
	if snap.AudioInput != "hw:1" {
		t.Errorf("audio input = %q, want value from .env", snap.AudioInput)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"system":{"port":8081},"session":{"location":"Studio"}}` {
		t.Error("overrides were written back to the config file")
	}
}

func TestLoadInvalidPortFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{}`)
	t.Setenv(EnvPort, "eighty")

	if err := New(path, "dev").Load(); err == nil {
		t.Fatal("Load accepted a non-numeric port")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		field string
	}{
		{"port", `{"system":{"port":70000}}`, "system.port"},
		{"threshold", `{"session":{"high_noise_db":130}}`, "session.high_noise_db"},
		{"event log traversal", `{"session":{"event_log_path":"../../etc/x"}}`, "session.event_log_path"},
		{"profile name", `{"profiles":[{"name":"bad name","interval_ms":200}]}`, "profiles[0].name"},
		{"profile interval", `{"profiles":[{"name":"fast","interval_ms":10}]}`, "profiles[0].interval_ms"},
		{"duplicate profiles", `{"profiles":[{"name":"a"},{"name":"a"}]}`, "profiles"},
		{"config version", `{"config_version":"latest"}`, "config_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.json)

			err := New(path, "dev").Load()
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Load() = %v, want validation error", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					return
				}
			}
			t.Errorf("no error for %q in %+v", tt.field, verr.Errors)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"system":`)

	if err := New(path, "dev").Load(); err == nil {
		t.Fatal("Load accepted malformed JSON")
	}
}

func TestProfileLookup(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"), "dev")

	p, ok := cfg.Profile("overlay")
	if !ok || p.Interval().Milliseconds() != 200 {
		t.Errorf("Profile(overlay) = %+v, %v", p, ok)
	}
	if _, ok := cfg.Profile("missing"); ok {
		t.Error("Profile(missing) reported found")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"), "dev")
	snap := cfg.Snapshot()
	snap.Profiles[0].Name = "changed"

	if p := cfg.Snapshot().Profiles[0]; p.Name != "main" {
		t.Errorf("snapshot shares profile storage: %q", p.Name)
	}
}

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.3.0", "1.2.9", true},
		{"v1.2.0", "1.2.0", false},
		{"1.2.0", "1.10.0", false},
		{"2.0.0", "dev", false},
		{"", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := IsNewerVersion(tt.a, tt.b); got != tt.want {
			t.Errorf("IsNewerVersion(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
