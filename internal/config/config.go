// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
	"github.com/oszuidwest/zwfm-noisemeter/internal/validation"
	"gopkg.in/yaml.v3"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort        = 8080
	DefaultSampleRate     = 44100
	DefaultChartPoints    = 60
	DefaultLocation       = "Unknown location"
	DefaultHighNoiseDB    = 50
	DefaultLoudDurationMs = 5000 // 5 seconds in milliseconds
	DefaultLoudRecoveryMs = 3000 // 3 seconds in milliseconds
	DefaultBlockSize      = 1024
)

// Default profile cadences.
const (
	DefaultMainIntervalMs    = 1000
	DefaultOverlayIntervalMs = 200
)

// Environment variables that override file values.
const (
	EnvPort       = "NOISEMETER_PORT"
	EnvAudioInput = "NOISEMETER_AUDIO_INPUT"
	EnvLocation   = "NOISEMETER_LOCATION"
	EnvLogPath    = "NOISEMETER_LOG_PATH"
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port       int    `json:"port" yaml:"port" validate:"gte=1,lte=65535"`                     // HTTP server port
	FFmpegPath string `json:"ffmpeg_path" yaml:"ffmpeg_path" validate:"omitempty,max=4096"`    // Path to FFmpeg binary (empty = use PATH)
	LogPath    string `json:"log_path" yaml:"log_path" validate:"omitempty,max=4096,safepath"` // Rotating application log (empty = stdout only)
	Debug      bool   `json:"debug" yaml:"debug"`                                              // Enable debug logging
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input      string `json:"input" yaml:"input" validate:"omitempty,max=256"`               // Audio input device identifier
	SampleRate int    `json:"sample_rate" yaml:"sample_rate" validate:"gte=8000,lte=192000"` // Capture sample rate in Hz
}

// DisplayConfig holds settings for display consumers.
type DisplayConfig struct {
	ChartPoints int `json:"chart_points" yaml:"chart_points" validate:"gte=1,lte=3600"` // Readings kept in the chart window
}

// SessionConfig holds measurement session settings.
type SessionConfig struct {
	Location       string `json:"location" yaml:"location" validate:"max=200"`                                 // Location label for reports
	HighNoiseDB    int    `json:"high_noise_db" yaml:"high_noise_db" validate:"gte=1,lte=120"`                 // Loud threshold in dB
	LoudDurationMs int64  `json:"loud_duration_ms" yaml:"loud_duration_ms" validate:"gte=500,lte=300000"`      // Duration above threshold before loud alert
	LoudRecoveryMs int64  `json:"loud_recovery_ms" yaml:"loud_recovery_ms" validate:"gte=500,lte=60000"`       // Duration below threshold before recovery
	EventLogPath   string `json:"event_log_path" yaml:"event_log_path" validate:"omitempty,max=4096,safepath"` // JSON lines event log (empty = disabled)
}

// ProfileConfig holds one sampling profile.
type ProfileConfig struct {
	Name       string `json:"name" yaml:"name" validate:"required,max=32,alphanum"`       // Profile name
	IntervalMs int64  `json:"interval_ms" yaml:"interval_ms" validate:"gte=50,lte=60000"` // Wait between blocks
	BlockSize  int    `json:"block_size" yaml:"block_size" validate:"gte=64,lte=65536"`   // Samples per block
	AutoStart  bool   `json:"auto_start" yaml:"auto_start"`                               // Start sampling at launch
}

// Interval returns the profile's sampling interval.
func (p *ProfileConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	ConfigVersion string          `json:"config_version,omitempty" yaml:"config_version,omitempty" validate:"omitempty,semver"`
	System        SystemConfig    `json:"system" yaml:"system"`
	Audio         AudioConfig     `json:"audio" yaml:"audio"`
	Display       DisplayConfig   `json:"display" yaml:"display"`
	Session       SessionConfig   `json:"session" yaml:"session"`
	Profiles      []ProfileConfig `json:"profiles" yaml:"profiles" validate:"required,min=1,unique=Name,dive"`

	mu         sync.RWMutex
	filePath   string
	appVersion string
}

// DefaultProfiles returns the built-in profiles: a once-per-second main
// profile and a fast overlay profile.
func DefaultProfiles() []ProfileConfig {
	return []ProfileConfig{
		{Name: "main", IntervalMs: DefaultMainIntervalMs, BlockSize: DefaultBlockSize, AutoStart: true},
		{Name: "overlay", IntervalMs: DefaultOverlayIntervalMs, BlockSize: DefaultBlockSize},
	}
}

// New creates a new Config with default values. appVersion is the version of
// the running build; it is recorded in newly written files.
func New(filePath, appVersion string) *Config {
	c := &Config{
		filePath:   filePath,
		appVersion: appVersion,
	}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists. A .env
// file next to the config file and the process environment override file
// values; overrides are never written back.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		if v := canonicalVersion(c.appVersion); isReleaseVersion(v) {
			c.ConfigVersion = normalizeVersion(v)
		}
		if err := c.saveLocked(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		// Profiles from the file replace the defaults rather than merging.
		c.Profiles = nil
		if err := c.unmarshal(data); err != nil {
			return util.WrapError("parse config", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return err
	}

	c.applyDefaults()

	if err := validation.Struct(c); err != nil {
		return err
	}

	if IsNewerVersion(c.ConfigVersion, c.appVersion) {
		slog.Warn("config file was written by a newer version", "config_version", c.ConfigVersion, "version", c.appVersion)
	}

	return nil
}

// isYAML reports whether the config file uses YAML syntax.
func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// unmarshal decodes data in the format implied by the file extension.
func (c *Config) unmarshal(data []byte) error {
	if c.isYAML() {
		return yaml.Unmarshal(data, c)
	}
	return json.Unmarshal(data, c)
}

// applyEnv loads the optional .env file and applies environment overrides.
func (c *Config) applyEnv() error {
	envFile := filepath.Join(filepath.Dir(c.filePath), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return util.WrapError("load .env", err)
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.System.Port = port
	}
	if v := os.Getenv(EnvAudioInput); v != "" {
		c.Audio.Input = v
	}
	if v := os.Getenv(EnvLocation); v != "" {
		c.Session.Location = v
	}
	if v := os.Getenv(EnvLogPath); v != "" {
		c.System.LogPath = v
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	// Audio defaults
	c.Audio.SampleRate = cmp.Or(c.Audio.SampleRate, DefaultSampleRate)
	// Display defaults
	c.Display.ChartPoints = cmp.Or(c.Display.ChartPoints, DefaultChartPoints)
	// Session defaults
	c.Session.Location = cmp.Or(c.Session.Location, DefaultLocation)
	c.Session.HighNoiseDB = cmp.Or(c.Session.HighNoiseDB, DefaultHighNoiseDB)
	c.Session.LoudDurationMs = cmp.Or(c.Session.LoudDurationMs, DefaultLoudDurationMs)
	c.Session.LoudRecoveryMs = cmp.Or(c.Session.LoudRecoveryMs, DefaultLoudRecoveryMs)
	// Profile defaults
	if len(c.Profiles) == 0 {
		c.Profiles = DefaultProfiles()
	}
	for i := range c.Profiles {
		c.Profiles[i].IntervalMs = cmp.Or(c.Profiles[i].IntervalMs, DefaultMainIntervalMs)
		c.Profiles[i].BlockSize = cmp.Or(c.Profiles[i].BlockSize, DefaultBlockSize)
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// FilePath returns the path the configuration was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// Profile returns a copy of the profile with the given name.
func (c *Config) Profile(name string) (ProfileConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.Profiles, func(p ProfileConfig) bool { return p.Name == name })
	if i == -1 {
		return ProfileConfig{}, false
	}
	return c.Profiles[i], true
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	ConfigVersion string

	// System
	WebPort    int
	FFmpegPath string
	LogPath    string
	Debug      bool

	// Audio
	AudioInput string
	SampleRate int

	// Display
	ChartPoints int

	// Session
	Location       string
	HighNoiseDB    int
	LoudDurationMs int64
	LoudRecoveryMs int64
	EventLogPath   string

	// Entities
	Profiles []ProfileConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		ConfigVersion: c.ConfigVersion,

		WebPort:    c.System.Port,
		FFmpegPath: c.System.FFmpegPath,
		LogPath:    c.System.LogPath,
		Debug:      c.System.Debug,

		AudioInput: c.Audio.Input,
		SampleRate: c.Audio.SampleRate,

		ChartPoints: c.Display.ChartPoints,

		Location:       c.Session.Location,
		HighNoiseDB:    c.Session.HighNoiseDB,
		LoudDurationMs: c.Session.LoudDurationMs,
		LoudRecoveryMs: c.Session.LoudRecoveryMs,
		EventLogPath:   c.Session.EventLogPath,

		Profiles: slices.Clone(c.Profiles),
	}
}

// HasEventLog reports whether an event log path is configured.
func (s *Snapshot) HasEventLog() bool {
	return s.EventLogPath != ""
}
