package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	LogDir        string `toml:"log_dir"`
	StateDir      string `toml:"state_dir"`
	APIBind       string `toml:"api_bind"`
	APIToken      string `toml:"api_token"`
}

// Capture contains per-recording limits and timing for native capture.
type Capture struct {
	SizeLimitBytes          int64 `toml:"size_limit_bytes"`
	MaxTracks               int   `toml:"max_tracks"`
	BufferDepth             int   `toml:"buffer_depth"`
	SpotCheckInterval       int   `toml:"spot_check_interval"`
	IdleIntervalSeconds     int   `toml:"idle_interval_seconds"`
	IdleWarnSamples         int   `toml:"idle_warn_samples"`
	ReconnectAttempts       int   `toml:"reconnect_attempts"`
	ReconnectBackoffSeconds int   `toml:"reconnect_backoff_seconds"`
	MinFreeBytes            int64 `toml:"min_free_bytes"`
}

// Bridge contains configuration for browser-originated audio peers.
type Bridge struct {
	Enabled                 bool  `toml:"enabled"`
	SizeLimitBytes          int64 `toml:"size_limit_bytes"`
	SpeakingDebounceMS      int   `toml:"speaking_debounce_ms"`
	GranuleToleranceSeconds int   `toml:"granule_tolerance_seconds"`
	MaxNickSuffix           int   `toml:"max_nick_suffix"`
	MaxMessageBytes         int64 `toml:"max_message_bytes"`
}

// Transport selects the native audio source.
type Transport struct {
	Kind    string            `toml:"kind"`
	RTPBind string            `toml:"rtp_bind"`
	SSRCMap map[string]string `toml:"ssrc_map"`
}

// Policy contains the recording entitlements resolved for every recording.
type Policy struct {
	MaxRecordHours float64  `toml:"max_record_hours"`
	RetentionHours int      `toml:"retention_hours"`
	Features       []string `toml:"features"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Started        bool   `toml:"started"`
	Finished       bool   `toml:"finished"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for voxtape.
//
// Configuration sections by subsystem:
//   - Paths: recording output, logs, daemon state, and API bind address
//   - Capture: per-recording byte ceiling, buffering, idle, and reconnect knobs
//   - Bridge: browser peer ingestion limits and speaking debounce
//   - Transport: native RTP source settings
//   - Policy: entitlements resolved at recording start
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, rotation, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Bridge        Bridge        `toml:"bridge"`
	Transport     Transport     `toml:"transport"`
	Policy        Policy        `toml:"policy"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voxtape/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voxtape.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the recording metadata database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "recordings.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "voxtape.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "voxtape.lock")
}

// PIDPath returns where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "voxtaped.pid")
}

// IdleInterval returns the idle sampling period.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Capture.IdleIntervalSeconds) * time.Second
}

// ReconnectBackoff returns the base delay between reconnect attempts.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Capture.ReconnectBackoffSeconds) * time.Second
}

// SpeakingDebounce returns the trailing delay before a bridged track is
// reported as no longer speaking.
func (c *Config) SpeakingDebounce() time.Duration {
	return time.Duration(c.Bridge.SpeakingDebounceMS) * time.Millisecond
}

// FeatureEnabled reports whether the policy lists the named feature.
func (c *Config) FeatureEnabled(name string) bool {
	for _, f := range c.Policy.Features {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
