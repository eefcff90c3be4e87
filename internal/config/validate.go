package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RecordingsDir == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.SizeLimitBytes <= 0 {
		return errors.New("capture.size_limit_bytes must be positive")
	}
	if c.Capture.MaxTracks <= 0 || c.Capture.MaxTracks >= 65536 {
		return errors.New("capture.max_tracks must be between 1 and 65535")
	}
	if c.Capture.ReconnectAttempts < 0 {
		return errors.New("capture.reconnect_attempts must be zero or positive")
	}
	if c.Capture.MinFreeBytes < 0 {
		return errors.New("capture.min_free_bytes must be zero or positive")
	}
	return nil
}

func (c *Config) validateBridge() error {
	if !c.Bridge.Enabled {
		return nil
	}
	if c.Bridge.SizeLimitBytes <= 0 {
		return errors.New("bridge.size_limit_bytes must be positive when bridge.enabled is true")
	}
	if c.Bridge.MaxNickSuffix < 2 {
		return errors.New("bridge.max_nick_suffix must be at least 2")
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Transport.Kind {
	case "rtp":
		if _, _, err := net.SplitHostPort(c.Transport.RTPBind); err != nil {
			return fmt.Errorf("transport.rtp_bind %q: %w", c.Transport.RTPBind, err)
		}
	case "none":
	default:
		return fmt.Errorf("transport.kind: unsupported value %q (want rtp or none)", c.Transport.Kind)
	}
	return nil
}

func (c *Config) validatePolicy() error {
	if c.Policy.MaxRecordHours <= 0 {
		return errors.New("policy.max_record_hours must be positive")
	}
	if c.Policy.RetentionHours < 0 {
		return errors.New("policy.retention_hours must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
