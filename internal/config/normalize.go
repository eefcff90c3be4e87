package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeBridge()
	c.normalizeTransport()
	c.normalizePolicy()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		c.Paths.RecordingsDir = defaultRecordingsDir
	}
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VOXTAPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCapture() {
	if c.Capture.BufferDepth <= 0 {
		c.Capture.BufferDepth = defaultBufferDepth
	}
	if c.Capture.SpotCheckInterval <= 0 {
		c.Capture.SpotCheckInterval = defaultSpotCheckInterval
	}
	if c.Capture.IdleIntervalSeconds <= 0 {
		c.Capture.IdleIntervalSeconds = defaultIdleIntervalSeconds
	}
	if c.Capture.IdleWarnSamples <= 0 {
		c.Capture.IdleWarnSamples = defaultIdleWarnSamples
	}
	if c.Capture.ReconnectBackoffSeconds <= 0 {
		c.Capture.ReconnectBackoffSeconds = defaultReconnectBackoffSeconds
	}
}

func (c *Config) normalizeBridge() {
	if c.Bridge.SpeakingDebounceMS <= 0 {
		c.Bridge.SpeakingDebounceMS = defaultSpeakingDebounceMS
	}
	if c.Bridge.GranuleToleranceSeconds <= 0 {
		c.Bridge.GranuleToleranceSeconds = defaultGranuleToleranceSeconds
	}
	if c.Bridge.MaxNickSuffix <= 0 {
		c.Bridge.MaxNickSuffix = defaultMaxNickSuffix
	}
	if c.Bridge.MaxMessageBytes <= 0 {
		c.Bridge.MaxMessageBytes = defaultMaxMessageBytes
	}
}

func (c *Config) normalizeTransport() {
	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if c.Transport.Kind == "" {
		c.Transport.Kind = defaultTransportKind
	}
	c.Transport.RTPBind = strings.TrimSpace(c.Transport.RTPBind)
	if c.Transport.RTPBind == "" {
		c.Transport.RTPBind = defaultRTPBind
	}
}

func (c *Config) normalizePolicy() {
	features := make([]string, 0, len(c.Policy.Features))
	seen := make(map[string]struct{}, len(c.Policy.Features))
	for _, f := range c.Policy.Features {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		features = append(features, f)
	}
	c.Policy.Features = features
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VOXTAPE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}
