package testsupport

import (
	"path/filepath"
	"testing"

	"voxtape/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Transport.Kind = "none"
	cfgVal.Capture.MinFreeBytes = 0
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithNtfyTopic points notifications at a test endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithRTP enables the RTP transport on the given bind address.
func WithRTP(bind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transport.Kind = "rtp"
		b.cfg.Transport.RTPBind = bind
	}
}

// WithPolicy overrides the recording policy.
func WithPolicy(maxHours float64, retentionHours int, features ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Policy.MaxRecordHours = maxHours
		b.cfg.Policy.RetentionHours = retentionHours
		b.cfg.Policy.Features = features
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
