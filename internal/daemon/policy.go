package daemon

import (
	"context"
	"strings"

	"voxtape/internal/capture"
	"voxtape/internal/config"
)

// FeatureBridge allows a recording to accept web peers.
const FeatureBridge = "bridge"

// PolicyResolver decides the entitlements of a recording before it starts.
type PolicyResolver interface {
	Resolve(ctx context.Context, req StartRequest) (capture.Policy, error)
}

// StaticPolicy grants every recording the policy from configuration.
type StaticPolicy struct {
	policy capture.Policy
}

// NewStaticPolicy reads the policy section of cfg.
func NewStaticPolicy(cfg *config.Config) StaticPolicy {
	features := make([]string, 0, len(cfg.Policy.Features))
	for _, f := range cfg.Policy.Features {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, strings.ToLower(f))
		}
	}
	return StaticPolicy{policy: capture.Policy{
		MaxRecordHours:            cfg.Policy.MaxRecordHours,
		MaxDownloadRetentionHours: cfg.Policy.RetentionHours,
		EnabledFeatures:           features,
	}}
}

// Resolve implements PolicyResolver.
func (p StaticPolicy) Resolve(context.Context, StartRequest) (capture.Policy, error) {
	out := p.policy
	out.EnabledFeatures = append([]string(nil), p.policy.EnabledFeatures...)
	return out, nil
}
