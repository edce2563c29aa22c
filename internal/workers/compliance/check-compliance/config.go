// internal/workers/compliance/check-compliance/config.go
package checkcompliance

import (
	"time"

	"fleet-compliance/internal/common/config"
)

type Config struct {
	CheckTimeout    time.Duration // budget for agency verification inside one check
	SyncConcurrency int
	UpdateRetries   int
	Timeout         time.Duration
}

func LoadConfig() *Config {
	return &Config{
		CheckTimeout:    3 * time.Second,
		SyncConcurrency: 8,
		UpdateRetries:   3,
		Timeout:         30 * time.Second,
	}
}

// ConfigFromCompliance converts the compliance section of the service configuration.
func ConfigFromCompliance(in config.ComplianceConfig) *Config {
	cfg := LoadConfig()
	if in.CheckTimeout > 0 {
		cfg.CheckTimeout = config.GetDuration(in.CheckTimeout)
	}
	if in.SyncConcurrency > 0 {
		cfg.SyncConcurrency = in.SyncConcurrency
	}
	return cfg
}
