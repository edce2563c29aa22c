// internal/workers/compliance/evaluate-state/config.go
package evaluatestate

import (
	"time"

	"fleet-compliance/internal/common/config"
	"fleet-compliance/internal/models"
)

// Thresholds are the warning and critical windows of one domain, in days.
type Thresholds struct {
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

type Config struct {
	Thresholds map[models.Domain]Thresholds
	Timeout    time.Duration
}

func LoadConfig() *Config {
	return ConfigFromThresholds(config.DefaultThresholds)
}

// ConfigFromThresholds converts the configured per-domain thresholds.
func ConfigFromThresholds(in map[string]config.ThresholdConfig) *Config {
	cfg := &Config{
		Thresholds: make(map[models.Domain]Thresholds, len(in)),
		Timeout:    5 * time.Second,
	}
	for domain, th := range config.DefaultThresholds {
		cfg.Thresholds[models.Domain(domain)] = Thresholds{Warning: th.Warning, Critical: th.Critical}
	}
	for domain, th := range in {
		cfg.Thresholds[models.Domain(domain)] = Thresholds{Warning: th.Warning, Critical: th.Critical}
	}
	return cfg
}
