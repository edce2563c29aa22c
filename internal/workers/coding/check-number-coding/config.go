// internal/workers/coding/check-number-coding/config.go
package checknumbercoding

import (
	"time"

	"fleet-compliance/internal/common/config"
)

type Config struct {
	RepeatWindow    time.Duration
	RepeatThreshold int
	StartWarning    time.Duration
	Timeout         time.Duration
}

func LoadConfig() *Config {
	return &Config{
		RepeatWindow:    30 * 24 * time.Hour,
		RepeatThreshold: 2,
		StartWarning:    time.Hour,
		Timeout:         5 * time.Second,
	}
}

// ConfigFromCoding converts the coding section of the service configuration.
func ConfigFromCoding(in config.CodingConfig) *Config {
	cfg := LoadConfig()
	if in.RepeatWindowDays > 0 {
		cfg.RepeatWindow = time.Duration(in.RepeatWindowDays) * 24 * time.Hour
	}
	if in.RepeatThreshold > 0 {
		cfg.RepeatThreshold = in.RepeatThreshold
	}
	if in.StartWarningMinute > 0 {
		cfg.StartWarning = time.Duration(in.StartWarningMinute) * time.Minute
	}
	return cfg
}
