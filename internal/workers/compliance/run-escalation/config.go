// internal/workers/compliance/run-escalation/config.go
package runescalation

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 4 * time.Minute,
	}
}
