// internal/workers/coding/resolve-coding-rule/config.go
package resolvecodingrule

import "time"

type Config struct {
	CacheTTL time.Duration
	Timeout  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		CacheTTL: 5 * time.Minute,
		Timeout:  3 * time.Second,
	}
}
