// internal/workers/compliance/monitoring-rules/config.go
package monitoringrules

import "time"

type Config struct {
	CatalogPath  string
	SeedDefaults bool
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
