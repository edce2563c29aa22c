// internal/workers/integration/government-gateway/config.go
package governmentgateway

import (
	"time"

	"fleet-compliance/internal/common/config"
	"fleet-compliance/internal/models"
)

type AgencyConfig struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RateLimit        int
	RateWindow       time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	CacheTTL         time.Duration
}

type Config struct {
	Agencies map[models.Agency]AgencyConfig
	Timeout  time.Duration
}

func defaultAgency() AgencyConfig {
	return AgencyConfig{
		Timeout:          5 * time.Second,
		RateLimit:        60,
		RateWindow:       time.Minute,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		CacheTTL:         time.Hour,
	}
}

func LoadConfig() *Config {
	return &Config{
		Agencies: map[models.Agency]AgencyConfig{},
		Timeout:  10 * time.Second,
	}
}

// ConfigFromAgencies converts the agencies section of the application config.
func ConfigFromAgencies(agencies map[string]config.AgencyConfig) *Config {
	cfg := LoadConfig()
	for name, a := range agencies {
		ac := defaultAgency()
		ac.BaseURL = a.BaseURL
		ac.APIKey = a.APIKey
		if a.Timeout > 0 {
			ac.Timeout = config.GetDuration(a.Timeout)
		}
		if a.RateLimit > 0 {
			ac.RateLimit = a.RateLimit
		}
		if a.RateWindow > 0 {
			ac.RateWindow = config.GetDuration(a.RateWindow)
		}
		if a.FailureThreshold > 0 {
			ac.FailureThreshold = a.FailureThreshold
		}
		if a.CacheTTL > 0 {
			ac.CacheTTL = time.Duration(a.CacheTTL) * time.Second
		}
		cfg.Agencies[models.Agency(name)] = ac
	}
	return cfg
}
