// internal/workers/violations/violation-ledger/config.go
package violationledger

import "time"

type Config struct {
	PaymentTerm time.Duration
	Timeout     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PaymentTerm: 7 * 24 * time.Hour,
		Timeout:     10 * time.Second,
	}
}

// ConfigFromDays builds a Config with a payment term of days.
func ConfigFromDays(days int) *Config {
	cfg := LoadConfig()
	if days > 0 {
		cfg.PaymentTerm = time.Duration(days) * 24 * time.Hour
	}
	return cfg
}
