// internal/workers/communication/dispatch-notification/config.go
package dispatchnotification

import "time"

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	InAppEnabled bool
	FromEmail    string
	SMSSenderID  string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		InAppEnabled: true,
		Timeout:      30 * time.Second,
	}
}
