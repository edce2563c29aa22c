// internal/workers/compliance/monitoring-scheduler/config.go
package monitoringscheduler

import (
	"fmt"
	"time"

	"fleet-compliance/internal/common/config"
)

type Config struct {
	CronSpec    string
	Location    *time.Location
	Concurrency int
	LockTTL     time.Duration
	RunTimeout  time.Duration
	Timeout     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		CronSpec:    "@every 1m",
		Location:    time.UTC,
		Concurrency: 4,
		LockTTL:     5 * time.Minute,
		RunTimeout:  4 * time.Minute,
		Timeout:     10 * time.Minute,
	}
}

// ConfigFromScheduler converts the scheduler section of the service configuration.
func ConfigFromScheduler(in config.SchedulerConfig) (*Config, error) {
	cfg := LoadConfig()
	if in.CronSpec != "" {
		cfg.CronSpec = in.CronSpec
	}
	if in.Timezone != "" {
		loc, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone %q: %w", in.Timezone, err)
		}
		cfg.Location = loc
	}
	if in.Concurrency > 0 {
		cfg.Concurrency = in.Concurrency
	}
	if in.LockTTL > 0 {
		cfg.LockTTL = config.GetDuration(in.LockTTL)
	}
	if in.RunTimeout > 0 {
		cfg.RunTimeout = config.GetDuration(in.RunTimeout)
	}
	return cfg, nil
}
