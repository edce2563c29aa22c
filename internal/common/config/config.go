// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Agencies     map[string]AgencyConfig `mapstructure:"agencies"`
	Scheduler    SchedulerConfig         `mapstructure:"scheduler"`
	Compliance   ComplianceConfig        `mapstructure:"compliance"`
	Coding       CodingConfig            `mapstructure:"coding"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Server       ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	AlertsIndex string   `mapstructure:"alerts_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the settings of one Zeebe-triggered job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// IntegrationConfig holds settings for the notification channels and outbound webhooks.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	InApp struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"in_app"`

	Webhook struct {
		Timeout int `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"webhook"`

	Reports struct {
		QueueKey string `mapstructure:"queue_key"`
	} `mapstructure:"reports"`
}

// AgencyConfig holds the connection and quota settings of one government agency API.
type AgencyConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Timeout          int    `mapstructure:"timeout"`     // milliseconds
	RateLimit        int    `mapstructure:"rate_limit"`  // calls per window
	RateWindow       int    `mapstructure:"rate_window"` // milliseconds
	FailureThreshold int    `mapstructure:"failure_threshold"`
	CacheTTL         int    `mapstructure:"cache_ttl"` // seconds
}

// SchedulerConfig controls the monitoring scheduler tick driver.
type SchedulerConfig struct {
	CronSpec    string `mapstructure:"cron_spec"`
	Timezone    string `mapstructure:"timezone"`
	Concurrency int    `mapstructure:"concurrency"`
	LockTTL     int    `mapstructure:"lock_ttl"`    // milliseconds
	RunTimeout  int    `mapstructure:"run_timeout"` // milliseconds
}

// ComplianceConfig holds per-domain thresholds and check settings.
type ComplianceConfig struct {
	Thresholds      map[string]ThresholdConfig `mapstructure:"thresholds"`
	CheckTimeout    int                        `mapstructure:"check_timeout"` // milliseconds
	SyncConcurrency int                        `mapstructure:"sync_concurrency"`
	SeedDefaultRule bool                       `mapstructure:"seed_default_rules"`
	RuleCatalogPath string                     `mapstructure:"rule_catalog_path"`
}

type ThresholdConfig struct {
	Warning  int `mapstructure:"warning"`
	Critical int `mapstructure:"critical"`
}

// CodingConfig holds number-coding detector settings.
type CodingConfig struct {
	RuleCacheTTL       int `mapstructure:"rule_cache_ttl"` // seconds
	RepeatWindowDays   int `mapstructure:"repeat_window_days"`
	RepeatThreshold    int `mapstructure:"repeat_threshold"`
	PaymentTermDays    int `mapstructure:"payment_term_days"`
	StartWarningMinute int `mapstructure:"start_warning_minutes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig holds the health/metrics listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}
