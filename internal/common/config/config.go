// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Optimizer     OptimizerConfig     `mapstructure:"optimizer"`
	Planning      PlanningConfig      `mapstructure:"planning"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	BasePath           string   `mapstructure:"base_path"`
	ReadTimeout        int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout       int      `mapstructure:"write_timeout"` // milliseconds
	ShutdownTimeout    int      `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	ExposeErrorDetails bool     `mapstructure:"expose_error_details"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver        string              `mapstructure:"driver"`
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
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MaxTxRetries   int    `mapstructure:"max_tx_retries"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Planner Configuration ---

// OptimizerConfig describes the external assignment optimizer.
type OptimizerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Path    string `mapstructure:"path"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds, 0 = no client timeout
}

const (
	CandidatePolicyExclusive = "exclusive"
	CandidatePolicyShared    = "shared"

	FailurePolicyContinue = "continue"
	FailurePolicyAbort    = "abort"
)

type PlanningConfig struct {
	CandidatePolicy    string `mapstructure:"candidate_policy"`
	OnOptimizerFailure string `mapstructure:"on_optimizer_failure"`
	LockTTL            int    `mapstructure:"lock_ttl"`  // milliseconds
	LockWait           int    `mapstructure:"lock_wait"` // milliseconds
	LockPrefix         string `mapstructure:"lock_prefix"`
}

// JournalConfig controls the Elasticsearch decision journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

const (
	ChannelNone = "none"
	ChannelSNS  = "sns"
	ChannelSES  = "ses"
)

// NotificationConfig controls disruption notifications.
type NotificationConfig struct {
	Channel    string   `mapstructure:"channel"`
	Region     string   `mapstructure:"region"`
	TopicARN   string   `mapstructure:"topic_arn"`
	FromEmail  string   `mapstructure:"from_email"`
	Recipients []string `mapstructure:"recipients"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
