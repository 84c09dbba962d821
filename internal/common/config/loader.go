// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top and lets environment variables override any key (server.port ->
// SERVER_PORT).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// registerDefaults makes every key known to viper so AutomaticEnv can
// override values that are absent from the YAML files.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "audit-planner")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 60000)
	v.SetDefault("server.shutdown_timeout", 10000)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:8501"})
	v.SetDefault("server.expose_error_details", false)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "audit_planner")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.max_connections", 25)
	v.SetDefault("database.postgres.max_idle", 5)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.auto_migrate", false)
	v.SetDefault("database.postgres.max_tx_retries", 3)
	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.elasticsearch.addresses", []string{})
	v.SetDefault("database.elasticsearch.username", "")
	v.SetDefault("database.elasticsearch.password", "")

	v.SetDefault("optimizer.base_url", "")
	v.SetDefault("optimizer.path", "/api/process-assignments")
	v.SetDefault("optimizer.api_key", "")
	v.SetDefault("optimizer.timeout", 30000)

	v.SetDefault("planning.candidate_policy", CandidatePolicyExclusive)
	v.SetDefault("planning.on_optimizer_failure", FailurePolicyContinue)
	v.SetDefault("planning.lock_ttl", 120000)
	v.SetDefault("planning.lock_wait", 10000)
	v.SetDefault("planning.lock_prefix", "audit-planner:")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.index", "assignment-decisions")

	v.SetDefault("notifications.channel", ChannelNone)
	v.SetDefault("notifications.region", "us-east-1")
	v.SetDefault("notifications.topic_arn", "")
	v.SetDefault("notifications.from_email", "")
	v.SetDefault("notifications.recipients", []string{})

	v.SetDefault("observability.service_name", "audit-planner")
	v.SetDefault("observability.jaeger_endpoint", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyDefaults fills fields that may have been blanked out explicitly.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BasePath != "" && !strings.HasPrefix(cfg.Server.BasePath, "/") {
		cfg.Server.BasePath = "/" + cfg.Server.BasePath
	}
	cfg.Server.BasePath = strings.TrimSuffix(cfg.Server.BasePath, "/")

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Optimizer.Path == "" {
		cfg.Optimizer.Path = "/api/process-assignments"
	}
	cfg.Optimizer.BaseURL = strings.TrimSuffix(cfg.Optimizer.BaseURL, "/")

	cfg.Planning.CandidatePolicy = strings.ToLower(strings.TrimSpace(cfg.Planning.CandidatePolicy))
	if cfg.Planning.CandidatePolicy == "" {
		cfg.Planning.CandidatePolicy = CandidatePolicyExclusive
	}
	cfg.Planning.OnOptimizerFailure = strings.ToLower(strings.TrimSpace(cfg.Planning.OnOptimizerFailure))
	if cfg.Planning.OnOptimizerFailure == "" {
		cfg.Planning.OnOptimizerFailure = FailurePolicyContinue
	}
	if cfg.Planning.LockTTL == 0 {
		cfg.Planning.LockTTL = 120000
	}
	if cfg.Planning.LockWait == 0 {
		cfg.Planning.LockWait = 10000
	}

	if cfg.Notifications.Channel == "" {
		cfg.Notifications.Channel = ChannelNone
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Database.Driver)
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}

	if cfg.Optimizer.BaseURL == "" {
		return fmt.Errorf("optimizer.base_url is required")
	}
	if cfg.Optimizer.Timeout < 0 {
		return fmt.Errorf("optimizer.timeout must not be negative")
	}

	switch cfg.Planning.CandidatePolicy {
	case CandidatePolicyExclusive, CandidatePolicyShared:
	default:
		return fmt.Errorf("planning.candidate_policy must be %q or %q", CandidatePolicyExclusive, CandidatePolicyShared)
	}
	switch cfg.Planning.OnOptimizerFailure {
	case FailurePolicyContinue, FailurePolicyAbort:
	default:
		return fmt.Errorf("planning.on_optimizer_failure must be %q or %q", FailurePolicyContinue, FailurePolicyAbort)
	}

	if cfg.Journal.Enabled {
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required when the journal is enabled")
		}
		if cfg.Journal.Index == "" {
			return fmt.Errorf("journal.index is required when the journal is enabled")
		}
	}

	switch cfg.Notifications.Channel {
	case ChannelNone:
	case ChannelSNS:
		if cfg.Notifications.TopicARN == "" {
			return fmt.Errorf("notifications.topic_arn is required for the sns channel")
		}
	case ChannelSES:
		if cfg.Notifications.FromEmail == "" || len(cfg.Notifications.Recipients) == 0 {
			return fmt.Errorf("notifications.from_email and notifications.recipients are required for the ses channel")
		}
	default:
		return fmt.Errorf("notifications.channel %q is not supported", cfg.Notifications.Channel)
	}

	return nil
}
