// Package config loads the sentinel server configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Environment variables honored in addition to the config file. The SQL
// connection and instance variables take precedence over file values so the
// deployment layer can inject them without rewriting the file.
const (
	EnvConfigPath      = "SENTINEL_SERVER_CONFIG_PATH"
	EnvSQLConnection   = "SENTINEL_SQL_CONNECTION"
	EnvSQLInstance     = "SENTINEL_SQL_INSTANCE"
	EnvCredentialsFile = "GOOGLE_APPLICATION_CREDENTIALS"
)

// KnownServices is the set of service names the registry can activate.
var KnownServices = []string{"explain", "inventory", "model", "notifier", "scanner"}

// Config is the immutable server configuration produced at startup.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Services  []string        `mapstructure:"services"`
	API       APIConfig       `mapstructure:"api"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Explain   ExplainConfig   `mapstructure:"explain"`
}

// ServerConfig contains listener and logging settings.
type ServerConfig struct {
	GRPCListen string `mapstructure:"grpc_listen"`
	HTTPListen string `mapstructure:"http_listen"`
	LogLevel   string `mapstructure:"log_level"`
}

// StorageConfig contains datastore connection settings. The connection
// string points at the local database proxy, not the managed instance.
type StorageConfig struct {
	Connection     string        `mapstructure:"connection"`
	Instance       string        `mapstructure:"instance"`
	PoolSize       int           `mapstructure:"pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// APIConfig controls the rate-limited repository client used by inventory
// crawls. QuotaMaxCalls of zero disables the rate limiter.
type APIConfig struct {
	QuotaMaxCalls   int           `mapstructure:"quota_max_calls"`
	QuotaPeriod     time.Duration `mapstructure:"quota_period"`
	PageSize        int           `mapstructure:"page_size"`
	CredentialsFile string        `mapstructure:"credentials_file"`
}

// Source is one crawlable API endpoint.
type Source struct {
	Name    string   `mapstructure:"name"`
	BaseURL string   `mapstructure:"base_url"`
	Paths   []string `mapstructure:"paths"`
}

// InventoryConfig configures the inventory service.
type InventoryConfig struct {
	Sources       []Source `mapstructure:"sources"`
	RetentionDays int      `mapstructure:"retention_days"`
}

// ScannerConfig configures the scanner service.
type ScannerConfig struct {
	RulesPath string `mapstructure:"rules_path"`
}

// NotifierConfig configures the notifier service.
type NotifierConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// ExplainConfig configures the explain service. An empty RedisAddr disables
// the query cache.
type ExplainConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from path. When path is empty the
// SENTINEL_SERVER_CONFIG_PATH environment variable is consulted, then the
// default search locations.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Explicit env bindings for the deployment contract.
	v.BindEnv("server_config_path", EnvConfigPath)
	v.BindEnv("storage.connection", EnvSQLConnection)
	v.BindEnv("storage.instance", EnvSQLInstance)
	v.BindEnv("api.credentials_file", EnvCredentialsFile)

	if path == "" {
		path = v.GetString("server_config_path")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("server_config")
		v.AddConfigPath("/etc/sentinel")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_listen", "0.0.0.0:50051")
	v.SetDefault("server.http_listen", ":8080")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("storage.pool_size", 10)
	v.SetDefault("storage.connect_timeout", "60s")
	v.SetDefault("storage.retry_base_delay", "1s")
	v.SetDefault("storage.retry_max_delay", "15s")

	v.SetDefault("services", KnownServices)

	v.SetDefault("api.quota_period", "100s")
	v.SetDefault("api.page_size", 100)

	v.SetDefault("inventory.retention_days", 30)
	v.SetDefault("notifier.subject_prefix", "sentinel")
	v.SetDefault("explain.cache_ttl", "5m")
}

// Validate checks invariants that would otherwise surface as runtime
// failures deep inside service startup.
func (c *Config) Validate() error {
	if c.Server.GRPCListen == "" {
		return fmt.Errorf("server.grpc_listen is required")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service must be enabled")
	}

	seen := make(map[string]bool, len(c.Services))
	for _, name := range c.Services {
		if !slices.Contains(KnownServices, name) {
			return fmt.Errorf("unknown service %q (known: %v)", name, KnownServices)
		}
		if seen[name] {
			return fmt.Errorf("service %q listed more than once", name)
		}
		seen[name] = true
	}

	if c.Storage.PoolSize <= 0 {
		return fmt.Errorf("storage.pool_size must be positive, got %d", c.Storage.PoolSize)
	}
	if c.API.QuotaMaxCalls < 0 {
		return fmt.Errorf("api.quota_max_calls must not be negative")
	}
	return nil
}

// ActiveServices returns the enabled service names in deterministic start
// order.
func (c *Config) ActiveServices() []string {
	out := make([]string, len(c.Services))
	copy(out, c.Services)
	sort.Strings(out)
	return out
}
