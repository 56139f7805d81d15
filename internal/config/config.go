// Package config loads and validates the tenant API configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the TGW_ prefix (e.g., TGW_DATABASE_HOST
// overrides database.host in the YAML). A .env file in the working directory,
// when present, is loaded into the process environment before Viper reads it.
//
// The credential global salt may be written as ${VAR_NAME} in the YAML so the
// secret itself can be injected by infrastructure tooling.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MaxCredentialCacheTTL bounds how stale a cached credential lookup may be.
// A revoked credential can keep authenticating for at most this long.
const MaxCredentialCacheTTL = 60 * time.Second

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TrustedProxies is passed to gin so ClientIP() honours X-Forwarded-For only from these hops.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig holds database connection configuration.
// Driver selects between "postgres" (production) and "sqlite" (single node / development).
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the Redis connection used by the redis rate limiting backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds tenant credential configuration
type AuthConfig struct {
	// KeyPrefix is prepended to every public identifier so keys are recognisable in logs and leaks.
	KeyPrefix string `mapstructure:"key_prefix"`
	// GlobalSalt is mixed into every credential hash. Changing it invalidates every issued key.
	GlobalSalt string `mapstructure:"global_salt"`
	// LookupTimeout bounds a single Key Store read; zero means the request deadline alone applies.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	// CredentialCacheTTL enables the in-process credential cache when > 0.
	CredentialCacheTTL  time.Duration `mapstructure:"credential_cache_ttl"`
	CredentialCacheSize int           `mapstructure:"credential_cache_size"`
	// AdminTokenHash is the bcrypt hash of the bearer token accepted on /admin routes.
	// Leave empty to disable the admin API.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
}

// RateLimitingConfig holds the per-tenant quota configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is one of "sql", "redis" or "memory".
	Backend           string               `mapstructure:"backend"`
	WindowSeconds     int                  `mapstructure:"window_seconds"`
	RequestsPerWindow int                  `mapstructure:"requests_per_window"`
	StoreTimeout      time.Duration        `mapstructure:"store_timeout"`
	ClientThrottle    ClientThrottleConfig `mapstructure:"client_throttle"`
}

// ClientThrottleConfig holds the per-IP pre-authentication throttle
type ClientThrottleConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// RetentionConfig controls the rate limit window cleanup job
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// KeepWindows is how many whole windows of history survive a cleanup pass.
	KeepWindows int `mapstructure:"keep_windows"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone does not surface nested keys during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.trusted_proxies",

		"database.driver",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.sqlite_path",
		"database.max_connections",
		"database.min_idle_connections",

		"redis.addr",
		"redis.password",
		"redis.db",

		"auth.key_prefix",
		"auth.global_salt",
		"auth.lookup_timeout",
		"auth.credential_cache_ttl",
		"auth.credential_cache_size",
		"auth.admin_token_hash",

		"rate_limiting.enabled",
		"rate_limiting.backend",
		"rate_limiting.window_seconds",
		"rate_limiting.requests_per_window",
		"rate_limiting.store_timeout",
		"rate_limiting.client_throttle.enabled",
		"rate_limiting.client_throttle.requests_per_minute",
		"rate_limiting.client_throttle.burst",

		"retention.enabled",
		"retention.interval",
		"retention.keep_windows",

		"logging.level",
		"logging.format",

		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.tracing.enabled",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tenant-api")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)
	cfg.Auth.GlobalSalt = os.ExpandEnv(cfg.Auth.GlobalSalt)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tenant_api")
	v.SetDefault("database.user", "tenant_api")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.sqlite_path", "./tenant-api.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.key_prefix", "tk_")
	v.SetDefault("auth.lookup_timeout", "2s")
	v.SetDefault("auth.credential_cache_ttl", "0s")
	v.SetDefault("auth.credential_cache_size", 10000)

	v.SetDefault("rate_limiting.enabled", true)
	v.SetDefault("rate_limiting.backend", "sql")
	v.SetDefault("rate_limiting.window_seconds", 60)
	v.SetDefault("rate_limiting.requests_per_window", 120)
	v.SetDefault("rate_limiting.store_timeout", "2s")
	v.SetDefault("rate_limiting.client_throttle.enabled", true)
	v.SetDefault("rate_limiting.client_throttle.requests_per_minute", 600)
	v.SetDefault("rate_limiting.client_throttle.burst", 100)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.keep_windows", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "tenant-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.tracing.enabled", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required when driver is sqlite")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Database.Driver)
	}

	if c.Auth.GlobalSalt == "" {
		return fmt.Errorf("auth.global_salt is required")
	}
	if c.Auth.KeyPrefix == "" || strings.Contains(c.Auth.KeyPrefix, ".") {
		return fmt.Errorf("auth.key_prefix must be non-empty and must not contain '.'")
	}
	if c.Auth.CredentialCacheTTL < 0 || c.Auth.CredentialCacheTTL > MaxCredentialCacheTTL {
		return fmt.Errorf("auth.credential_cache_ttl must be between 0 and %s", MaxCredentialCacheTTL)
	}
	if c.Auth.CredentialCacheTTL > 0 && c.Auth.CredentialCacheSize < 1 {
		return fmt.Errorf("auth.credential_cache_size must be positive when the cache is enabled")
	}

	validBackends := map[string]bool{"sql": true, "redis": true, "memory": true}
	if !validBackends[c.RateLimiting.Backend] {
		return fmt.Errorf("invalid rate limiting backend: %s (must be sql, redis, or memory)", c.RateLimiting.Backend)
	}
	if c.RateLimiting.WindowSeconds < 1 {
		return fmt.Errorf("rate_limiting.window_seconds must be at least 1")
	}
	if c.RateLimiting.RequestsPerWindow < 1 {
		return fmt.Errorf("rate_limiting.requests_per_window must be at least 1")
	}
	if c.RateLimiting.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when the redis backend is selected")
	}
	if c.RateLimiting.ClientThrottle.Enabled {
		if c.RateLimiting.ClientThrottle.RequestsPerMinute < 1 || c.RateLimiting.ClientThrottle.Burst < 1 {
			return fmt.Errorf("rate_limiting.client_throttle requires positive requests_per_minute and burst")
		}
	}

	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be positive")
		}
		if c.Retention.KeepWindows < 1 {
			return fmt.Errorf("retention.keep_windows must be at least 1")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", c.SQLitePath)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Window returns the configured quota window as a duration
func (c *RateLimitingConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
