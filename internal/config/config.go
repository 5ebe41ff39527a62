package config

import (
	"fmt"
	"time"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Search    SearchConfig    `mapstructure:"search"`
	AI        AIConfig        `mapstructure:"ai"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Queue     QueueConfig     `mapstructure:"queue"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	Environment        string   `mapstructure:"environment"`
	ReadTimeout        int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout       int      `mapstructure:"write_timeout"` // in seconds
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// IsProduction reports whether debug surfaces such as pprof must stay off.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres or sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in minutes
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	CacheTTL int    `mapstructure:"cache_ttl"` // in seconds
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	Namespace string `mapstructure:"namespace"`
}

type SecretsConfig struct {
	Backend  string `mapstructure:"backend"`   // vault or memory
	CacheTTL int    `mapstructure:"cache_ttl"` // in seconds
}

type GraphConfig struct {
	Cloud           string `mapstructure:"cloud"` // public or usgov
	BaseURL         string `mapstructure:"base_url"`
	Timeout         int    `mapstructure:"timeout"` // in seconds
	MaxRetries      int    `mapstructure:"max_retries"`
	SecureScoreDays int    `mapstructure:"secure_score_days"`
}

type SearchConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	Index      string `mapstructure:"index"`
	APIVersion string `mapstructure:"api_version"`
}

type AIConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"` // azure or openai
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"` // deployment name for azure
	APIVersion  string  `mapstructure:"api_version"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

type AuthConfig struct {
	Disabled  bool   `mapstructure:"disabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type SyncConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	TenantTimeout  int    `mapstructure:"tenant_timeout"` // in seconds
	MaxAttempts    int    `mapstructure:"max_attempts"`
	InitialBackoff int    `mapstructure:"initial_backoff"` // in milliseconds
	Schedule       string `mapstructure:"schedule"`
	DigestSchedule string `mapstructure:"digest_schedule"`
}

// TenantTimeoutDuration returns the per-tenant fetch timeout.
func (c SyncConfig) TenantTimeoutDuration() time.Duration {
	return time.Duration(c.TenantTimeout) * time.Second
}

// RateLimitConfig sets per-session request budgets on the advisor API. Model
// actions (ask, briefing) draw from both budgets.
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	QueryPerMinute int  `mapstructure:"query_per_minute"`
	ModelPerMinute int  `mapstructure:"model_per_minute"`
}

type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	AuditTopic   string   `mapstructure:"audit_topic"`
	SigningKey   string   `mapstructure:"signing_key"`   // HMAC key for the signature header; empty disables signing
	WriteTimeout int      `mapstructure:"write_timeout"` // in seconds
}

type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or stderr
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Validation("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.Validation("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Secrets.Backend {
	case "vault", "memory":
	default:
		return errors.Validation("secrets.backend must be vault or memory, got %q", c.Secrets.Backend)
	}
	switch c.Graph.Cloud {
	case "public", "usgov":
	default:
		return errors.Validation("graph.cloud must be public or usgov, got %q", c.Graph.Cloud)
	}
	if c.Sync.Concurrency <= 0 {
		return errors.Validation("sync.concurrency must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return errors.Validation("sync.max_attempts must be positive")
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return errors.Validation("auth.jwt_secret is required unless auth.disabled is set")
	}
	if c.RateLimit.Enabled && (c.RateLimit.QueryPerMinute <= 0 || c.RateLimit.ModelPerMinute <= 0) {
		return errors.Validation("rate_limit budgets must be positive when rate_limit.enabled is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.Validation("kafka.brokers is required when kafka.enabled is set")
	}
	return nil
}
