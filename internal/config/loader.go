package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader reads configuration from file, .env, and environment variables.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a viper instance. An empty configFile searches the default paths.
func NewLoader(configFile string) *Loader {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/compliance-advisor/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return l.unmarshal()
}

// OnChange watches the config file and invokes fn with each valid reload.
// Invalid edits are reported through onErr and otherwise ignored.
func (l *Loader) OnChange(fn func(*Config), onErr func(error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads the configuration from file, environment variables, and .env.
func LoadConfig(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "advisor")
	v.SetDefault("database.database", "compliance_advisor")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "file:advisor.db?_foreign_keys=on")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.cache_ttl", 300)

	v.SetDefault("vault.address", "http://localhost:8200")
	v.SetDefault("vault.mount_path", "secret")

	v.SetDefault("secrets.backend", "vault")
	v.SetDefault("secrets.cache_ttl", 60)

	v.SetDefault("graph.cloud", "public")
	v.SetDefault("graph.timeout", 30)
	v.SetDefault("graph.max_retries", 3)
	v.SetDefault("graph.secure_score_days", 90)

	v.SetDefault("search.index", "compliance-posture")
	v.SetDefault("search.api_version", "2023-11-01")

	v.SetDefault("ai.provider", "azure")
	v.SetDefault("ai.api_version", "2024-02-15-preview")
	v.SetDefault("ai.max_tokens", 1500)
	v.SetDefault("ai.temperature", 0.2)

	v.SetDefault("auth.issuer", "compliance-advisor")

	v.SetDefault("sync.concurrency", 8)
	v.SetDefault("sync.tenant_timeout", 300)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.initial_backoff", 500)
	v.SetDefault("sync.schedule", "0 2 * * *")
	v.SetDefault("sync.digest_schedule", "0 8 * * 1")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.query_per_minute", 120)
	v.SetDefault("rate_limit.model_per_minute", 10)

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.concurrency", 4)

	v.SetDefault("kafka.audit_topic", "advisor.audit")
	v.SetDefault("kafka.write_timeout", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("tracing.service_name", "compliance-advisor")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 0.1)
}
