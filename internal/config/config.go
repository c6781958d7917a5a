package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Routing  RoutingConfig  `yaml:"routing" mapstructure:"routing"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Verify   VerifyConfig   `yaml:"verify" mapstructure:"verify"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the optional negative fingerprint cache. An empty
// Addr disables caching entirely.
type RedisConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// IdentityConfig configures resolution and validation.
type IdentityConfig struct {
	ChunkSize  int      `yaml:"chunk_size" mapstructure:"chunk_size"`
	Industries []string `yaml:"industries" mapstructure:"industries"`
}

// ScoringConfig holds the scoring tunables.
type ScoringConfig struct {
	BasePrice          float64 `yaml:"base_price" mapstructure:"base_price"`
	PhoneBonus         float64 `yaml:"phone_bonus" mapstructure:"phone_bonus"`
	VerifiedBonus      float64 `yaml:"verified_bonus" mapstructure:"verified_bonus"`
	FreshnessK         float64 `yaml:"freshness_k" mapstructure:"freshness_k"`
	FreshnessMidpoint  float64 `yaml:"freshness_midpoint_days" mapstructure:"freshness_midpoint_days"`
	FreshnessFloor     float64 `yaml:"freshness_floor" mapstructure:"freshness_floor"`
	SeniorityRulesPath string  `yaml:"seniority_rules_path" mapstructure:"seniority_rules_path"`
}

// RoutingConfig configures the matcher's notification fan-out limits.
type RoutingConfig struct {
	NotifyPerTenant int `yaml:"notify_per_tenant" mapstructure:"notify_per_tenant"`
	NotifyPerRun    int `yaml:"notify_per_run" mapstructure:"notify_per_run"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	WebhookURL  string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// VerifyConfig configures the external email-verification service. An empty
// BaseURL disables verification.
type VerifyConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryAttempts    int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BackoffSecs      int    `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ServerConfig configures the ingest webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.ttl_minutes", 60)
	v.SetDefault("identity.chunk_size", 100)
	v.SetDefault("identity.industries", []string{
		"software", "construction", "healthcare", "finance", "insurance",
		"real estate", "legal", "manufacturing", "retail", "logistics",
		"education", "hospitality", "automotive", "energy", "agriculture",
	})
	v.SetDefault("scoring.base_price", 2.50)
	v.SetDefault("scoring.phone_bonus", 0.75)
	v.SetDefault("scoring.verified_bonus", 0.25)
	v.SetDefault("scoring.freshness_k", 0.15)
	v.SetDefault("scoring.freshness_midpoint_days", 30)
	v.SetDefault("scoring.freshness_floor", 15)
	v.SetDefault("routing.notify_per_tenant", 5)
	v.SetDefault("routing.notify_per_run", 20)
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("notify.concurrency", 5)
	v.SetDefault("notify.rate_per_sec", 0)
	v.SetDefault("verify.timeout_secs", 15)
	v.SetDefault("verify.max_attempts", 3)
	v.SetDefault("verify.retry_attempts", 2)
	v.SetDefault("verify.backoff_secs", 60)
	v.SetDefault("verify.breaker_threshold", 5)
	v.SetDefault("verify.breaker_reset_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
