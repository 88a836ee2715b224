package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	OpenAI    OpenAIConfig              `mapstructure:"openai"`
	Anthropic AnthropicConfig           `mapstructure:"anthropic"`
	Retry     RetryConfig               `mapstructure:"retry"`
	RateLimit RateLimitConfig           `mapstructure:"rate_limit"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Tracing   TracingConfig             `mapstructure:"tracing"`
	Models    []capability.Capabilities `mapstructure:"models"`
}

type ServerConfig struct {
	Port    string   `mapstructure:"port"`
	Env     string   `mapstructure:"env"`
	APIKeys []string `mapstructure:"api_keys"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key" validate:"required"`
	Organization string        `mapstructure:"organization"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type AnthropicConfig struct {
	APIKey           string        `mapstructure:"api_key" validate:"required"`
	BaseURL          string        `mapstructure:"base_url"`
	Version          string        `mapstructure:"version"`
	DefaultMaxTokens int           `mapstructure:"default_max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// LoadConfig reads configuration from file or environment variables.
// CONFIG_FILE points at an explicit file; otherwise config.yaml is searched
// for in the usual places.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.OpenAI.APIKey = resolveSecret(v, cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = resolveSecret(v, cfg.Anthropic.APIKey)
	cfg.Redis.Password = resolveSecret(v, cfg.Redis.Password)
	for i, k := range cfg.Server.APIKeys {
		cfg.Server.APIKeys[i] = resolveSecret(v, k)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.api_keys", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("openai.api_key", "ENV:OPENAI_API_KEY")
	v.SetDefault("openai.organization", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("anthropic.api_key", "ENV:ANTHROPIC_API_KEY")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("anthropic.version", "2023-06-01")
	v.SetDefault("anthropic.default_max_tokens", 4096)
	v.SetDefault("anthropic.timeout", 60*time.Second)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)

	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("database.dsn", "file:helpers.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "model-helpers")
}

// resolveSecret expands "ENV:NAME" references.
func resolveSecret(v *viper.Viper, value string) string {
	if !strings.HasPrefix(value, "ENV:") {
		return value
	}
	envVar := strings.TrimPrefix(value, "ENV:")
	// Check process environment first (explicit override)
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	// Then check viper (which might have it from other sources)
	return v.GetString(envVar)
}
