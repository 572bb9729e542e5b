package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitMax     int     `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindow  int     `mapstructure:"RATE_LIMIT_WINDOW_MS"`
	BreakerThreshold int     `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	BreakerTimeout   int     `mapstructure:"CIRCUIT_BREAKER_TIMEOUT_MS"`
	CacheTTL         int     `mapstructure:"CACHE_TTL_MS"`
	CacheMaxSize     int     `mapstructure:"CACHE_MAX_SIZE"`
	DefaultProvider  string  `mapstructure:"DEFAULT_PROVIDER"`
	FallbackProvider string  `mapstructure:"FALLBACK_PROVIDER"`
	SelectionMargin  float64 `mapstructure:"SELECTION_MARGIN"`

	AIMode           string `mapstructure:"AI_MODE"`
	AIModel          string `mapstructure:"AI_MODEL"`
	AIRequestTimeout int    `mapstructure:"AI_REQUEST_TIMEOUT_MS"`
	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `mapstructure:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `mapstructure:"ANTHROPIC_BASE_URL"`

	AlertWebhookURL    string `mapstructure:"ALERT_WEBHOOK_URL"`
	AlertWebhookSecret string `mapstructure:"ALERT_WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_MAX", 60)
	v.SetDefault("RATE_LIMIT_WINDOW_MS", 60000)
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT_MS", 30000)
	v.SetDefault("CACHE_TTL_MS", 300000)
	v.SetDefault("CACHE_MAX_SIZE", 1000)
	v.SetDefault("DEFAULT_PROVIDER", "openai")
	v.SetDefault("FALLBACK_PROVIDER", "anthropic")
	v.SetDefault("SELECTION_MARGIN", 0.10)
	v.SetDefault("AI_MODE", "scripted")
	v.SetDefault("AI_REQUEST_TIMEOUT_MS", 60000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_MAX")
	v.BindEnv("RATE_LIMIT_WINDOW_MS")
	v.BindEnv("CIRCUIT_BREAKER_THRESHOLD")
	v.BindEnv("CIRCUIT_BREAKER_TIMEOUT_MS")
	v.BindEnv("CACHE_TTL_MS")
	v.BindEnv("CACHE_MAX_SIZE")
	v.BindEnv("DEFAULT_PROVIDER")
	v.BindEnv("FALLBACK_PROVIDER")
	v.BindEnv("SELECTION_MARGIN")
	v.BindEnv("AI_MODE")
	v.BindEnv("AI_MODEL")
	v.BindEnv("AI_REQUEST_TIMEOUT_MS")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_BASE_URL")
	v.BindEnv("ANTHROPIC_API_KEY")
	v.BindEnv("ANTHROPIC_BASE_URL")
	v.BindEnv("ALERT_WEBHOOK_URL")
	v.BindEnv("ALERT_WEBHOOK_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RateLimitWindowDuration returns RATE_LIMIT_WINDOW_MS as a duration.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Millisecond
}

// BreakerTimeoutDuration returns CIRCUIT_BREAKER_TIMEOUT_MS as a duration.
func (c *Config) BreakerTimeoutDuration() time.Duration {
	return time.Duration(c.BreakerTimeout) * time.Millisecond
}

// CacheTTLDuration returns CACHE_TTL_MS as a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Millisecond
}

// AIRequestTimeoutDuration returns AI_REQUEST_TIMEOUT_MS as a duration.
func (c *Config) AIRequestTimeoutDuration() time.Duration {
	return time.Duration(c.AIRequestTimeout) * time.Millisecond
}

// providerKey returns the configured API key for a provider id.
func (c *Config) providerKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// Validate checks that the configuration is safe to run. In live mode the
// configured providers need API keys; production refuses scripted mode so
// canned responses can never reach clinical users.
func (c *Config) Validate() error {
	if c.AIMode != "scripted" && c.AIMode != "live" {
		return fmt.Errorf("AI_MODE must be \"scripted\" or \"live\", got %q", c.AIMode)
	}
	if c.IsProduction() && c.AIMode == "scripted" {
		return fmt.Errorf("AI_MODE=scripted is not allowed in production; set AI_MODE=live and configure provider keys")
	}

	if c.DefaultProvider == "" {
		return fmt.Errorf("DEFAULT_PROVIDER is required")
	}
	for _, p := range []string{c.DefaultProvider, c.FallbackProvider} {
		if p != "" && p != "openai" && p != "anthropic" {
			return fmt.Errorf("unknown provider %q; supported providers are \"openai\" and \"anthropic\"", p)
		}
	}
	if c.FallbackProvider == c.DefaultProvider && c.FallbackProvider != "" {
		return fmt.Errorf("FALLBACK_PROVIDER must differ from DEFAULT_PROVIDER")
	}

	if c.AIMode == "live" {
		if c.providerKey(c.DefaultProvider) == "" {
			return fmt.Errorf("AI_MODE=live requires an API key for default provider %q", c.DefaultProvider)
		}
		if c.FallbackProvider != "" && c.providerKey(c.FallbackProvider) == "" {
			return fmt.Errorf("AI_MODE=live requires an API key for fallback provider %q", c.FallbackProvider)
		}
	}

	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive, got %d", c.RateLimitWindow)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be positive, got %d", c.BreakerThreshold)
	}
	if c.BreakerTimeout <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_TIMEOUT_MS must be positive, got %d", c.BreakerTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_MS must be positive, got %d", c.CacheTTL)
	}
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("CACHE_MAX_SIZE must be positive, got %d", c.CacheMaxSize)
	}
	if c.SelectionMargin < 0 || c.SelectionMargin >= 1 {
		return fmt.Errorf("SELECTION_MARGIN must be in [0, 1), got %g", c.SelectionMargin)
	}

	return nil
}
