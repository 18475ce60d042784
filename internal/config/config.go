package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string        `envconfig:"APP_NAME" default:"crossbank"`
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	Port            string        `envconfig:"PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	ShutdownPeriod  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	StoresFile      string        `envconfig:"STORES_FILE" default:"stores.toml"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"5m"`
	// LockAccounts serialises transfers per account through Redis. Off by
	// default: concurrent transfers on one account race.
	LockAccounts bool          `envconfig:"LOCK_ACCOUNTS" default:"false"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockWait     time.Duration `envconfig:"LOCK_WAIT" default:"2s"`
	APIKeyHash   string        `envconfig:"API_KEY_HASH"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.LockAccounts && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("LOCK_ACCOUNTS requires REDIS_URL")
	}
	if !cfg.IsDev() && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local environment, where Redis
// is optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
