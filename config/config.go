// Package config loads consolectl settings from the environment, optionally
// seeded from a config.env file in the user's config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppName     = "console-session"
	EnvFileName = "config.env"
	EnvPrefix   = "CONSOLE"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds every tunable. Variables are read as CONSOLE_<name>.
type Config struct {
	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// API endpoints that are never gated by the stored credential
	TokenPath       string `envconfig:"TOKEN_PATH" default:"/api/auth/token"`
	LoginAPIPath    string `envconfig:"LOGIN_API_PATH" default:"/api/auth/login"`
	RegisterAPIPath string `envconfig:"REGISTER_API_PATH" default:"/api/auth/register"`
	RefreshPath     string `envconfig:"REFRESH_PATH" default:"/api/auth/refresh"`

	// UI routing
	LoginView    string `envconfig:"LOGIN_VIEW" default:"/ui/login"`
	RegisterView string `envconfig:"REGISTER_VIEW" default:"/ui/register"`
	UIPrefix     string `envconfig:"UI_PREFIX" default:"/ui"`

	CheckInterval      time.Duration `envconfig:"CHECK_INTERVAL" default:"60s"`
	ExpiringThreshold  time.Duration `envconfig:"EXPIRING_THRESHOLD" default:"5m"`
	MaxRenewalFailures int           `envconfig:"MAX_RENEWAL_FAILURES" default:"0"`

	Storage     string `envconfig:"STORAGE" default:"sqlite"`
	Scope       string `envconfig:"SCOPE" default:"default"`
	DBPath      string `envconfig:"DB_PATH"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"console"`
	// TokenKey is the passphrase the stored entries are encrypted with
	TokenKey string `envconfig:"TOKEN_KEY"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// ConfigDir returns the XDG config directory for the app.
// Uses $XDG_CONFIG_HOME/console-session or ~/.config/console-session
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppName)
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment win.
func LoadEnvFile() {
	_ = godotenv.Load(filepath.Join(ConfigDir(), EnvFileName))
}

// Load reads the config file and the environment.
func Load() (*Config, error) {
	LoadEnvFile()
	return FromEnv()
}

// FromEnv decodes the configuration from the environment only.
func FromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(ConfigDir(), "session.db")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q (want %s, %s or %s)", c.Storage, StorageSQLite, StorageRedis, StorageMemory)
	}
	if c.Storage == StorageSQLite && c.TokenKey == "" {
		return fmt.Errorf("%s_TOKEN_KEY is required for sqlite storage", EnvPrefix)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive")
	}
	if c.ExpiringThreshold < 0 {
		return fmt.Errorf("expiring threshold must not be negative")
	}
	if c.MaxRenewalFailures < 0 {
		return fmt.Errorf("max renewal failures must not be negative")
	}
	return nil
}

// BypassPaths lists the API paths the authorizer passes through untouched.
func (c *Config) BypassPaths() []string {
	return []string{c.TokenPath, c.LoginAPIPath, c.RegisterAPIPath, c.RefreshPath}
}
