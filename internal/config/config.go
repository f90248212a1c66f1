// Package config loads service configuration from a YAML file and the
// environment. Environment variables use the SMARTSALUD_ prefix with
// underscores for nesting, e.g. SMARTSALUD_STORAGE_BACKEND=redis.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config holds the full service configuration.
type Config struct {
	Storage struct {
		// Backend is one of: memory, sqlite, badger, redis.
		Backend string `mapstructure:"backend"`

		SQLitePath string `mapstructure:"sqlite_path"`
		BadgerDir  string `mapstructure:"badger_dir"`

		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			Prefix   string `mapstructure:"prefix"`
		} `mapstructure:"redis"`
	} `mapstructure:"storage"`

	Intent struct {
		Primary   ModelTier `mapstructure:"primary"`
		Secondary ModelTier `mapstructure:"secondary"`
	} `mapstructure:"intent"`

	Staff struct {
		// Contact receives escalation messages.
		Contact string `mapstructure:"contact"`
	} `mapstructure:"staff"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// ModelTier configures one remote classification model.
type ModelTier struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// Load reads the configuration. A missing config file is not an error: the
// defaults plus the environment are enough to run with in-memory storage.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("SMARTSALUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite_path", "smartsalud.db")
	v.SetDefault("storage.badger_dir", "smartsalud-data")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.prefix", "smartsalud:")
	v.SetDefault("logging.level", "info")
}

// Validate checks the parts of the configuration that would otherwise fail
// late and far from their cause.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite, BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("config: sqlite backend requires storage.sqlite_path")
	}
	if c.Storage.Backend == BackendBadger && c.Storage.BadgerDir == "" {
		return fmt.Errorf("config: badger backend requires storage.badger_dir")
	}
	return nil
}
