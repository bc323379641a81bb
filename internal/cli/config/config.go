// Package config loads the omniview configuration from omniview.yml,
// environment variables, and defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the omniview configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Source   SourceConfig   `mapstructure:"source"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RedisConfig represents the persistent cache tier configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ResolverConfig tunes the resolution pipeline.
type ResolverConfig struct {
	ExpandDepth     int           `mapstructure:"expand_depth"`
	GraphDepth      int           `mapstructure:"graph_depth"`
	RootConcurrency int           `mapstructure:"root_concurrency"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
}

// SourceConfig selects where component records come from. A fixture
// path switches the process to the offline static source.
type SourceConfig struct {
	Fixture string `mapstructure:"fixture"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from omniview.yml or omniview.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8780)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("resolver.expand_depth", 10)
	v.SetDefault("resolver.graph_depth", 4)
	v.SetDefault("resolver.root_concurrency", 4)
	v.SetDefault("resolver.fetch_timeout", "10s")
	v.SetDefault("resolver.snapshot_ttl", "48h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigName("omniview")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OMNIVIEW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Resolver.ExpandDepth < 1 {
		return fmt.Errorf("resolver.expand_depth must be at least 1")
	}
	if cfg.Resolver.GraphDepth < 1 {
		return fmt.Errorf("resolver.graph_depth must be at least 1")
	}
	return nil
}
