package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Stream  StreamConfig  `mapstructure:"stream"`
	Server  ServerConfig  `mapstructure:"server"`
	WS      WSConfig      `mapstructure:"ws"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type StreamConfig struct {
	URL           string `mapstructure:"url"`
	BackoffBaseMS int    `mapstructure:"backoff_base_ms"`
	BackoffCapMS  int    `mapstructure:"backoff_cap_ms"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

type ServerConfig struct {
	Port          string `mapstructure:"port"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type WSConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`
	Topic    string `mapstructure:"topic"`
	Token    string `mapstructure:"token"`
	Priority string `mapstructure:"priority"`
	Tags     string `mapstructure:"tags"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func (c *StreamConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c *StreamConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapMS) * time.Millisecond
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("stream.backoff_base_ms", 1000)
	v.SetDefault("stream.backoff_cap_ms", 30000)
	v.SetDefault("stream.max_retries", 5)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.rate_per_second", 50)
	v.SetDefault("ws.enabled", true)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("CHAINSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("stream.url", "CHAINSTREAM_STREAM_URL")
	_ = v.BindEnv("notify.token", "CHAINSTREAM_NOTIFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("stream url is required (set CHAINSTREAM_STREAM_URL env var)")
	}
	if c.Stream.MaxRetries < 1 {
		return fmt.Errorf("stream max_retries must be >= 1")
	}
	if c.Stream.BackoffBaseMS < 1 {
		return fmt.Errorf("stream backoff_base_ms must be >= 1")
	}
	if c.Stream.BackoffCapMS < c.Stream.BackoffBaseMS {
		return fmt.Errorf("stream backoff_cap_ms must be >= backoff_base_ms")
	}
	if c.Server.RatePerSecond < 1 {
		return fmt.Errorf("server rate_per_second must be >= 1")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		return fmt.Errorf("notify topic is required when notifications are enabled")
	}
	return nil
}
