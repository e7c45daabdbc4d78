// Package config loads runtime settings for the boarding-pass tools.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig   `yaml:"store" mapstructure:"store"`
	Feed     FeedConfig    `yaml:"feed" mapstructure:"feed"`
	Server   ServerConfig  `yaml:"server" mapstructure:"server"`
	Metrics  MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig     `yaml:"log" mapstructure:"log"`
	Location string        `yaml:"location" mapstructure:"location"` // Calendar for built timestamps; "Local" by default.
}

// StoreConfig selects where extraction attempts are logged.
// Driver is one of none, sqlite, postgres, clickhouse.
type StoreConfig struct {
	Driver     string           `yaml:"driver" mapstructure:"driver"`
	SQLitePath string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Postgres   PostgresConfig   `yaml:"postgres" mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" mapstructure:"clickhouse"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// FeedConfig configures the NATS listener.
type FeedConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	Subject       string `yaml:"subject" mapstructure:"subject"`
	Queue         string `yaml:"queue" mapstructure:"queue"`
	ResultSubject string `yaml:"result_subject" mapstructure:"result_subject"`
}

// ServerConfig configures the HTTP API.
// API keys are only checked when AuthEnabled is set.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	AuthEnabled bool     `yaml:"auth_enabled" mapstructure:"auth_enabled"`
	APIKeys     []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// MetricsConfig configures Prometheus metric names.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml from the working directory if present, then
// BOARDINGPASS_* environment variables, over built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BOARDINGPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.sqlite_path", "boardingpass.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "boardingpass")
	v.SetDefault("store.postgres.user", "boardingpass")
	v.SetDefault("store.postgres.password", "boardingpass")
	v.SetDefault("store.clickhouse.host", "localhost")
	v.SetDefault("store.clickhouse.port", 9000)
	v.SetDefault("store.clickhouse.database", "boardingpass")
	v.SetDefault("store.clickhouse.user", "default")
	v.SetDefault("store.clickhouse.password", "")
	v.SetDefault("feed.url", "nats://127.0.0.1:4222")
	v.SetDefault("feed.subject", "boardingpass.ocr")
	v.SetDefault("feed.queue", "boardingpass-extract")
	v.SetDefault("feed.result_subject", "boardingpass.extracted")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_enabled", false)
	v.SetDefault("metrics.namespace", "boardingpass")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("location", "Local")

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

// CalendarLocation resolves Location for building departure times.
func (c *Config) CalendarLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load location %q", c.Location)
	}
	return loc, nil
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
