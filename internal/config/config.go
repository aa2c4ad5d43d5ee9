// Package config provides configuration management for the scanner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

// Data source names.
const (
	SourceYahoo = "yahoo"
	SourceKite  = "kite"
	SourceCSV   = "csv"
)

// Sources lists the supported data source names.
var Sources = []string{SourceYahoo, SourceKite, SourceCSV}

// Config holds all application configuration.
type Config struct {
	Bollinger BollingerConfig `mapstructure:"bollinger"`
	Data      DataConfig      `mapstructure:"data"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kite      KiteConfig      `mapstructure:"kite"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	path    string
	created bool
	v       *viper.Viper
}

// BollingerConfig holds the default band parameters.
type BollingerConfig struct {
	Window     int     `mapstructure:"window"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// DataConfig holds market data source configuration.
type DataConfig struct {
	Source   string        `mapstructure:"source"` // yahoo, kite, csv
	Interval string        `mapstructure:"interval"`
	Period   string        `mapstructure:"period"`
	BaseURL  string        `mapstructure:"base_url"`
	Proxy    string        `mapstructure:"proxy"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
	CSVDir   string        `mapstructure:"csv_dir"`
}

// CacheConfig holds the local bar cache configuration.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// KiteConfig holds Zerodha Kite Connect credentials.
type KiteConfig struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
	Exchange    string `mapstructure:"exchange"`
}

// EngineConfig holds detection engine configuration.
type EngineConfig struct {
	Workers int `mapstructure:"workers"`
}

// PublishConfig holds NATS publishing configuration.
type PublishConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/chart-scanner"
	}
	return filepath.Join(home, ".config", "chart-scanner")
}

// DefaultConfigPath returns the default configuration file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.toml")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("bollinger.window", 20)
	v.SetDefault("bollinger.multiplier", 2.0)

	v.SetDefault("data.source", SourceYahoo)
	v.SetDefault("data.interval", string(models.DefaultInterval))
	v.SetDefault("data.period", string(models.DefaultPeriod))
	v.SetDefault("data.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("data.proxy", "")
	v.SetDefault("data.timeout", 15*time.Second)
	v.SetDefault("data.retries", 3)
	v.SetDefault("data.csv_dir", filepath.Join(configDir, "csv"))

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(configDir, "bars.db"))
	v.SetDefault("cache.ttl", 12*time.Hour)

	v.SetDefault("kite.api_key", "")
	v.SetDefault("kite.access_token", "")
	v.SetDefault("kite.exchange", "NSE")

	v.SetDefault("engine.workers", 4)

	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.url", "nats://127.0.0.1:4222")
	v.SetDefault("publish.subject_prefix", "scanner")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "scanner.log"))
}

// bindEnv wires the supported environment overrides.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("data.source", "SCANNER_DATA_SOURCE")
	_ = v.BindEnv("logging.level", "SCANNER_LOG_LEVEL")
	_ = v.BindEnv("kite.api_key", "KITE_API_KEY")
	_ = v.BindEnv("kite.access_token", "KITE_ACCESS_TOKEN")
	_ = v.BindEnv("publish.url", "NATS_URL")
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{v: v}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads config.toml from the specified directory.
// If configDir is empty, uses the default config directory. A missing file is
// replaced by the commented template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return LoadFile(filepath.Join(configDir, "config.toml"))
}

// LoadFile loads configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	configDir := filepath.Dir(path)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v, configDir)
	bindEnv(v)

	cfg := &Config{path: path, v: v}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := createTemplateConfig(path); err != nil {
			return nil, err
		}
		cfg.created = true
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	cfg.Data.Source = strings.ToLower(strings.TrimSpace(cfg.Data.Source))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// TemplateCreated reports whether Load wrote a fresh template.
func (c *Config) TemplateCreated() bool {
	return c.created
}

// Settings returns the merged settings as nested maps.
func (c *Config) Settings() map[string]interface{} {
	if c.v == nil {
		return map[string]interface{}{}
	}
	return c.v.AllSettings()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bollinger.Window <= 0 {
		return apperrors.NewConfigurationError("bollinger.window", c.Bollinger.Window, "must be positive")
	}
	if !(c.Bollinger.Multiplier > 0) {
		return apperrors.NewConfigurationError("bollinger.multiplier", c.Bollinger.Multiplier, "must be positive")
	}

	if !validSource(c.Data.Source) {
		return apperrors.NewConfigurationError("data.source", c.Data.Source,
			fmt.Sprintf("must be one of %s", strings.Join(Sources, ", ")))
	}
	if _, err := models.ParseInterval(c.Data.Interval); err != nil {
		return err
	}
	if _, err := models.ParsePeriod(c.Data.Period); err != nil {
		return err
	}
	if c.Data.Timeout < 0 {
		return apperrors.NewConfigurationError("data.timeout", c.Data.Timeout, "must not be negative")
	}
	if c.Data.Retries < 0 {
		return apperrors.NewConfigurationError("data.retries", c.Data.Retries, "must not be negative")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return apperrors.NewConfigurationError("cache.path", c.Cache.Path, "required when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		return apperrors.NewConfigurationError("cache.ttl", c.Cache.TTL, "must not be negative")
	}

	if c.Engine.Workers < 0 {
		return apperrors.NewConfigurationError("engine.workers", c.Engine.Workers, "must not be negative")
	}

	if c.Publish.Enabled && c.Publish.URL == "" {
		return apperrors.NewConfigurationError("publish.url", c.Publish.URL, "required when publishing is enabled")
	}

	return nil
}

func validSource(name string) bool {
	for _, s := range Sources {
		if s == name {
			return true
		}
	}
	return false
}
