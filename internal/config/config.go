// Package config loads and validates scanner configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cms-detector/internal/classifier"
)

// Sink kinds accepted by sink.kind.
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkLog      = "log"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Input      InputConfig      `mapstructure:"input"`
	Sink       SinkConfig       `mapstructure:"sink"`
	DB         DBConfig         `mapstructure:"db"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScannerConfig governs the worker pool and page fetches.
type ScannerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	TimeoutMs   int    `mapstructure:"timeout_ms"`
	UserAgent   string `mapstructure:"user_agent"`
}

// InputConfig points at the list of sites to scan.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// SinkConfig selects where results go.
type SinkConfig struct {
	Kind       string `mapstructure:"kind"`
	CSVPath    string `mapstructure:"csv_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	Table              string `mapstructure:"table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ClassifierConfig appends site-specific rules after the built-in ones.
type ClassifierConfig struct {
	ExtraRules []classifier.MarkerRule `mapstructure:"extra_rules"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CMSDETECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("db.dsn", "CMSDETECTOR_DB_DSN", "DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind db.dsn: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.concurrency", 5)
	v.SetDefault("scanner.timeout_ms", 7000)
	v.SetDefault("scanner.user_agent", "cmsdetector/1.0")
	v.SetDefault("input.path", "data/urls.csv")
	v.SetDefault("sink.kind", SinkCSV)
	v.SetDefault("sink.csv_path", "data/results.csv")
	v.SetDefault("sink.sqlite_path", "data/results.db")
	v.SetDefault("db.table", "cms_results")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.insecure_skip_verify", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate ensures required fields are present and values are sane.
func (c Config) Validate() error {
	if c.Scanner.Concurrency <= 0 {
		return errors.New("scanner.concurrency must be positive")
	}
	if c.Scanner.TimeoutMs <= 0 {
		return errors.New("scanner.timeout_ms must be positive")
	}
	if c.Input.Path == "" {
		return errors.New("input.path is required")
	}
	switch c.Sink.Kind {
	case SinkCSV:
		if c.Sink.CSVPath == "" {
			return errors.New("sink.csv_path is required for the csv sink")
		}
	case SinkSQLite:
		if c.Sink.SQLitePath == "" {
			return errors.New("sink.sqlite_path is required for the sqlite sink")
		}
	case SinkPostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn (or DATABASE_URL) is required for the postgres sink")
		}
	case SinkLog:
	default:
		return fmt.Errorf("unknown sink.kind %q", c.Sink.Kind)
	}
	if c.DB.MaxConns < 0 {
		return errors.New("db.max_conns must be >= 0")
	}
	for i, rule := range c.Classifier.ExtraRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("classifier.extra_rules[%d]: %w", i, err)
		}
	}
	return nil
}

// FetchTimeout returns the per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scanner.TimeoutMs) * time.Millisecond
}

// Rules converts the configured extra rules into classifier rules.
func (c Config) Rules() []classifier.Rule {
	rules := make([]classifier.Rule, 0, len(c.Classifier.ExtraRules))
	for _, r := range c.Classifier.ExtraRules {
		rules = append(rules, r)
	}
	return rules
}
