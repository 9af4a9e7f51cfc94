package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Dedupe  DedupeConfig  `yaml:"dedupe" mapstructure:"dedupe"`
	Recency RecencyConfig `yaml:"recency" mapstructure:"recency"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MatchConfig configures candidate scoring.
type MatchConfig struct {
	NameWeight          float64 `yaml:"name_weight" mapstructure:"name_weight"`
	AddressWeight       float64 `yaml:"address_weight" mapstructure:"address_weight"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	Algorithm           string  `yaml:"algorithm" mapstructure:"algorithm"`
	FilterByCountry     bool    `yaml:"filter_by_country" mapstructure:"filter_by_country"`
}

// DedupeConfig configures spatial clustering.
type DedupeConfig struct {
	GridDecimals int `yaml:"grid_decimals" mapstructure:"grid_decimals"`
}

// RecencyConfig configures stale-source suppression.
type RecencyConfig struct {
	SeedUploaderIDs []string `yaml:"seed_uploader_ids" mapstructure:"seed_uploader_ids"`
}

// IngestConfig configures the ingestion sweep.
type IngestConfig struct {
	PageSize          int           `yaml:"page_size" mapstructure:"page_size"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" mapstructure:"processing_timeout"`
	MaxCandidates     int           `yaml:"max_candidates" mapstructure:"max_candidates"`
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency"`
	GeocodeRPS        float64       `yaml:"geocode_rps" mapstructure:"geocode_rps"`
	GoogleAPIKey      string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	RetryAttempts     int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FACILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("match.name_weight", 3.0)
	v.SetDefault("match.address_weight", 1.0)
	v.SetDefault("match.confidence_threshold", 70.0)
	v.SetDefault("match.algorithm", "token_sort")
	v.SetDefault("match.filter_by_country", true)
	v.SetDefault("dedupe.grid_decimals", 1)
	v.SetDefault("recency.seed_uploader_ids", []string{})
	v.SetDefault("ingest.page_size", 100)
	v.SetDefault("ingest.processing_timeout", "15m")
	v.SetDefault("ingest.max_candidates", 5)
	v.SetDefault("ingest.concurrency", 0)
	v.SetDefault("ingest.geocode_rps", 10.0)
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("ingest.retry_backoff", "200ms")

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

// Validate checks the settings required by mode ("cli", "serve" or
// "ingest") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "cli", "ingest":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be memory or postgres", c.Store.Driver))
	}

	if c.Match.NameWeight <= 0 || c.Match.AddressWeight <= 0 {
		errs = append(errs, "match.name_weight and match.address_weight must be > 0")
	}
	if c.Match.ConfidenceThreshold < 0 {
		errs = append(errs, "match.confidence_threshold must be >= 0")
	}
	switch c.Match.Algorithm {
	case "token_sort", "jaro_winkler":
	default:
		errs = append(errs, fmt.Sprintf("match.algorithm %q must be token_sort or jaro_winkler", c.Match.Algorithm))
	}

	if c.Dedupe.GridDecimals < 0 || c.Dedupe.GridDecimals > 6 {
		errs = append(errs, "dedupe.grid_decimals must be between 0 and 6")
	}

	if c.Ingest.PageSize < 1 || c.Ingest.PageSize > 10000 {
		errs = append(errs, "ingest.page_size must be between 1 and 10000")
	}
	if c.Ingest.ProcessingTimeout <= 0 {
		errs = append(errs, "ingest.processing_timeout must be > 0")
	}
	if c.Ingest.MaxCandidates < 1 {
		errs = append(errs, "ingest.max_candidates must be >= 1")
	}
	if c.Ingest.Concurrency < 0 {
		errs = append(errs, "ingest.concurrency must be >= 0")
	}
	if c.Ingest.RetryAttempts < 1 {
		errs = append(errs, "ingest.retry_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
