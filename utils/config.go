package utils

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/subset"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverFixture  = "fixture"
)

const (
	DefaultPool           = 8
	DefaultLimit          = 64
	DefaultMaxLogFileSize = 1024 * 1024 * 1024
	DefaultMaxLogFiles    = 10
)

// StoreConfig selects the entity store. The fixture driver loads a YAML
// hierarchy into memory; the postgres driver talks to the archive database.
type StoreConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Pool    int    `json:"pool"`
	Limit   int    `json:"limit"`
	Fixture string `json:"fixture"`
}

// SelectionConfig holds the construction time settings of the resolver
// and selector.
type SelectionConfig struct {
	DefaultMode  string  `json:"default_mode"`
	MinCoverages int     `json:"min_coverages"`
	MaxDepth     int     `json:"max_depth"`
	MaxArea      float64 `json:"max_area"`
}

// MetricsConfig controls the per selection records. LogDir "-" logs them
// through the process logger, an empty LogDir disables them. TextFile, when
// set with Prometheus, receives the collectors in the text exposition
// format after every command.
type MetricsConfig struct {
	LogDir         string `json:"log_dir"`
	MaxLogFileSize int64  `json:"max_log_file_size"`
	MaxLogFiles    int    `json:"max_log_files"`
	Prometheus     bool   `json:"prometheus"`
	TextFile       string `json:"textfile"`
}

// Config is the struct representing the configuration file of the
// selector.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Selection SelectionConfig `json:"selection"`
	Metrics   MetricsConfig   `json:"metrics"`
	LogLevel  string          `json:"log_level"`
}

var ErrInvalidConfig = errors.New("invalid config")

// LoadConfigFile reads the JSON document at configFile, applies
// environment overrides and defaults, and validates the result.
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := os.ReadFile(configFile)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", configFile)
	}

	if err := json.Unmarshal(cfg, config); err != nil {
		return errors.Wrapf(err, "parsing config document %s", configFile)
	}
	if err := config.applyEnv(); err != nil {
		return err
	}
	config.applyDefaults()
	return config.Validate()
}

// applyEnv lets the environment override deployment specific values.
func (config *Config) applyEnv() error {
	if val, ok := os.LookupEnv("EOSELECT_DSN"); ok {
		config.Store.DSN = val
	}
	if val, ok := os.LookupEnv("EOSELECT_MAX_LOG_FILE_SIZE"); ok {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "EOSELECT_MAX_LOG_FILE_SIZE: %v", err)
		}
		config.Metrics.MaxLogFileSize = size
	}
	if val, ok := os.LookupEnv("EOSELECT_MAX_LOG_FILES"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "EOSELECT_MAX_LOG_FILES: %v", err)
		}
		config.Metrics.MaxLogFiles = n
	}
	return nil
}

func (config *Config) applyDefaults() {
	config.Store.Driver = strings.ToLower(strings.TrimSpace(config.Store.Driver))
	if config.Store.Driver == "" {
		config.Store.Driver = DriverPostgres
	}
	if config.Store.Pool <= 0 {
		config.Store.Pool = DefaultPool
	}
	if config.Store.Limit <= 0 {
		config.Store.Limit = DefaultLimit
	}
	if config.Metrics.MaxLogFileSize <= 0 {
		config.Metrics.MaxLogFileSize = DefaultMaxLogFileSize
	}
	if config.Metrics.MaxLogFiles <= 0 {
		config.Metrics.MaxLogFiles = DefaultMaxLogFiles
	}
}

// Validate reports the first inconsistency found in the config.
func (config *Config) Validate() error {
	switch config.Store.Driver {
	case DriverPostgres:
		if config.Store.DSN == "" {
			return errors.Wrap(ErrInvalidConfig, "postgres store needs a dsn")
		}
	case DriverFixture:
		if config.Store.Fixture == "" {
			return errors.Wrap(ErrInvalidConfig, "fixture store needs a fixture path")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown store driver %q", config.Store.Driver)
	}

	if _, err := subset.ParseMode(config.Selection.DefaultMode); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "default_mode: %v", err)
	}
	if config.Selection.MinCoverages < 0 {
		return errors.Wrap(ErrInvalidConfig, "min_coverages must not be negative")
	}
	if config.Selection.MaxDepth < 0 {
		return errors.Wrap(ErrInvalidConfig, "max_depth must not be negative")
	}
	if config.Selection.MaxArea < 0 {
		return errors.Wrap(ErrInvalidConfig, "max_area must not be negative")
	}
	return nil
}

// DumpConfig renders the effective configuration.
func DumpConfig(config *Config) (string, error) {
	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "dumping config")
	}
	return string(out), nil
}
