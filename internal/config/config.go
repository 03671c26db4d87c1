// Package config provides layered configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/kayteedberserker/feedsync/internal/store"
)

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "FEEDSYNC_"

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited

	// Cache settings
	CacheDir      string `yaml:"cache_dir" json:"cache_dir"`
	Store         string `yaml:"store" json:"store"`
	ValkeyAddress string `yaml:"valkey_address" json:"valkey_address,omitempty"`

	// Feed behavior
	PageSize       int           `yaml:"page_size" json:"page_size"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	LedgerCapacity int           `yaml:"ledger_capacity" json:"ledger_capacity"`

	// Output settings
	Format  string `yaml:"format" json:"format"`
	Verbose bool   `yaml:"verbose" json:"verbose"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-" json:"sources"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values. Zero values are ignored.
type FlagOverrides struct {
	BaseURL  string
	CacheDir string
	Store    string
	Format   string
	PageSize int
	Verbose  bool
}

// layer is one partial source of configuration. Nil fields are unset.
// The same shape decodes YAML files and environment variables.
type layer struct {
	BaseURL        *string        `yaml:"base_url" env:"BASE_URL"`
	RequestTimeout *time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RateLimit      *float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	CacheDir       *string        `yaml:"cache_dir" env:"CACHE_DIR"`
	Store          *string        `yaml:"store" env:"STORE"`
	ValkeyAddress  *string        `yaml:"valkey_address" env:"VALKEY_ADDRESS"`
	PageSize       *int           `yaml:"page_size" env:"PAGE_SIZE"`
	PollInterval   *time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	LedgerCapacity *int           `yaml:"ledger_capacity" env:"LEDGER_CAPACITY"`
	Format         *string        `yaml:"format" env:"FORMAT"`
	Verbose        *bool          `yaml:"verbose" env:"VERBOSE"`
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		BaseURL:        "http://localhost:8080/api",
		RequestTimeout: 15 * time.Second,
		RateLimit:      5,
		CacheDir:       filepath.Join(cacheDir, "feedsync"),
		Store:          store.DriverFile,
		PageSize:       10,
		PollInterval:   12 * time.Second,
		LedgerCapacity: 200,
		Format:         "auto",
		Sources:        make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > local > global > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, globalConfigPath(), SourceGlobal); err != nil {
		return nil, err
	}
	if err := loadFromFile(cfg, localConfigPath(), SourceLocal); err != nil {
		return nil, err
	}
	if err := LoadFromEnv(cfg, nil); err != nil {
		return nil, err
	}
	ApplyOverrides(cfg, overrides)
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return nil // File doesn't exist, skip
	}
	var l layer
	if err := yaml.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("malformed config at %s: %w", path, err)
	}
	cfg.apply(l, source)
	return nil
}

// LoadFromEnv applies FEEDSYNC_* variables. A nil environ reads the
// process environment.
func LoadFromEnv(cfg *Config, environ map[string]string) error {
	var l layer
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&l, opts); err != nil {
		return fmt.Errorf("invalid environment config: %w", err)
	}
	cfg.apply(l, SourceEnv)
	return nil
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	l := layer{}
	if o.BaseURL != "" {
		l.BaseURL = &o.BaseURL
	}
	if o.CacheDir != "" {
		l.CacheDir = &o.CacheDir
	}
	if o.Store != "" {
		l.Store = &o.Store
	}
	if o.Format != "" {
		l.Format = &o.Format
	}
	if o.PageSize > 0 {
		l.PageSize = &o.PageSize
	}
	if o.Verbose {
		l.Verbose = &o.Verbose
	}
	cfg.apply(l, SourceFlag)
}

func (cfg *Config) apply(l layer, source Source) {
	set := func(key string) { cfg.Sources[key] = string(source) }

	if l.BaseURL != nil && *l.BaseURL != "" {
		cfg.BaseURL = *l.BaseURL
		set("base_url")
	}
	if l.RequestTimeout != nil {
		cfg.RequestTimeout = *l.RequestTimeout
		set("request_timeout")
	}
	if l.RateLimit != nil {
		cfg.RateLimit = *l.RateLimit
		set("rate_limit")
	}
	if l.CacheDir != nil && *l.CacheDir != "" {
		cfg.CacheDir = *l.CacheDir
		set("cache_dir")
	}
	if l.Store != nil && *l.Store != "" {
		cfg.Store = *l.Store
		set("store")
	}
	if l.ValkeyAddress != nil {
		cfg.ValkeyAddress = *l.ValkeyAddress
		set("valkey_address")
	}
	if l.PageSize != nil {
		cfg.PageSize = *l.PageSize
		set("page_size")
	}
	if l.PollInterval != nil {
		cfg.PollInterval = *l.PollInterval
		set("poll_interval")
	}
	if l.LedgerCapacity != nil {
		cfg.LedgerCapacity = *l.LedgerCapacity
		set("ledger_capacity")
	}
	if l.Format != nil && *l.Format != "" {
		cfg.Format = *l.Format
		set("format")
	}
	if l.Verbose != nil {
		cfg.Verbose = *l.Verbose
		set("verbose")
	}
}

// Formats lists the accepted output formats.
var Formats = []string{"auto", "json", "text", "quiet"}

// Validate checks the resolved values.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Store {
	case store.DriverFile, store.DriverSQLite, store.DriverLevelDB, store.DriverMemory:
	case store.DriverValkey:
		if cfg.ValkeyAddress == "" {
			errs = append(errs, errors.New("store valkey requires valkey_address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", cfg.Store))
	}
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		errs = append(errs, fmt.Errorf("page_size must be between 1 and 100, got %d", cfg.PageSize))
	}
	if cfg.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must not be negative"))
	}
	if cfg.LedgerCapacity < 1 {
		errs = append(errs, fmt.Errorf("ledger_capacity must be positive, got %d", cfg.LedgerCapacity))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative"))
	}
	if !slices.Contains(Formats, cfg.Format) {
		errs = append(errs, fmt.Errorf("unknown format %q", cfg.Format))
	}
	return errors.Join(errs...)
}

// Path helpers

// GlobalConfigPath returns the per-user config file location.
func GlobalConfigPath() string { return globalConfigPath() }

func globalConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "feedsync", "config.yaml")
}

func localConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".feedsync", "config.yaml")
}
