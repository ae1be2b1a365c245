// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/quicksearch/analysis"
	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/search"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment variable that overrides a setting.
const EnvPrefix = "QUICKSEARCH_"

// Config holds settings for a quicksearch database and its front ends.
type Config struct {
	// DataDir is the badger directory. Ignored when InMemory is set.
	DataDir string `yaml:"data_dir"`

	// InMemory keeps everything in memory. Useful for tests and one-off runs.
	InMemory bool `yaml:"in_memory"`

	// BatchSize is the number of changes persisted per index batch.
	// Default: 50
	BatchSize int `yaml:"batch_size"`

	// TempConcurrency bounds concurrently running temporary views.
	TempConcurrency int `yaml:"temp_concurrency"`

	// BackgroundPoolSize bounds index updates scheduled after stale reads.
	BackgroundPoolSize int `yaml:"background_pool_size"`

	// HydrateConcurrency bounds document reads while highlighting.
	HydrateConcurrency int `yaml:"hydrate_concurrency"`

	// PatternCacheSize is the number of compiled highlight patterns kept.
	// Default: 256
	PatternCacheSize int `yaml:"pattern_cache_size"`

	// Language is the default analyzer language for searches naming none.
	// Default: "en"
	Language string `yaml:"language"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithDataDir sets the badger directory.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithInMemory keeps all data in memory.
func WithInMemory(inMemory bool) Option {
	return func(c *Config) {
		c.InMemory = inMemory
	}
}

// WithBatchSize sets the number of changes per index batch.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithTempConcurrency bounds concurrently running temporary views.
func WithTempConcurrency(n int) Option {
	return func(c *Config) {
		c.TempConcurrency = n
	}
}

// WithBackgroundPoolSize bounds background index updates.
func WithBackgroundPoolSize(n int) Option {
	return func(c *Config) {
		c.BackgroundPoolSize = n
	}
}

// WithHydrateConcurrency bounds document reads while highlighting.
func WithHydrateConcurrency(n int) Option {
	return func(c *Config) {
		c.HydrateConcurrency = n
	}
}

// WithPatternCacheSize sets the highlight pattern cache size.
func WithPatternCacheSize(size int) Option {
	return func(c *Config) {
		c.PatternCacheSize = size
	}
}

// WithLanguage sets the default analyzer language.
func WithLanguage(language string) Option {
	return func(c *Config) {
		c.Language = language
	}
}

// WithLogging sets the log level and format.
func WithLogging(level, format string) Option {
	return func(c *Config) {
		c.Logging = LoggingConfig{Level: level, Format: format}
	}
}

// WithMetrics enables the Prometheus collectors.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.Metrics.Enabled = enabled
	}
}

// DefaultConfig returns a Config with defaults suited to local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "quicksearch.db",
		BatchSize:          mapreduce.DefaultBatchSize,
		TempConcurrency:    1,
		BackgroundPoolSize: 4,
		HydrateConcurrency: 8,
		PatternCacheSize:   search.DefaultPatternCacheSize,
		Language:           analysis.DefaultLanguage,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithDataDir("/var/lib/quicksearch"),
//	    WithBatchSize(200),
//	)
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML file (if path is not empty) over the defaults, then
// applies QUICKSEARCH_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables read by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("DATA_DIR", &c.DataDir)
	str("LANGUAGE", &c.Language)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	return errors.Join(
		flag("IN_MEMORY", &c.InMemory),
		flag("METRICS", &c.Metrics.Enabled),
		num("BATCH_SIZE", &c.BatchSize),
		num("TEMP_CONCURRENCY", &c.TempConcurrency),
		num("BACKGROUND_POOL_SIZE", &c.BackgroundPoolSize),
		num("HYDRATE_CONCURRENCY", &c.HydrateConcurrency),
		num("PATTERN_CACHE_SIZE", &c.PatternCacheSize),
	)
}

// Validate checks that the configuration is valid and complete.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("config: DataDir is required unless InMemory is set")
	}
	if c.BatchSize < 1 {
		return errors.New("config: BatchSize must be at least 1")
	}
	if c.TempConcurrency < 1 {
		return errors.New("config: TempConcurrency must be at least 1")
	}
	if c.BackgroundPoolSize < 1 {
		return errors.New("config: BackgroundPoolSize must be at least 1")
	}
	if c.HydrateConcurrency < 1 {
		return errors.New("config: HydrateConcurrency must be at least 1")
	}
	if c.PatternCacheSize < 1 {
		return errors.New("config: PatternCacheSize must be at least 1")
	}
	if _, err := analysis.Lookup(c.Language, false); err != nil {
		return fmt.Errorf("config: Language: %w", err)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}
