// Package config defines ivscan configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config holding every default.
// - Load layers a YAML file and IVSCAN_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// ReferenceFile overrides the embedded reference tables when set.
	ReferenceFile string `koanf:"reference_file"`

	// NameLocale selects the species names used for name resolution.
	NameLocale string `koanf:"name_locale"`

	// WorkerCount sets the number of evaluation workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// CacheSize bounds the inference cache. Zero disables it.
	CacheSize int `koanf:"cache_size"`

	// DedupeSize bounds how many observation fingerprints a run remembers
	// to skip repeated readings. Zero disables deduplication.
	DedupeSize int `koanf:"dedupe_size"`

	// MetricsFile receives the Prometheus textfile on exit when set.
	MetricsFile string `koanf:"metrics_file"`

	// ReportTop caps the ranked report printed after a run.
	ReportTop int `koanf:"report_top"`

	// MaxResolveDistance rejects name resolutions farther than this. Zero disables the check.
	MaxResolveDistance int `koanf:"max_resolve_distance"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   logger.FormatText,
		NameLocale:  refdata.LocaleEN,
		WorkerCount: runtime.NumCPU(),
		QueueSize:   1024,
		CacheSize:   4096,
		DedupeSize:  1024,
		ReportTop:   10,
	}
}

// Validate checks the values that the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must not be negative, got %d", ErrInvalidConfig, c.CacheSize)
	}
	if c.DedupeSize < 0 {
		return fmt.Errorf("%w: dedupe_size must not be negative, got %d", ErrInvalidConfig, c.DedupeSize)
	}
	if c.ReportTop < 0 {
		return fmt.Errorf("%w: report_top must not be negative, got %d", ErrInvalidConfig, c.ReportTop)
	}
	if c.MaxResolveDistance < 0 {
		return fmt.Errorf("%w: max_resolve_distance must not be negative, got %d", ErrInvalidConfig, c.MaxResolveDistance)
	}
	if !slices.Contains([]string{refdata.LocaleEN, refdata.LocaleFR}, c.NameLocale) {
		return fmt.Errorf("%w: unknown name_locale %q", ErrInvalidConfig, c.NameLocale)
	}
	if c.LogFormat != logger.FormatText && c.LogFormat != logger.FormatJSON {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
