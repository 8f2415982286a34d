// Package config loads helios settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Logging    LoggingConfig
	Run        RunConfig
	Validation ValidationConfig
	Engine     EngineConfig
}

type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

// RunConfig drives the ray sweep of cmd/helios.
type RunConfig struct {
	Histories int
	Workers   int
	MaxSteps  int
	Seed      int64
}

// ValidationConfig controls the sampling check run before tracking. A zero
// CoverageHalfWidth disables it.
type ValidationConfig struct {
	CoverageSamples   int
	CoverageHalfWidth float64
}

type EngineConfig struct {
	EvalTimeout time.Duration
}

// Load reads the given .env files (".env" when none are named) into the
// process environment, then builds and validates a Config from HELIOS_*
// variables. A missing default .env file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func load() (*Config, error) {
	var errs []error
	getInt := func(key string, def int) int {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}
	getFloat := func(key string, def float64) float64 {
		v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(def, 'g', -1, 64)), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}

	seed, err := strconv.ParseInt(getEnv("HELIOS_SEED", "1"), 10, 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("HELIOS_SEED: %w", err))
	}
	timeout, err := time.ParseDuration(getEnv("HELIOS_EVAL_TIMEOUT", "5s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("HELIOS_EVAL_TIMEOUT: %w", err))
	}

	cfg := &Config{
		Logging: LoggingConfig{
			Level:      strings.ToLower(getEnv("HELIOS_LOG_LEVEL", "info")),
			JSONFormat: getEnv("HELIOS_LOG_FORMAT", "text") == "json",
		},
		Run: RunConfig{
			Histories: getInt("HELIOS_HISTORIES", 10000),
			Workers:   getInt("HELIOS_WORKERS", runtime.NumCPU()),
			MaxSteps:  getInt("HELIOS_MAX_STEPS", 1000),
			Seed:      seed,
		},
		Validation: ValidationConfig{
			CoverageSamples:   getInt("HELIOS_COVERAGE_SAMPLES", 10000),
			CoverageHalfWidth: getFloat("HELIOS_COVERAGE_HALF_WIDTH", 0),
		},
		Engine: EngineConfig{
			EvalTimeout: timeout,
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("HELIOS_LOG_LEVEL must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Run.Histories < 0 {
		return fmt.Errorf("HELIOS_HISTORIES must be non-negative")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("HELIOS_WORKERS must be at least 1")
	}
	if c.Run.MaxSteps < 1 {
		return fmt.Errorf("HELIOS_MAX_STEPS must be at least 1")
	}
	if c.Validation.CoverageSamples < 0 || c.Validation.CoverageHalfWidth < 0 {
		return fmt.Errorf("coverage settings must be non-negative")
	}
	if c.Engine.EvalTimeout <= 0 {
		return fmt.Errorf("HELIOS_EVAL_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
