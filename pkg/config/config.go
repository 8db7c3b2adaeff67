// Package config loads the breaker.* configuration surface (spec.md §6)
// from a UCI-style text file, following the same "config <type> <name>" /
// "option <key> <value>" text format and defaults-then-parse-then-validate
// pipeline the teacher's pkg/uci uses for its own surface.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

// Config is the breaker.* surface spec.md §6 enumerates.
type Config struct {
	Name                    string  `json:"name"`
	MLEnabled               bool    `json:"ml_enabled"`
	MLMinCalls              int     `json:"ml_min_calls"`
	MLHalfOpenCalls         int     `json:"ml_half_open_calls"`
	MLInitialFailureThresh  float64 `json:"ml_initial_failure_threshold"`
	MLInitialWindow         int     `json:"ml_initial_window"`
	MLInitialWaitMS         int     `json:"ml_initial_wait_ms"`
	MLReconfigMinIntervalMS int     `json:"ml_reconfig_min_interval_ms"`
	MLSignificantChange     float64 `json:"ml_significant_change"`
	MLTrainingInterval      int     `json:"ml_training_interval"`
}

// Default returns the breaker.* surface's documented defaults.
func Default() Config {
	return Config{
		Name:                    "defaultBreaker",
		MLEnabled:               true,
		MLMinCalls:              10,
		MLHalfOpenCalls:         5,
		MLInitialFailureThresh:  0.5,
		MLInitialWindow:         100,
		MLInitialWaitMS:         30000,
		MLReconfigMinIntervalMS: 60000,
		MLSignificantChange:     0.10,
		MLTrainingInterval:      10,
	}
}

// Load reads a UCI-style config file at path. A missing file yields the
// defaults, matching the teacher's loadConfigFromFile fallback.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := cfg.parseFile(path); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// parseFile implements the same minimal "config <type> <name>" / "option
// <key> <value>" line format the teacher's UCI parser reads.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var sectionType string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "config "):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				sectionType = parts[1]
			}
		case strings.HasPrefix(line, "option "):
			parts := strings.Fields(line)
			if len(parts) < 3 || sectionType != "breaker" {
				continue
			}
			c.parseOption(parts[1], strings.Trim(strings.Join(parts[2:], " "), "'\""))
		}
	}
	return scanner.Err()
}

func (c *Config) parseOption(option, value string) {
	switch option {
	case "name":
		c.Name = value
	case "ml_enabled":
		c.MLEnabled = value == "1" || value == "true"
	case "ml_min_calls":
		c.MLMinCalls = atoiOr(value, c.MLMinCalls)
	case "ml_half_open_calls":
		c.MLHalfOpenCalls = atoiOr(value, c.MLHalfOpenCalls)
	case "ml_initial_failure_threshold":
		c.MLInitialFailureThresh = atofOr(value, c.MLInitialFailureThresh)
	case "ml_initial_window":
		c.MLInitialWindow = atoiOr(value, c.MLInitialWindow)
	case "ml_initial_wait_ms":
		c.MLInitialWaitMS = atoiOr(value, c.MLInitialWaitMS)
	case "ml_reconfig_min_interval_ms":
		c.MLReconfigMinIntervalMS = atoiOr(value, c.MLReconfigMinIntervalMS)
	case "ml_significant_change":
		c.MLSignificantChange = atofOr(value, c.MLSignificantChange)
	case "ml_training_interval":
		c.MLTrainingInterval = atoiOr(value, c.MLTrainingInterval)
	}
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func atofOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// Validate checks the surface's numeric fields are sane before it's used
// to build the initial breaker config.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("breaker.name must not be empty")
	}
	if c.MLInitialFailureThresh < breaker.MinFailureRateThreshold || c.MLInitialFailureThresh > breaker.MaxFailureRateThreshold {
		return fmt.Errorf("breaker.ml.initial_failure_threshold %.3f out of range [%.2f,%.2f]", c.MLInitialFailureThresh, breaker.MinFailureRateThreshold, breaker.MaxFailureRateThreshold)
	}
	if c.MLInitialWindow < breaker.MinWindowSize || c.MLInitialWindow > breaker.MaxWindowSize {
		return fmt.Errorf("breaker.ml.initial_window %d out of range [%d,%d]", c.MLInitialWindow, breaker.MinWindowSize, breaker.MaxWindowSize)
	}
	if c.MLSignificantChange <= 0 || c.MLSignificantChange >= 1 {
		return fmt.Errorf("breaker.ml.significant_change %.3f must be in (0,1)", c.MLSignificantChange)
	}
	return nil
}

// InitialBreakerConfig builds the breaker.Config the classic (or
// pre-warm-start) breaker should start with.
func (c Config) InitialBreakerConfig() breaker.Config {
	return breaker.Config{
		WindowSize:            c.MLInitialWindow,
		FailureRateThreshold:  c.MLInitialFailureThresh,
		OpenStateWait:         time.Duration(c.MLInitialWaitMS) * time.Millisecond,
		MinCallsBeforeEval:    c.MLMinCalls,
		HalfOpenPermittedCall: c.MLHalfOpenCalls,
		SlowCallRateThreshold: 0.5,
		SlowCallDuration:      time.Second,
	}
}

// ReconfigMinInterval is the rate limit between config replacements
// (spec.md §4.8's "at most one replacement per 60 seconds").
func (c Config) ReconfigMinInterval() time.Duration {
	return time.Duration(c.MLReconfigMinIntervalMS) * time.Millisecond
}
