// SPDX-License-Identifier: MIT

// Package config loads the soak harness configuration from YAML with
// ROOMSOAK_* environment overrides, validates it, and supports hot reload
// through Holder.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by
// unknown keys. Use errors.Is instead of string matching.
var ErrUnknownConfigField = errors.New("unknown config field")

// Profiles accepted by Validate.
const (
	ProfileSmoke   = "smoke"
	ProfileChurn   = "churn"
	ProfileChaos   = "chaos"
	ProfileNightly = "nightly"
)

// Duration is a time.Duration that YAML-decodes from strings like "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ChaosConfig tunes the failure injection applied to the fake transport.
// Rates are probabilities in [0,1] evaluated per channel operation or tick.
type ChaosConfig struct {
	// TransientRate is the chance an attach fails leaving the channel
	// suspended.
	TransientRate float64 `yaml:"transientRate"`
	// TerminalRate is the chance an attach fails leaving the channel failed.
	TerminalRate float64 `yaml:"terminalRate"`
	// DropRate is the chance per chaos tick that an attached channel drops
	// to suspended behind the room's back.
	DropRate float64 `yaml:"dropRate"`
}

// LifecycleConfig overrides room lifecycle timing for soak runs. Zero values
// keep the library defaults.
type LifecycleConfig struct {
	RetryInitialInterval Duration `yaml:"retryInitialInterval"`
	RetryMaxInterval     Duration `yaml:"retryMaxInterval"`
	TransientTimeout     Duration `yaml:"transientTimeout"`
	OperationTimeout     Duration `yaml:"operationTimeout"`
}

// Config is the complete soak harness configuration.
type Config struct {
	// Profile selects the scenario mix: smoke, churn, chaos or nightly.
	Profile string `yaml:"profile"`
	// Rooms is the number of rooms driven concurrently.
	Rooms int `yaml:"rooms"`
	// Duration bounds the whole run.
	Duration Duration `yaml:"duration"`
	// Seed makes chaos reproducible; 0 picks a random seed.
	Seed int64 `yaml:"seed"`
	// Listen, when set, serves /metrics, /healthz and /readyz while running.
	Listen string `yaml:"listen"`
	// ArtifactDir receives report.json; empty writes to the working dir.
	ArtifactDir string `yaml:"artifactDir"`
	// LogLevel sets the process log level.
	LogLevel string `yaml:"logLevel"`

	Chaos     ChaosConfig     `yaml:"chaos"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		Profile:  ProfileSmoke,
		Rooms:    8,
		Duration: Duration(30 * time.Second),
		LogLevel: "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional), then ROOMSOAK_* environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		loaded, err := loadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	cfg = applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile strictly decodes YAML over base; unknown keys fail.
func loadFile(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	cfg := base
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, classifyYAMLError(err)
	}
	return cfg, nil
}

func classifyYAMLError(err error) error {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, msg := range typeErr.Errors {
			if strings.Contains(msg, "not found in type") {
				return fmt.Errorf("%w: %s", ErrUnknownConfigField, typeErr.Error())
			}
		}
	}
	return fmt.Errorf("decode config: %w", err)
}

// Validate rejects configurations the harness cannot run.
func (c Config) Validate() error {
	switch c.Profile {
	case ProfileSmoke, ProfileChurn, ProfileChaos, ProfileNightly:
	default:
		return fmt.Errorf("unknown profile %q (want smoke, churn, chaos or nightly)", c.Profile)
	}
	if c.Rooms < 1 || c.Rooms > 10000 {
		return fmt.Errorf("rooms must be in [1,10000], got %d", c.Rooms)
	}
	if c.Duration.Std() <= 0 || c.Duration.Std() > 24*time.Hour {
		return fmt.Errorf("duration must be in (0,24h], got %s", c.Duration.Std())
	}
	if c.Seed < 0 {
		return fmt.Errorf("seed must not be negative, got %d", c.Seed)
	}
	for name, rate := range map[string]float64{
		"chaos.transientRate": c.Chaos.TransientRate,
		"chaos.terminalRate":  c.Chaos.TerminalRate,
		"chaos.dropRate":      c.Chaos.DropRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be in [0,1], got %g", name, rate)
		}
	}
	for name, d := range map[string]Duration{
		"lifecycle.retryInitialInterval": c.Lifecycle.RetryInitialInterval,
		"lifecycle.retryMaxInterval":     c.Lifecycle.RetryMaxInterval,
		"lifecycle.transientTimeout":     c.Lifecycle.TransientTimeout,
		"lifecycle.operationTimeout":     c.Lifecycle.OperationTimeout,
	} {
		if d.Std() < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d.Std())
		}
	}
	if c.LogLevel != "" {
		switch c.LogLevel {
		case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		default:
			return fmt.Errorf("unknown log level %q", c.LogLevel)
		}
	}
	return nil
}
