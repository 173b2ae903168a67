// SPDX-License-Identifier: MIT

package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Config carries the one-time settings for the process-wide base logger.
// Empty fields fall back to the LOG_LEVEL / LOG_SERVICE environment and
// then to built-in defaults.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure builds the base logger. Only the first call has any effect, so
// both the roomkit library and an embedding program may call it freely.
func Configure(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(levelOrDefault(cfg.Level))

		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		base = zerolog.New(out).With().
			Timestamp().
			Str("service", firstNonEmpty(cfg.Service, os.Getenv("LOG_SERVICE"), "roomkit")).
			Logger()
	})
}

// SetLevel parses name and applies it as the global level. Unlike Configure
// it works at any time, letting SDK consumers turn logging up or down after
// the base logger exists. The level is unchanged when name does not parse.
func SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func levelOrDefault(name string) zerolog.Level {
	for _, candidate := range []string{name, os.Getenv("LOG_LEVEL")} {
		if candidate == "" {
			continue
		}
		if level, err := zerolog.ParseLevel(candidate); err == nil {
			return level
		}
	}
	return zerolog.InfoLevel
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Base returns the process-wide base logger, applying defaults when nothing
// configured it yet.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child of the base logger tagged with a component
// name, the unit every roomkit log line is attributed to.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Derive builds a child logger with caller-chosen fields.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := Base().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}

func init() {
	Configure(Config{})
}
