// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/roomkit/roomkit/internal/log"
)

// Environment variables recognized by applyEnv.
const (
	EnvProfile       = "ROOMSOAK_PROFILE"
	EnvRooms         = "ROOMSOAK_ROOMS"
	EnvDuration      = "ROOMSOAK_DURATION"
	EnvSeed          = "ROOMSOAK_SEED"
	EnvListen        = "ROOMSOAK_LISTEN"
	EnvArtifactDir   = "ROOMSOAK_ARTIFACT_DIR"
	EnvLogLevel      = "ROOMSOAK_LOG_LEVEL"
	EnvTransientRate = "ROOMSOAK_CHAOS_TRANSIENT_RATE"
	EnvTerminalRate  = "ROOMSOAK_CHAOS_TERMINAL_RATE"
	EnvDropRate      = "ROOMSOAK_CHAOS_DROP_RATE"
)

// applyEnv layers ROOMSOAK_* overrides onto cfg. Unparsable values keep the
// previous setting and log a warning rather than failing the load.
func applyEnv(cfg Config) Config {
	cfg.Profile = parseString(EnvProfile, cfg.Profile)
	cfg.Rooms = parseInt(EnvRooms, cfg.Rooms)
	cfg.Duration = Duration(parseDuration(EnvDuration, cfg.Duration.Std()))
	cfg.Seed = parseInt64(EnvSeed, cfg.Seed)
	cfg.Listen = parseString(EnvListen, cfg.Listen)
	cfg.ArtifactDir = parseString(EnvArtifactDir, cfg.ArtifactDir)
	cfg.LogLevel = parseString(EnvLogLevel, cfg.LogLevel)
	cfg.Chaos.TransientRate = parseFloat(EnvTransientRate, cfg.Chaos.TransientRate)
	cfg.Chaos.TerminalRate = parseFloat(EnvTerminalRate, cfg.Chaos.TerminalRate)
	cfg.Chaos.DropRate = parseFloat(EnvDropRate, cfg.Chaos.DropRate)
	return cfg
}

func parseString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger := log.WithComponent("config")
		logger.Debug().
			Str("key", key).Str("source", "environment").
			Msg("using environment override")
		return v
	}
	return fallback
}

func parseInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).Str("value", v).
			Msg("ignoring unparsable integer override")
		return fallback
	}
	return parsed
}

func parseInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).Str("value", v).
			Msg("ignoring unparsable integer override")
		return fallback
	}
	return parsed
}

func parseFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).Str("value", v).
			Msg("ignoring unparsable float override")
		return fallback
	}
	return parsed
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).Str("value", v).
			Msg("ignoring unparsable duration override")
		return fallback
	}
	return parsed
}
