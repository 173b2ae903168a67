// SPDX-License-Identifier: MIT

// Command roomsoak drives chat rooms over a scriptable in-memory transport,
// injects lifecycle chaos, and verifies the room state machine's invariants:
// serialized operations, ordered status delivery, recovery convergence and
// terminal settlement. It writes a report.json verdict and exits non-zero on
// any violation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roomkit/roomkit/internal/config"
	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/internal/telemetry"
)

// version is stamped via -ldflags at release build time.
var version = "dev"

type flags struct {
	configPath         string
	profile            string
	rooms              int
	duration           time.Duration
	seed               int64
	listen             string
	artifactDir        string
	allowUnimplemented bool
}

func parseFlags() (flags, map[string]bool) {
	var fl flags
	flag.StringVar(&fl.configPath, "config", "", "YAML config file (hot-reloaded; chaos rates are re-read on reload)")
	flag.StringVar(&fl.profile, "profile", "", "test profile: smoke|churn|chaos|nightly")
	flag.IntVar(&fl.rooms, "rooms", 0, "concurrent room drivers")
	flag.DurationVar(&fl.duration, "duration", 0, "run duration for churn and chaos profiles")
	flag.Int64Var(&fl.seed, "seed", 0, "random seed (0=derive from clock)")
	flag.StringVar(&fl.listen, "listen", "", "serve /metrics, /healthz and /readyz on this address while running")
	flag.StringVar(&fl.artifactDir, "artifact-dir", "./soak-artifacts", "report output directory")
	flag.BoolVar(&fl.allowUnimplemented, "allow-unimplemented", false, "treat unimplemented scenarios as skipped instead of failed")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return fl, set
}

// applyFlagOverrides layers explicitly-set flags over the loaded config.
func applyFlagOverrides(cfg config.Config, fl flags, set map[string]bool) config.Config {
	if set["profile"] {
		cfg.Profile = fl.profile
	}
	if set["rooms"] {
		cfg.Rooms = fl.rooms
	}
	if set["duration"] {
		cfg.Duration = config.Duration(fl.duration)
	}
	if set["seed"] {
		cfg.Seed = fl.seed
	}
	if set["listen"] {
		cfg.Listen = fl.listen
	}
	if set["artifact-dir"] {
		cfg.ArtifactDir = fl.artifactDir
	}
	return cfg
}

// applyProfile fills in chaos rates a profile implies when the config left
// them unset.
func applyProfile(cfg config.Config) config.Config {
	switch cfg.Profile {
	case config.ProfileChaos, config.ProfileNightly:
		if cfg.Chaos == (config.ChaosConfig{}) {
			cfg.Chaos = config.ChaosConfig{
				TransientRate: 0.15,
				TerminalRate:  0.03,
				DropRate:      0.10,
			}
		}
	default:
		// smoke and churn run clean.
	}
	return cfg
}

func main() {
	os.Exit(run())
}

func run() int {
	fl, set := parseFlags()

	cfg, err := config.Load(fl.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	cfg = applyFlagOverrides(cfg, fl, set)
	cfg = applyProfile(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = fl.artifactDir
	}

	if cfg.LogLevel != "" {
		_ = log.SetLevel(cfg.LogLevel) // Validate already enforced the level set
	}
	logger := log.WithComponent("roomsoak")

	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	holder := config.NewHolder(cfg, fl.configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, running without hot reload")
	}
	defer holder.Stop()

	tel, err := initTelemetry(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: %v\n", err)
		return 2
	}
	if tel != nil {
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("telemetry shutdown incomplete")
			}
		}()
	}

	report := Report{
		RunID:     "soak-" + uuid.NewString(),
		Profile:   cfg.Profile,
		Seed:      cfg.Seed,
		Rooms:     cfg.Rooms,
		StartedAt: time.Now(),
	}

	fmt.Printf("roomsoak %s\n", report.RunID)
	fmt.Printf("Profile: %s  Rooms: %d  Duration: %s  Seed: %d\n",
		cfg.Profile, cfg.Rooms, cfg.Duration.Std(), cfg.Seed)

	state := &soakState{
		runID:     report.RunID,
		profile:   cfg.Profile,
		rooms:     cfg.Rooms,
		seed:      cfg.Seed,
		startedAt: report.StartedAt,
	}
	if cfg.Listen != "" {
		shutdown, err := startHTTP(cfg.Listen, state, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listen: %v\n", err)
			return 2
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutCtx); err != nil {
				logger.Warn().Err(err).Msg("http shutdown incomplete")
			}
		}()
	}
	state.ready.Store(true)

	scenario := func(name string, fn func(context.Context, *config.Holder) ScenarioResult) ScenarioResult {
		return runTraced(ctx, report.RunID, cfg.Profile, name, holder, fn)
	}

	switch cfg.Profile {
	case config.ProfileSmoke:
		report.ScenarioResults = []ScenarioResult{scenario(scenarioSmoke, runSmokeScenario)}
	case config.ProfileChurn:
		report.ScenarioResults = []ScenarioResult{scenario(scenarioChurn, runChurnScenario)}
	case config.ProfileChaos:
		report.ScenarioResults = []ScenarioResult{scenario(scenarioChaos, runChaosScenario)}
	case config.ProfileNightly:
		report.ScenarioResults = []ScenarioResult{
			scenario(scenarioSmoke, runSmokeScenario),
			scenario(scenarioChurn, runChurnScenario),
			scenario(scenarioChaos, runChaosScenario),
			unimplementedScenario("history_rewind"),
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown profile: %s\n", cfg.Profile)
		return 2
	}

	report.EndedAt = time.Now()
	report.DurationSeconds = report.EndedAt.Sub(report.StartedAt).Seconds()
	report.finalize(fl.allowUnimplemented)

	if err := writeReport(cfg.ArtifactDir, report); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		return 2
	}
	if data, err := report.encode(); err == nil {
		state.publishReport(data)
	}

	fmt.Printf("\nVerdict: %s (%d passed, %d failed, %d skipped, %d unimplemented)\n",
		report.Summary.Verdict,
		report.Summary.PassedScenarios,
		report.Summary.FailedScenarios,
		report.Summary.SkippedScenarios,
		report.Summary.UnimplementedScenarios)

	if report.Summary.Verdict != verdictPass {
		return 1
	}
	return 0
}

// runTraced executes one scenario under a span carrying the run identity, so
// an OTLP-enabled soak shows one span per scenario above the per-operation
// spans from the chat layer. With telemetry disabled the span is a noop.
func runTraced(ctx context.Context, runID, profile, name string, holder *config.Holder, fn func(context.Context, *config.Holder) ScenarioResult) ScenarioResult {
	ctx, span := otel.Tracer("github.com/roomkit/roomkit/cmd/roomsoak").Start(ctx, "scenario."+name,
		trace.WithAttributes(telemetry.ScenarioAttributes(runID, profile, name)...))
	defer span.End()

	result := fn(ctx, holder)
	if result.Pass {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "scenario reported failures")
	}
	return result
}

// initTelemetry installs the OTLP tracer provider when enabled via the
// environment. Lifecycle operations and run API requests then carry spans.
// Returns nil without error when telemetry is disabled.
func initTelemetry(ctx context.Context, logger zerolog.Logger) (*telemetry.Provider, error) {
	if os.Getenv("ROOMSOAK_TELEMETRY_ENABLED") != "true" {
		return nil, nil
	}

	telCfg := telemetry.Config{
		Enabled:        true,
		ServiceName:    envOrDefault("ROOMSOAK_SERVICE_NAME", "roomsoak"),
		ServiceVersion: version,
		Environment:    envOrDefault("ROOMSOAK_ENVIRONMENT", "development"),
		ExporterType:   envOrDefault("ROOMSOAK_TELEMETRY_EXPORTER", "grpc"),
		Endpoint:       envOrDefault("ROOMSOAK_OTLP_ENDPOINT", "localhost:4317"),
		SamplingRate:   parseRate(envOrDefault("ROOMSOAK_SAMPLING_RATE", "1.0")),
	}

	provider, err := telemetry.NewProvider(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	logger.Info().
		Str("endpoint", telCfg.Endpoint).
		Str("exporter", telCfg.ExporterType).
		Float64("sampling_rate", telCfg.SamplingRate).
		Msg("telemetry initialized")
	return provider, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseRate(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%f", &f)
	return f
}
