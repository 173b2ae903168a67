// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// Report is the JSON output schema for a soak run.
type Report struct {
	RunID           string           `json:"run_id"`
	Profile         string           `json:"profile"`
	Seed            int64            `json:"seed"`
	Rooms           int              `json:"rooms"`
	StartedAt       time.Time        `json:"started_at"`
	EndedAt         time.Time        `json:"ended_at"`
	DurationSeconds float64          `json:"duration_s"`
	ScenarioResults []ScenarioResult `json:"scenario_results"`
	Summary         Summary          `json:"summary"`
}

// ScenarioResult holds the outcome of a single scenario.
type ScenarioResult struct {
	Name         string           `json:"name"`
	Pass         bool             `json:"pass"`
	Status       string           `json:"status,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Observations map[string]int64 `json:"observations"`
	Failures     []Failure        `json:"failures"`
}

// Failure captures one invariant violation.
type Failure struct {
	Time    time.Time `json:"time"`
	RuleID  string    `json:"rule_id"`
	Message string    `json:"message"`
}

// Summary is the aggregate verdict.
type Summary struct {
	PassedScenarios        int    `json:"passed_scenarios"`
	FailedScenarios        int    `json:"failed_scenarios"`
	SkippedScenarios       int    `json:"skipped_scenarios"`
	UnimplementedScenarios int    `json:"unimplemented_scenarios"`
	Verdict                string `json:"verdict"`
}

const (
	scenarioStatusPass          = "pass"
	scenarioStatusFail          = "fail"
	scenarioStatusSkipped       = "skipped"
	scenarioStatusUnimplemented = "unimplemented"

	verdictPass = "PASS"
	verdictFail = "FAIL"
)

const (
	scenarioSmoke = "lifecycle_smoke"
	scenarioChurn = "registry_churn"
	scenarioChaos = "lifecycle_chaos"
)

// finalize normalizes scenario statuses and computes the summary verdict.
func (r *Report) finalize(allowUnimplemented bool) {
	for i := range r.ScenarioResults {
		r.ScenarioResults[i] = normalizeScenarioResult(r.ScenarioResults[i], allowUnimplemented)
		r.Summary.tally(r.ScenarioResults[i].Status)
	}

	r.Summary.Verdict = verdictFail
	if r.Summary.FailedScenarios == 0 && r.Summary.UnimplementedScenarios == 0 {
		r.Summary.Verdict = verdictPass
	}
}

func (s *Summary) tally(status string) {
	switch status {
	case scenarioStatusPass:
		s.PassedScenarios++
	case scenarioStatusSkipped:
		s.SkippedScenarios++
	case scenarioStatusUnimplemented:
		// Counts against the verdict unless the run downgraded it already.
		s.UnimplementedScenarios++
		s.FailedScenarios++
	default:
		s.FailedScenarios++
	}
}

// scenarioStatus canonicalizes the reported status string, deriving it from
// the Pass flag when a scenario did not set one.
func scenarioStatus(sr ScenarioResult) string {
	switch s := strings.ToLower(strings.TrimSpace(sr.Status)); s {
	case scenarioStatusPass, scenarioStatusFail, scenarioStatusSkipped, scenarioStatusUnimplemented:
		return s
	}
	if sr.Pass {
		return scenarioStatusPass
	}
	return scenarioStatusFail
}

// normalizeScenarioResult reconciles the Pass flag with the status string.
// An unimplemented scenario keeps its reason but counts as skipped when the
// run allows unimplemented scenarios.
func normalizeScenarioResult(sr ScenarioResult, allowUnimplemented bool) ScenarioResult {
	status := scenarioStatus(sr)

	if status == scenarioStatusUnimplemented {
		if strings.TrimSpace(sr.Reason) == "" {
			sr.Reason = "unimplemented"
		}
		if allowUnimplemented {
			status = scenarioStatusSkipped
		}
	}
	if status == scenarioStatusSkipped && strings.TrimSpace(sr.Reason) == "" {
		sr.Reason = "skipped"
	}

	sr.Pass = status == scenarioStatusPass
	sr.Status = status
	return sr
}

func unimplementedScenario(name string) ScenarioResult {
	return ScenarioResult{
		Name:         name,
		Status:       scenarioStatusUnimplemented,
		Reason:       "unimplemented",
		Observations: map[string]int64{},
		Failures: []Failure{{
			Time:    time.Now(),
			RuleID:  "UNIMPLEMENTED",
			Message: "scenario is not implemented",
		}},
	}
}

// encode renders the report as indented JSON, the same bytes writeReport
// persists and the report endpoint serves.
func (r Report) encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// writeReport writes report.json atomically so a crashed run never leaves a
// truncated report behind.
func writeReport(dir string, report Report) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := report.encode()
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(dir, "report.json")
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
