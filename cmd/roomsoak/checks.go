// SPDX-License-Identifier: MIT

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// checkMetrics cross-checks the process-wide lifecycle collectors against
// what the scenario injected. Counters only ever grow, so the checks hold
// even when earlier scenarios in the same process already moved them.
func checkMetrics(run *scenarioRun) {
	fams, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		run.fail("METRICS_GATHER", "gather default registry: %v", err)
		return
	}

	recoveries := familySum(familyByName(fams, "roomkit_recovery_attempts_total"))
	discontinuities := familySum(familyByName(fams, "roomkit_discontinuities_total"))
	cleanups := familySum(familyByName(fams, "roomkit_cleanup_sweeps_total"))
	transitions := familySum(familyByName(fams, "roomkit_room_status_transitions_total"))

	run.observe("metric_recovery_attempts", int64(recoveries))
	run.observe("metric_discontinuities", int64(discontinuities))
	run.observe("metric_cleanup_sweeps", int64(cleanups))
	run.observe("metric_status_transitions", int64(transitions))

	if run.observation("transients_injected") > 0 && recoveries == 0 {
		run.fail("METRICS_MISSING", "recovery counter never moved despite %d injected transient failures",
			run.observation("transients_injected"))
	}
	if run.observation("drops_injected") > 0 && discontinuities == 0 {
		run.fail("METRICS_MISSING", "discontinuity counter never moved despite %d injected drops",
			run.observation("drops_injected"))
	}
	if run.observation("terminals_injected") > 0 && cleanups == 0 {
		run.fail("METRICS_MISSING", "cleanup counter never moved despite %d injected fatal failures",
			run.observation("terminals_injected"))
	}
	if run.observation("attaches") > 0 && transitions == 0 {
		run.fail("METRICS_MISSING", "status transition counter never moved")
	}
}

func familyByName(fams []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range fams {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// familySum adds up all counter and gauge samples of a family across label
// sets. A missing family sums to zero.
func familySum(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var sum float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			sum += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			sum += m.GetGauge().GetValue()
		}
	}
	return sum
}
