// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus collectors for room lifecycle
// instrumentation. Collectors register on the default registry so embedding
// applications can expose them through their own promhttp handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_room_status_transitions_total",
		Help: "Total number of room status transitions by from/to status",
	}, []string{"from", "to"})

	lifecycleOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_lifecycle_operations_total",
		Help: "Total number of lifecycle operations by kind and outcome",
	}, []string{"op", "outcome"}) // outcome=success|failure|canceled

	lifecycleOperationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomkit_lifecycle_operation_seconds",
		Help:    "Duration of lifecycle operations from start of execution to completion",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	pendingOperations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomkit_pending_operations",
		Help: "Lifecycle operations currently queued or executing, by kind",
	}, []string{"op"})

	recoveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_recovery_attempts_total",
		Help: "Background recovery attach attempts by feature and outcome",
	}, []string{"feature", "outcome"}) // outcome=success|failure

	cleanupSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_cleanup_sweeps_total",
		Help: "Background cleanup detach sweeps after terminal failure, by outcome",
	}, []string{"outcome"}) // outcome=success|failure|abandoned

	discontinuitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_discontinuities_total",
		Help: "Continuity breaks observed on feature channels",
	}, []string{"feature"})

	emitterDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomkit_emitter_deliveries_total",
		Help: "Event deliveries to subscribers by stream and outcome",
	}, []string{"stream", "outcome"}) // outcome=delivered|panic
)

// RecordStatusTransition records a room status change.
func RecordStatusTransition(from, to string) {
	statusTransitionsTotal.WithLabelValues(sanitize(from), sanitize(to)).Inc()
}

// RecordOperation records a finished lifecycle operation and its duration.
func RecordOperation(op, outcome string, seconds float64) {
	lifecycleOperationsTotal.WithLabelValues(sanitize(op), sanitize(outcome)).Inc()
	lifecycleOperationSeconds.WithLabelValues(sanitize(op)).Observe(seconds)
}

// IncPendingOperations tracks an operation entering the queue.
func IncPendingOperations(op string) {
	pendingOperations.WithLabelValues(sanitize(op)).Inc()
}

// DecPendingOperations tracks an operation leaving the queue.
func DecPendingOperations(op string) {
	pendingOperations.WithLabelValues(sanitize(op)).Dec()
}

// IncRecoveryAttempt records one background recovery attach attempt.
func IncRecoveryAttempt(feature, outcome string) {
	recoveryAttemptsTotal.WithLabelValues(sanitize(feature), sanitize(outcome)).Inc()
}

// IncCleanupSweep records one background cleanup sweep result.
func IncCleanupSweep(outcome string) {
	cleanupSweepsTotal.WithLabelValues(sanitize(outcome)).Inc()
}

// IncDiscontinuity records a continuity break on a feature channel.
func IncDiscontinuity(feature string) {
	discontinuitiesTotal.WithLabelValues(sanitize(feature)).Inc()
}

// IncEmitterDelivery records an event delivery attempt on a named stream.
func IncEmitterDelivery(stream, outcome string) {
	emitterDeliveriesTotal.WithLabelValues(sanitize(stream), sanitize(outcome)).Inc()
}

func sanitize(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
