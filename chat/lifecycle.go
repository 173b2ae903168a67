// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/internal/metrics"
	"github.com/roomkit/roomkit/internal/resilience"
	"github.com/roomkit/roomkit/internal/serial"
	"github.com/roomkit/roomkit/internal/telemetry"
	"github.com/roomkit/roomkit/realtime"
)

const (
	opAttach  = "attach"
	opDetach  = "detach"
	opRelease = "release"
)

// lifecycleCoordinator turns the per-feature channels of one room into a
// single coherent lifecycle. Operations are serialized; while one executes
// it owns the room status, and externally observed channel-state changes are
// buffered or dropped rather than applied (see monitor.go).
type lifecycleCoordinator struct {
	roomID string
	opts   LifecycleOptions

	tracker *statusTracker
	ser     *serial.Serializer

	// ctx scopes every operation and background loop to the room; release
	// cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu                     sync.Mutex
	contributors           []*contributor
	opInProgress           bool
	pendingDiscontinuities map[Feature]error
	transientTimers        map[Feature]*time.Timer
	recovery               *bgTask
	cleanup                *bgTask
	releaseTicket          *serial.Ticket
	monitorSubs            []realtime.Subscription

	logger zerolog.Logger
	tracer trace.Tracer
}

// bgTask is a cancelable background loop owned by the coordinator.
type bgTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the task and waits for its goroutine to exit.
func (t *bgTask) stop() {
	t.cancel()
	<-t.done
}

func newLifecycleCoordinator(roomID string, contributors []*contributor, opts LifecycleOptions, tracker *statusTracker) *lifecycleCoordinator {
	ctx, cancel := context.WithCancel(log.ContextWithRoomID(context.Background(), roomID))
	c := &lifecycleCoordinator{
		roomID:                 roomID,
		opts:                   opts.withDefaults(),
		tracker:                tracker,
		ser:                    serial.New(ctx, roomID),
		ctx:                    ctx,
		cancel:                 cancel,
		contributors:           contributors,
		pendingDiscontinuities: make(map[Feature]error),
		transientTimers:        make(map[Feature]*time.Timer),
		logger: log.WithComponent("lifecycle").With().
			Str(log.FieldRoomID, roomID).Logger(),
		tracer: otel.Tracer("github.com/roomkit/roomkit/chat"),
	}
	for _, con := range contributors {
		con := con
		sub := con.channel.OnStateChange(func(change realtime.StateChange) {
			c.handleStateChange(con, change)
		})
		c.monitorSubs = append(c.monitorSubs, sub)
	}
	return c
}

// Attach drives every contributor channel to attached, in the fixed feature
// order. ctx bounds only this caller's wait; the operation itself runs on
// the room's context.
func (c *lifecycleCoordinator) Attach(ctx context.Context) error {
	if done, err := c.attachPrecheck(); done {
		return err
	}
	return c.ser.Enqueue(opAttach, c.attachOp).Wait(ctx)
}

// Detach drives every contributor channel to detached, in reverse feature
// order.
func (c *lifecycleCoordinator) Detach(ctx context.Context) error {
	if done, err := c.detachPrecheck(); done {
		return err
	}
	return c.ser.Enqueue(opDetach, c.detachOp).Wait(ctx)
}

// Release makes the room eligible for disposal from any state. It always
// eventually succeeds; concurrent callers join the in-flight operation.
func (c *lifecycleCoordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.tracker.Current() == RoomStatusReleased {
		c.mu.Unlock()
		return nil
	}
	if c.releaseTicket != nil {
		ticket := c.releaseTicket
		c.mu.Unlock()
		return ticket.Wait(ctx)
	}
	ticket := c.ser.Enqueue(opRelease, c.releaseOp)
	c.releaseTicket = ticket
	c.mu.Unlock()
	return ticket.Wait(ctx)
}

func (c *lifecycleCoordinator) attachPrecheck() (bool, error) {
	switch c.tracker.Current() {
	case RoomStatusAttached:
		return true, nil
	case RoomStatusReleasing:
		return true, newError(ErrorCodeRoomIsReleasing, "", RoomStatusReleasing, nil)
	case RoomStatusReleased:
		return true, newError(ErrorCodeRoomIsReleased, "", RoomStatusReleased, nil)
	case RoomStatusFailed:
		return true, c.failedStateError()
	}
	return false, nil
}

func (c *lifecycleCoordinator) detachPrecheck() (bool, error) {
	switch c.tracker.Current() {
	case RoomStatusDetached:
		return true, nil
	case RoomStatusReleasing:
		return true, newError(ErrorCodeRoomIsReleasing, "", RoomStatusReleasing, nil)
	case RoomStatusReleased:
		return true, newError(ErrorCodeRoomIsReleased, "", RoomStatusReleased, nil)
	case RoomStatusFailed:
		return true, c.failedStateError()
	}
	return false, nil
}

func (c *lifecycleCoordinator) failedStateError() error {
	return newError(ErrorCodeRoomInFailedState, "", RoomStatusFailed, c.tracker.Err())
}

func (c *lifecycleCoordinator) attachOp(opCtx context.Context) error {
	opCtx, span := c.tracer.Start(opCtx, "room.attach",
		trace.WithAttributes(telemetry.OperationAttributes(c.roomID, opAttach)...))
	defer span.End()

	c.beginOp()
	defer c.endOp()

	// Conditions may have changed while this operation sat in the queue.
	if done, err := c.attachPrecheck(); done {
		return c.finishOp(opCtx, span, opAttach, err)
	}

	c.tracker.Set(RoomStatusAttaching, nil)

	feature, terminal, cause := c.attachSweep(opCtx)
	if cause == nil {
		c.completeAttach()
		return c.finishOp(opCtx, span, opAttach, nil)
	}
	if terminal {
		cerr := newError(attachmentFailedCode(feature), feature, RoomStatusFailed, cause)
		c.tracker.Set(RoomStatusFailed, cerr)
		c.spawnCleanup()
		return c.finishOp(opCtx, span, opAttach, cerr)
	}
	cerr := newError(attachmentFailedCode(feature), feature, RoomStatusSuspended, cause)
	c.tracker.Set(RoomStatusSuspended, cerr)
	c.spawnRecovery()
	return c.finishOp(opCtx, span, opAttach, cerr)
}

// attachSweep attaches each contributor sequentially in the fixed feature
// order. It stops at the first failure, classifying it as terminal when the
// channel lands in the failed state.
func (c *lifecycleCoordinator) attachSweep(ctx context.Context) (feature Feature, terminal bool, err error) {
	for _, con := range c.contributors {
		actx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
		aerr := con.channel.Attach(actx)
		cancel()
		if aerr != nil {
			terminal := con.channel.State() == realtime.ChannelStateFailed
			c.logger.Warn().Err(aerr).
				Str(log.FieldFeature, string(con.feature)).
				Str(log.FieldChannel, con.channel.Name()).
				Bool("terminal", terminal).
				Msg("contributor attach failed")
			return con.feature, terminal, aerr
		}
		c.mu.Lock()
		con.attachedOnce = true
		c.mu.Unlock()
	}
	return "", false, nil
}

// completeAttach flushes the discontinuities buffered during the sweep,
// cancels leftover transient timers, and settles the room as attached.
func (c *lifecycleCoordinator) completeAttach() {
	c.mu.Lock()
	pending := c.pendingDiscontinuities
	c.pendingDiscontinuities = make(map[Feature]error)
	c.stopTransientTimersLocked()
	c.mu.Unlock()

	for _, con := range c.contributors {
		if reason, ok := pending[con.feature]; ok {
			c.deliverDiscontinuity(con, reason)
		}
	}
	c.tracker.Set(RoomStatusAttached, nil)
}

func (c *lifecycleCoordinator) detachOp(opCtx context.Context) error {
	opCtx, span := c.tracer.Start(opCtx, "room.detach",
		trace.WithAttributes(telemetry.OperationAttributes(c.roomID, opDetach)...))
	defer span.End()

	c.beginOp()
	defer c.endOp()

	if done, err := c.detachPrecheck(); done {
		return c.finishOp(opCtx, span, opDetach, err)
	}

	c.tracker.Set(RoomStatusDetaching, nil)

	c.mu.Lock()
	c.pendingDiscontinuities = make(map[Feature]error)
	c.stopTransientTimersLocked()
	c.mu.Unlock()

	// Reverse order: dependents let go before the channels they lean on.
	var failedFeature Feature
	var failure error
	for i := len(c.contributors) - 1; i >= 0; i-- {
		con := c.contributors[i]
		if err := c.detachContributor(opCtx, con); err != nil {
			if failure == nil {
				failedFeature, failure = con.feature, err
			}
		}
	}

	if failure != nil {
		cerr := newError(detachmentFailedCode(failedFeature), failedFeature, RoomStatusFailed, failure)
		c.tracker.Set(RoomStatusFailed, cerr)
		c.spawnCleanup()
		return c.finishOp(opCtx, span, opDetach, cerr)
	}

	// A re-attach after an explicit detach is a fresh start, not a
	// discontinuity; drop anything buffered while the sweep ran.
	c.mu.Lock()
	for _, con := range c.contributors {
		con.attachedOnce = false
	}
	c.pendingDiscontinuities = make(map[Feature]error)
	c.mu.Unlock()

	c.tracker.Set(RoomStatusDetached, nil)
	return c.finishOp(opCtx, span, opDetach, nil)
}

// detachContributor retries transient detach failures with backoff up to the
// configured bound. A channel in the failed state, or exhausted retries,
// reports an error.
func (c *lifecycleCoordinator) detachContributor(ctx context.Context, con *contributor) error {
	backoff := resilience.NewBackoff(c.opts.RetryInitialInterval, c.opts.RetryMaxInterval)
	var lastErr error
	for attempt := 0; attempt <= c.opts.DetachRetryLimit; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx); err != nil {
				return lastErr
			}
		}
		dctx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
		err := con.channel.Detach(dctx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if con.channel.State() == realtime.ChannelStateFailed {
			return err
		}
		c.logger.Warn().Err(err).
			Str(log.FieldFeature, string(con.feature)).
			Int(log.FieldAttempt, attempt+1).
			Msg("contributor detach failed, retrying")
	}
	return lastErr
}

func (c *lifecycleCoordinator) releaseOp(opCtx context.Context) error {
	opCtx, span := c.tracer.Start(opCtx, "room.release",
		trace.WithAttributes(telemetry.OperationAttributes(c.roomID, opRelease)...))
	defer span.End()

	c.beginOp()
	defer c.endOp()

	if c.tracker.Current() == RoomStatusReleased {
		return c.finishOp(opCtx, span, opRelease, nil)
	}

	c.tracker.Set(RoomStatusReleasing, nil)

	c.mu.Lock()
	c.pendingDiscontinuities = make(map[Feature]error)
	c.stopTransientTimersLocked()
	c.mu.Unlock()

	for i := len(c.contributors) - 1; i >= 0; i-- {
		c.releaseContributor(opCtx, c.contributors[i])
	}

	c.mu.Lock()
	subs := c.monitorSubs
	c.monitorSubs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}

	// Queued operations still run after this; their prechecks observe the
	// released status and fail fast before touching the dead context.
	c.cancel()

	c.tracker.Set(RoomStatusReleased, nil)
	return c.finishOp(opCtx, span, opRelease, nil)
}

// releaseContributor best-effort detaches one contributor. Channels already
// idle (initialized, detached, failed) are skipped; persistent failures are
// logged and abandoned, never surfaced.
func (c *lifecycleCoordinator) releaseContributor(ctx context.Context, con *contributor) {
	switch con.channel.State() {
	case realtime.ChannelStateInitialized, realtime.ChannelStateDetached, realtime.ChannelStateFailed:
		return
	}
	backoff := resilience.NewBackoff(c.opts.RetryInitialInterval, c.opts.RetryMaxInterval)
	for attempt := 1; attempt <= c.opts.ReleaseRetryLimit; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
		err := con.channel.Detach(dctx)
		cancel()
		if err == nil {
			return
		}
		if con.channel.State() == realtime.ChannelStateFailed {
			return
		}
		c.logger.Warn().Err(err).
			Str(log.FieldFeature, string(con.feature)).
			Int(log.FieldAttempt, attempt).
			Msg("release detach attempt failed")
		if attempt < c.opts.ReleaseRetryLimit {
			if backoff.Sleep(ctx) != nil {
				return
			}
		}
	}
	c.logger.Error().
		Str(log.FieldFeature, string(con.feature)).
		Msg("giving up detaching contributor during release")
}

// beginOp stops background reconciliation and takes ownership of the room
// status; lifecycle operations always take precedence over recovery.
func (c *lifecycleCoordinator) beginOp() {
	c.mu.Lock()
	rec, cl := c.recovery, c.cleanup
	c.recovery, c.cleanup = nil, nil
	c.mu.Unlock()

	if rec != nil {
		rec.stop()
	}
	if cl != nil {
		cl.stop()
	}

	c.mu.Lock()
	c.opInProgress = true
	c.mu.Unlock()
}

func (c *lifecycleCoordinator) endOp() {
	c.mu.Lock()
	c.opInProgress = false
	c.mu.Unlock()
}

func (c *lifecycleCoordinator) spawnRecovery() {
	ctx, cancel := context.WithCancel(c.ctx)
	task := &bgTask{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.recovery = task
	c.mu.Unlock()
	go c.recoveryLoop(ctx, task)
}

// recoveryLoop re-attempts the attach sweep with capped exponential backoff
// until it succeeds, hits a terminal failure, or is preempted by a lifecycle
// operation. Its failures are logged, never surfaced to callers.
func (c *lifecycleCoordinator) recoveryLoop(ctx context.Context, task *bgTask) {
	defer close(task.done)

	backoff := resilience.NewBackoff(c.opts.RetryInitialInterval, c.opts.RetryMaxInterval)
	logger := c.logger.With().Str("loop", "recovery").Logger()
	logger.Info().Msg("recovery loop started")

	for attempt := 1; ; attempt++ {
		if err := backoff.Sleep(ctx); err != nil {
			logger.Debug().Msg("recovery loop preempted")
			return
		}

		c.mu.Lock()
		if c.recovery != task {
			c.mu.Unlock()
			return
		}
		// The attempt owns the status like a regular operation would.
		c.opInProgress = true
		c.mu.Unlock()

		feature, terminal, err := c.attachSweep(ctx)

		if err == nil {
			c.completeAttach()
			c.mu.Lock()
			c.opInProgress = false
			c.recovery = nil
			c.mu.Unlock()
			metrics.IncRecoveryAttempt("room", "success")
			logger.Info().Int(log.FieldAttempt, attempt).Msg("recovery succeeded")
			return
		}

		c.mu.Lock()
		c.opInProgress = false
		owned := c.recovery == task
		c.mu.Unlock()
		if !owned || ctx.Err() != nil {
			return
		}

		metrics.IncRecoveryAttempt(string(feature), "failure")
		if terminal {
			cerr := newError(attachmentFailedCode(feature), feature, RoomStatusFailed, err)
			c.tracker.Set(RoomStatusFailed, cerr)
			c.mu.Lock()
			if c.recovery == task {
				c.recovery = nil
			}
			c.mu.Unlock()
			c.spawnCleanup()
			logger.Error().Err(err).
				Str(log.FieldFeature, string(feature)).
				Msg("recovery hit terminal failure")
			return
		}
		logger.Warn().Err(err).
			Str(log.FieldFeature, string(feature)).
			Int(log.FieldAttempt, attempt).
			Msg("recovery attempt failed")
	}
}

func (c *lifecycleCoordinator) spawnCleanup() {
	ctx, cancel := context.WithCancel(c.ctx)
	task := &bgTask{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.cleanup = task
	c.mu.Unlock()
	go c.cleanupLoop(ctx, task)
}

// cleanupLoop detaches every non-failed contributor after a terminal
// failure, retrying with backoff. CleanupRetryLimit 0 retries forever;
// failures are logged, never raised, and never block release.
func (c *lifecycleCoordinator) cleanupLoop(ctx context.Context, task *bgTask) {
	defer close(task.done)

	backoff := resilience.NewBackoff(c.opts.RetryInitialInterval, c.opts.RetryMaxInterval)
	logger := c.logger.With().Str("loop", "cleanup").Logger()

	for attempt := 1; ; attempt++ {
		if c.cleanupSweep(ctx) {
			metrics.IncCleanupSweep("success")
			logger.Info().Int(log.FieldAttempt, attempt).Msg("cleanup sweep settled")
			c.clearTask(task)
			return
		}
		metrics.IncCleanupSweep("failure")
		if c.opts.CleanupRetryLimit > 0 && attempt >= c.opts.CleanupRetryLimit {
			metrics.IncCleanupSweep("abandoned")
			logger.Error().Int("attempts", attempt).Msg("cleanup sweep abandoned after retry limit")
			c.clearTask(task)
			return
		}
		if err := backoff.Sleep(ctx); err != nil {
			return
		}
	}
}

// cleanupSweep detaches contributors whose channels are neither failed nor
// already idle, reporting whether everything settled.
func (c *lifecycleCoordinator) cleanupSweep(ctx context.Context) bool {
	settled := true
	for i := len(c.contributors) - 1; i >= 0; i-- {
		con := c.contributors[i]
		switch con.channel.State() {
		case realtime.ChannelStateFailed, realtime.ChannelStateDetached, realtime.ChannelStateInitialized:
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
		err := con.channel.Detach(dctx)
		cancel()
		if err != nil && con.channel.State() != realtime.ChannelStateFailed {
			settled = false
			c.logger.Warn().Err(err).
				Str(log.FieldFeature, string(con.feature)).
				Msg("cleanup detach failed")
		}
	}
	return settled
}

func (c *lifecycleCoordinator) clearTask(task *bgTask) {
	c.mu.Lock()
	if c.cleanup == task {
		c.cleanup = nil
	}
	if c.recovery == task {
		c.recovery = nil
	}
	c.mu.Unlock()
}

func (c *lifecycleCoordinator) deliverDiscontinuity(con *contributor, reason error) {
	metrics.IncDiscontinuity(string(con.feature))
	emitDiscontinuityObs(c.ctx, con.feature)
	c.logger.Warn().Err(reason).
		Str(log.FieldFeature, string(con.feature)).
		Msg("continuity lost on feature channel")
	if con.discontinuity != nil {
		con.discontinuity(reason)
	}
}

// finishOp settles the operation span and counts the outcome on the global
// meter. Every exit of an enqueued operation goes through here.
func (c *lifecycleCoordinator) finishOp(ctx context.Context, span trace.Span, operation string, err error) error {
	emitOperationObs(ctx, operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
