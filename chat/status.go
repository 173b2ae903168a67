// SPDX-License-Identifier: MIT

package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/internal/metrics"
)

// RoomStatus is the lifecycle status of a room. Exactly one status is
// current at any time.
type RoomStatus int

const (
	RoomStatusInitialized RoomStatus = iota
	RoomStatusAttaching
	RoomStatusAttached
	RoomStatusDetaching
	RoomStatusDetached
	RoomStatusSuspended
	RoomStatusFailed
	RoomStatusReleasing
	RoomStatusReleased
)

var roomStatusNames = map[RoomStatus]string{
	RoomStatusInitialized: "initialized",
	RoomStatusAttaching:   "attaching",
	RoomStatusAttached:    "attached",
	RoomStatusDetaching:   "detaching",
	RoomStatusDetached:    "detached",
	RoomStatusSuspended:   "suspended",
	RoomStatusFailed:      "failed",
	RoomStatusReleasing:   "releasing",
	RoomStatusReleased:    "released",
}

func (s RoomStatus) String() string {
	if name, ok := roomStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// StatusChange describes one room status transition. Instances are immutable
// after creation.
type StatusChange struct {
	Current  RoomStatus
	Previous RoomStatus
	// Err carries the error that caused the transition, if any.
	Err error
}

// Subscription cancels a listener registration.
type Subscription interface {
	Unsubscribe()
}

type emitterSubscription[T any] struct {
	sub *emitter.Subscription[T]
}

func (s emitterSubscription[T]) Unsubscribe() { s.sub.Off() }

// statusTracker holds the current room status and last error, and fans
// transitions out through an ordered emitter.
type statusTracker struct {
	mu      sync.Mutex
	current RoomStatus
	lastErr error
	em      *emitter.Emitter[StatusChange]
	logger  zerolog.Logger
}

func newStatusTracker(roomID string) *statusTracker {
	return &statusTracker{
		current: RoomStatusInitialized,
		em:      emitter.New[StatusChange]("room-status"),
		logger: log.WithComponent("status").With().
			Str(log.FieldRoomID, roomID).Logger(),
	}
}

// Current returns the room's current status.
func (t *statusTracker) Current() RoomStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Err returns the error recorded with the most recent transition, if any.
func (t *statusTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Set transitions the tracker to status, recording err as the transition
// cause. Setting the identical status and error again is a no-op. Emission
// order matches call order.
func (t *statusTracker) Set(status RoomStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == status && t.lastErr == err { //nolint:errorlint // identity, not equivalence
		return
	}
	prev := t.current
	t.current = status
	t.lastErr = err

	metrics.RecordStatusTransition(prev.String(), status.String())
	evt := t.logger.Info()
	if err != nil {
		evt = t.logger.Warn().Err(err)
	}
	evt.Str(log.FieldOldStatus, prev.String()).
		Str(log.FieldNewStatus, status.String()).
		Msg("room status changed")

	t.em.Emit(StatusChange{Current: status, Previous: prev, Err: err})
}

// On registers a persistent status listener.
func (t *statusTracker) On(fn func(StatusChange)) *emitter.Subscription[StatusChange] {
	return t.em.On(fn)
}

// Once registers a listener for the next transition only.
func (t *statusTracker) Once(fn func(StatusChange)) *emitter.Subscription[StatusChange] {
	return t.em.Once(fn)
}
