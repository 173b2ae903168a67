// SPDX-License-Identifier: MIT

// Package serial forces a total order on lifecycle operations for one room.
// At most one operation executes at a time; the rest wait in arrival order.
package serial

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/internal/metrics"
)

// ErrCanceled resolves tickets whose operation was canceled by the caller.
var ErrCanceled = errors.New("operation canceled")

// Serializer runs enqueued operations one at a time in FIFO order.
// Operations execute on a context derived from the serializer's base context,
// not the enqueuer's, so an abandoned caller never aborts queued work.
type Serializer struct {
	mu      sync.Mutex
	base    context.Context
	queue   []*Ticket
	current *Ticket
	seq     uint64
	logger  zerolog.Logger
}

// Ticket is the handle to one scheduled operation.
type Ticket struct {
	s         *Serializer
	kind      string
	seq       uint64
	fn        func(context.Context) error
	done      chan struct{}
	err       error
	resolved  bool
	canceled  bool
	cancelCtx context.CancelFunc // set once execution begins
}

// New returns a serializer whose operations derive from base. The name
// annotates log entries, typically with the owning room's ID.
func New(base context.Context, name string) *Serializer {
	if base == nil {
		base = context.Background()
	}
	return &Serializer{
		base:   base,
		logger: log.WithComponent("serializer").With().Str(log.FieldRoomID, name).Logger(),
	}
}

// Enqueue schedules fn. It starts immediately when nothing is executing,
// otherwise after everything ahead of it has finished, success or failure.
func (s *Serializer) Enqueue(kind string, fn func(context.Context) error) *Ticket {
	s.mu.Lock()
	s.seq++
	t := &Ticket{
		s:    s,
		kind: kind,
		seq:  s.seq,
		fn:   fn,
		done: make(chan struct{}),
	}
	metrics.IncPendingOperations(kind)
	if s.current == nil {
		s.current = t
		go s.run(t)
	} else {
		s.queue = append(s.queue, t)
	}
	s.mu.Unlock()

	s.logger.Debug().
		Str(log.FieldOperation, kind).
		Uint64("seq", t.seq).
		Msg("operation scheduled")
	return t
}

// PendingCount reports the number of queued-but-not-started operations.
func (s *Serializer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Idle reports whether nothing is executing and nothing is queued.
func (s *Serializer) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == nil && len(s.queue) == 0
}

// run drains the queue starting with t, then exits. A fresh goroutine is
// spawned by the next Enqueue on an idle serializer.
func (s *Serializer) run(t *Ticket) {
	for {
		s.exec(t)

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.current = nil
			s.mu.Unlock()
			return
		}
		t = s.queue[0]
		s.queue = s.queue[1:]
		s.current = t
		s.mu.Unlock()
	}
}

func (s *Serializer) exec(t *Ticket) {
	s.mu.Lock()
	if t.resolved {
		// Canceled after being promoted to current but before starting.
		s.mu.Unlock()
		metrics.DecPendingOperations(t.kind)
		metrics.RecordOperation(t.kind, "canceled", 0)
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	t.cancelCtx = cancel
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	err := s.invoke(ctx, t)
	elapsed := time.Since(start)

	s.mu.Lock()
	abandoned := t.resolved // canceled mid-execution; waiters already released
	if !abandoned {
		t.err = err
		t.resolved = true
		close(t.done)
	}
	s.mu.Unlock()

	outcome := "success"
	switch {
	case abandoned:
		outcome = "canceled"
	case err != nil:
		outcome = "failure"
	}
	metrics.DecPendingOperations(t.kind)
	metrics.RecordOperation(t.kind, outcome, elapsed.Seconds())

	evt := s.logger.Debug()
	if err != nil && !abandoned {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str(log.FieldOperation, t.kind).
		Uint64("seq", t.seq).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("operation finished")
}

func (s *Serializer) invoke(ctx context.Context, t *Ticket) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", t.kind, r)
			s.logger.Error().
				Str(log.FieldOperation, t.kind).
				Uint64("seq", t.seq).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("operation panicked")
		}
	}()
	return t.fn(ctx)
}

// Wait blocks until the operation resolves or ctx is done. A ctx expiry
// detaches only this caller; the operation itself keeps running.
func (t *Ticket) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts a queued operation before it starts, resolving its waiters
// with ErrCanceled. Canceling a running operation releases its waiters with
// ErrCanceled and cancels the operation's context, but does not wait for the
// operation to stop; the queue continues undisturbed either way.
func (t *Ticket) Cancel() {
	s := t.s
	s.mu.Lock()
	if t.resolved {
		s.mu.Unlock()
		return
	}
	t.err = ErrCanceled
	t.resolved = true
	t.canceled = true
	close(t.done)

	queued := s.removeLocked(t)
	cancelCtx := t.cancelCtx
	s.mu.Unlock()

	if queued {
		metrics.DecPendingOperations(t.kind)
		metrics.RecordOperation(t.kind, "canceled", 0)
	} else if cancelCtx != nil {
		cancelCtx()
	}

	s.logger.Debug().
		Str(log.FieldOperation, t.kind).
		Uint64("seq", t.seq).
		Bool("was_queued", queued).
		Msg("operation canceled")
}

// removeLocked unlinks t from the queue, reporting whether it was still
// queued. Callers must hold s.mu.
func (s *Serializer) removeLocked(t *Ticket) bool {
	for i, cur := range s.queue {
		if cur == t {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}
