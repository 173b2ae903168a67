// SPDX-License-Identifier: MIT

// Package emitter provides an ordered, fault-isolated broadcast primitive.
//
// Every subscriber observes emitted values in the same total order. Each
// subscriber drains its own queue on its own goroutine, so a slow or
// panicking listener never delays or corrupts delivery to the others.
package emitter

import (
	"context"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/internal/metrics"
)

const (
	outcomeDelivered = "delivered"
	outcomePanic     = "panic"
)

// Emitter broadcasts values of type T to registered subscribers.
// The zero value is not usable; construct with New.
type Emitter[T any] struct {
	mu       sync.Mutex
	stream   string
	subs     []*Subscription[T]
	index    map[uintptr]*Subscription[T]
	inflight int           // queued plus in-delivery values across all subscribers
	idleCh   chan struct{} // non-nil while a WaitIdle caller is parked
	logger   zerolog.Logger
}

// Subscription is the handle returned by On and Once. Off cancels it.
type Subscription[T any] struct {
	em     *Emitter[T]
	fn     func(T)
	key    uintptr
	once   bool
	queue  []T
	active bool // drain goroutine currently running
	closed bool
}

// New returns an empty emitter. The stream name labels log entries and
// delivery metrics.
func New[T any](stream string) *Emitter[T] {
	return &Emitter[T]{
		stream: stream,
		index:  make(map[uintptr]*Subscription[T]),
		logger: log.WithComponent("emitter").With().Str(log.FieldStream, stream).Logger(),
	}
}

// On registers a persistent listener. Registering a listener that is already
// subscribed is a no-op returning the existing subscription; listener
// identity follows the function's code pointer.
func (e *Emitter[T]) On(fn func(T)) *Subscription[T] {
	return e.subscribe(fn, false)
}

// Once registers a listener that is removed immediately before its first
// delivery, so it observes at most one value even if it panics.
func (e *Emitter[T]) Once(fn func(T)) *Subscription[T] {
	return e.subscribe(fn, true)
}

func (e *Emitter[T]) subscribe(fn func(T), once bool) *Subscription[T] {
	if fn == nil {
		return &Subscription[T]{closed: true}
	}
	key := reflect.ValueOf(fn).Pointer()

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.index[key]; ok {
		return existing
	}
	s := &Subscription[T]{em: e, fn: fn, key: key, once: once}
	e.subs = append(e.subs, s)
	e.index[key] = s
	return s
}

// Emit appends v to every subscriber's queue under a single critical section,
// so concurrent emitters are folded into one total order. It never blocks on
// listener execution.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.subs {
		s.queue = append(s.queue, v)
		e.inflight++
		if !s.active {
			s.active = true
			go e.drain(s)
		}
	}
}

// Len reports the number of registered subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Idle reports whether no subscriber has queued or in-flight work.
func (e *Emitter[T]) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight == 0
}

// WaitIdle blocks until the emitter is idle or ctx is done.
func (e *Emitter[T]) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	if e.inflight == 0 {
		e.mu.Unlock()
		return nil
	}
	if e.idleCh == nil {
		e.idleCh = make(chan struct{})
	}
	ch := e.idleCh
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Off cancels the subscription: queued values are dropped and no further
// deliveries happen. A delivery already in progress completes.
func (s *Subscription[T]) Off() {
	if s.em == nil {
		return
	}
	e := s.em
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	e.remove(s)
	e.inflight -= len(s.queue)
	s.queue = nil
	e.signalIfIdle()
}

// drain delivers queued values to one subscriber in FIFO order. It runs only
// while the subscriber has work and exits once the queue empties, so an idle
// emitter holds no goroutines.
func (e *Emitter[T]) drain(s *Subscription[T]) {
	for {
		e.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			e.inflight -= len(s.queue)
			s.queue = nil
			s.active = false
			e.signalIfIdle()
			e.mu.Unlock()
			return
		}
		v := s.queue[0]
		s.queue = s.queue[1:]
		if s.once {
			// Unregister before invoking: at most one delivery, even if
			// the listener panics.
			s.closed = true
			e.remove(s)
			e.inflight -= len(s.queue)
			s.queue = nil
		}
		e.mu.Unlock()

		e.deliver(s, v)

		e.mu.Lock()
		e.inflight--
		e.signalIfIdle()
		e.mu.Unlock()
	}
}

func (e *Emitter[T]) deliver(s *Subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncEmitterDelivery(e.stream, outcomePanic)
			e.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("subscriber panicked")
			return
		}
		metrics.IncEmitterDelivery(e.stream, outcomeDelivered)
	}()
	s.fn(v)
}

// remove unlinks s from the subscriber list and identity index.
// Callers must hold e.mu.
func (e *Emitter[T]) remove(s *Subscription[T]) {
	for i, cur := range e.subs {
		if cur == s {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
	if e.index[s.key] == s {
		delete(e.index, s.key)
	}
}

// signalIfIdle releases WaitIdle callers once all work has drained.
// Callers must hold e.mu.
func (e *Emitter[T]) signalIfIdle() {
	if e.inflight == 0 && e.idleCh != nil {
		close(e.idleCh)
		e.idleCh = nil
	}
}
