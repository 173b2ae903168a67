// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roomkit/roomkit/chat"
	"github.com/roomkit/roomkit/internal/config"
	"github.com/roomkit/roomkit/realtime"
	"github.com/roomkit/roomkit/realtime/realtimetest"
)

var (
	errInjectedAttach = errors.New("injected attach failure")
	errInjectedDetach = errors.New("injected detach failure")
	errInjectedDrop   = errors.New("injected connection drop")
)

var soakFeatures = []chat.Feature{
	chat.FeatureMessages,
	chat.FeaturePresence,
	chat.FeatureTyping,
	chat.FeatureOccupancy,
	chat.FeatureReactions,
}

// scenarioRun collects failures and observations from concurrent drivers.
type scenarioRun struct {
	name string

	mu       sync.Mutex
	failures []Failure
	obs      map[string]int64
}

func newScenarioRun(name string) *scenarioRun {
	return &scenarioRun{name: name, obs: make(map[string]int64)}
}

func (s *scenarioRun) fail(rule, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, Failure{
		Time:    time.Now(),
		RuleID:  rule,
		Message: fmt.Sprintf(format, args...),
	})
}

func (s *scenarioRun) observe(key string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs[key] += delta
}

func (s *scenarioRun) observation(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs[key]
}

func (s *scenarioRun) result() ScenarioResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make([]Failure, len(s.failures))
	copy(failures, s.failures)
	obs := make(map[string]int64, len(s.obs))
	for k, v := range s.obs {
		obs[k] = v
	}
	return ScenarioResult{
		Name:         s.name,
		Pass:         len(failures) == 0,
		Observations: obs,
		Failures:     failures,
	}
}

// statusPair is the comparable projection of a status change used for
// listener equivalence checks.
type statusPair struct {
	Current  string
	Previous string
}

type statusRecorder struct {
	mu  sync.Mutex
	seq []statusPair
}

func (r *statusRecorder) add(change chat.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = append(r.seq, statusPair{
		Current:  change.Current.String(),
		Previous: change.Previous.String(),
	})
}

func (r *statusRecorder) snapshot() []statusPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statusPair, len(r.seq))
	copy(out, r.seq)
	return out
}

// driver owns one room id on its own transport, so the transport's operation
// accounting maps 1:1 onto that room's serialized operation queue.
type driver struct {
	id     string
	rt     *realtimetest.Client
	client *chat.Client
	run    *scenarioRun
	rng    *rand.Rand
	holder *config.Holder

	room  *chat.Room
	seqA  *statusRecorder
	seqB  *statusRecorder
	discs atomic.Int64

	dropsInjected int64
}

func newDriver(run *scenarioRun, index int, holder *config.Holder) (*driver, error) {
	cfg := holder.Get()
	rt := realtimetest.NewClientWithID(fmt.Sprintf("soak-user-%d", index))
	client, err := chat.NewClient(rt, chat.ClientOptions{})
	if err != nil {
		return nil, err
	}
	return &driver{
		id:     fmt.Sprintf("room-%d", index),
		rt:     rt,
		client: client,
		run:    run,
		rng:    rand.New(rand.NewSource(cfg.Seed + int64(index))), //nolint:gosec // deterministic chaos, not crypto
		holder: holder,
	}, nil
}

// soakRoomOptions builds room options from the current config, falling back
// to timings short enough for tight soak cycles.
func soakRoomOptions(cfg config.Config) chat.RoomOptions {
	opts := chat.DefaultRoomOptions()
	opts.Typing.HeartbeatThrottle = 50 * time.Millisecond

	lc := chat.LifecycleOptions{
		RetryInitialInterval: 10 * time.Millisecond,
		RetryMaxInterval:     200 * time.Millisecond,
		TransientTimeout:     400 * time.Millisecond,
		DetachRetryLimit:     2,
		ReleaseRetryLimit:    3,
		CleanupRetryLimit:    0,
		OperationTimeout:     2 * time.Second,
	}
	if d := cfg.Lifecycle.RetryInitialInterval.Std(); d > 0 {
		lc.RetryInitialInterval = d
	}
	if d := cfg.Lifecycle.RetryMaxInterval.Std(); d > 0 {
		lc.RetryMaxInterval = d
	}
	if d := cfg.Lifecycle.TransientTimeout.Std(); d > 0 {
		lc.TransientTimeout = d
	}
	if d := cfg.Lifecycle.OperationTimeout.Std(); d > 0 {
		lc.OperationTimeout = d
	}
	opts.Lifecycle = lc
	return opts
}

func (d *driver) channelFor(f chat.Feature) *realtimetest.Channel {
	return d.rt.Lookup(d.id + "::" + string(f))
}

// getRoom fetches the room and wires two independent status listeners plus a
// discontinuity counter.
func (d *driver) getRoom(opts chat.RoomOptions) bool {
	room, err := d.client.Rooms().Get(d.id, opts)
	if err != nil {
		d.run.fail("ROOM_GET", "room %s: %v", d.id, err)
		return false
	}
	d.room = room
	d.seqA = &statusRecorder{}
	d.seqB = &statusRecorder{}
	room.OnStatusChange(d.seqA.add)
	room.OnStatusChange(d.seqB.add)
	room.OnDiscontinuity(func(chat.Discontinuity) { d.discs.Add(1) })
	return true
}

// attachConverged attaches and, on a transient failure, waits for background
// recovery to bring the room back to attached.
func (d *driver) attachConverged(ctx context.Context, recoveryDeadline time.Duration) bool {
	err := d.room.Attach(ctx)
	d.run.observe("attaches", 1)
	if err == nil {
		if st := d.room.Status(); st != chat.RoomStatusAttached {
			d.run.fail("OP_RESULT", "room %s: attach returned nil but status is %s", d.id, st)
			return false
		}
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if waitFor(recoveryDeadline, func() bool {
		return d.room.Status() == chat.RoomStatusAttached
	}) {
		d.run.observe("recoveries_converged", 1)
		return true
	}
	d.run.fail("RECOVERY_CONVERGE", "room %s: stuck in %s after transient attach failure", d.id, d.room.Status())
	return false
}

// traffic pushes one round of feature events through the room and verifies
// local echo delivery.
func (d *driver) traffic(ctx context.Context) {
	var echoes atomic.Int64
	sub := d.room.Messages().Subscribe(func(chat.Message) { echoes.Add(1) })
	defer sub.Unsubscribe()

	const sends = 3
	for i := 0; i < sends; i++ {
		if err := d.room.Messages().Send(ctx, fmt.Sprintf("msg-%d", i)); err != nil {
			d.run.fail("FEATURE_TRAFFIC", "room %s: send message: %v", d.id, err)
			return
		}
	}
	d.run.observe("messages_sent", sends)
	if !waitFor(2*time.Second, func() bool { return echoes.Load() == sends }) {
		d.run.fail("MSG_ECHO", "room %s: published %d messages, echoed %d", d.id, sends, echoes.Load())
	}

	if err := d.room.Typing().Start(ctx); err != nil {
		d.run.fail("FEATURE_TRAFFIC", "room %s: typing start: %v", d.id, err)
	}
	if err := d.room.Typing().Stop(ctx); err != nil {
		d.run.fail("FEATURE_TRAFFIC", "room %s: typing stop: %v", d.id, err)
	}

	if err := d.room.Reactions().Send(ctx, "heart"); err != nil {
		d.run.fail("FEATURE_TRAFFIC", "room %s: send reaction: %v", d.id, err)
	}

	if err := d.room.Presence().Enter(ctx, []byte(`{"state":"online"}`)); err != nil {
		d.run.fail("FEATURE_TRAFFIC", "room %s: presence enter: %v", d.id, err)
	} else {
		members, err := d.room.Presence().Get(ctx)
		if err != nil {
			d.run.fail("FEATURE_TRAFFIC", "room %s: presence get: %v", d.id, err)
		} else {
			d.run.observe("presence_members", int64(len(members)))
		}
	}

	d.channelFor(chat.FeatureOccupancy).PushMessage(realtime.Message{
		Name: "occupancy.update",
		Data: []byte(`{"connections":2,"presenceMembers":1}`),
	})
	if snapshot, ok := d.room.Occupancy().Current(); !ok || snapshot.Connections != 2 {
		d.run.fail("FEATURE_TRAFFIC", "room %s: occupancy snapshot not applied (ok=%v %+v)", d.id, ok, snapshot)
	}
}

// injectDrop simulates the transport losing and re-establishing a channel
// without resume, which must surface exactly one discontinuity.
func (d *driver) injectDrop(f chat.Feature) {
	ch := d.channelFor(f)
	ch.EmitStateChange(realtime.StateChange{
		Current: realtime.ChannelStateSuspended,
		Err:     errInjectedDrop,
	})
	ch.EmitStateChange(realtime.StateChange{
		Current: realtime.ChannelStateAttached,
		Resumed: false,
	})
	d.dropsInjected++
	d.run.observe("drops_injected", 1)

	expected := d.dropsInjected
	if !waitFor(2*time.Second, func() bool { return d.discs.Load() >= expected }) {
		d.run.fail("DISCONTINUITY_LOST", "room %s: %d drops injected, %d discontinuities observed",
			d.id, expected, d.discs.Load())
	}
}

// channelsSettled reports whether every feature channel reached a resting
// state after a terminal failure.
func (d *driver) channelsSettled() bool {
	for _, f := range soakFeatures {
		switch d.channelFor(f).State() {
		case realtime.ChannelStateAttached,
			realtime.ChannelStateAttaching,
			realtime.ChannelStateSuspended,
			realtime.ChannelStateDetaching:
			return false
		}
	}
	return true
}

// releaseRoom releases through the registry and verifies listener delivery.
func (d *driver) releaseRoom(ctx context.Context) {
	if d.room == nil {
		return
	}
	if err := d.client.Rooms().Release(ctx, d.id); err != nil {
		d.run.fail("RELEASE", "room %s: %v", d.id, err)
		return
	}
	d.run.observe("releases", 1)
	if st := d.room.Status(); st != chat.RoomStatusReleased {
		d.run.fail("RELEASE", "room %s: status %s after release", d.id, st)
	}
	d.verifyStatusSeq()
	d.room = nil
}

// verifyStatusSeq checks that both listeners drained, saw identical
// sequences, and that each transition chains off the previous one.
func (d *driver) verifyStatusSeq() {
	released := chat.RoomStatusReleased.String()
	drained := waitFor(2*time.Second, func() bool {
		a, b := d.seqA.snapshot(), d.seqB.snapshot()
		return len(a) > 0 && len(a) == len(b) && a[len(a)-1].Current == released
	})
	if !drained {
		d.run.fail("STATUS_DRAIN", "room %s: listeners did not drain to released (a=%d b=%d)",
			d.id, len(d.seqA.snapshot()), len(d.seqB.snapshot()))
		return
	}

	a, b := d.seqA.snapshot(), d.seqB.snapshot()
	if diff := cmp.Diff(a, b); diff != "" {
		d.run.fail("STATUS_FANOUT", "room %s: listeners diverged (-first +second):\n%s", d.id, diff)
	}
	for i := 1; i < len(a); i++ {
		if a[i].Previous != a[i-1].Current {
			d.run.fail("STATUS_CHAIN", "room %s: event %d carries previous=%s after %s",
				d.id, i, a[i].Previous, a[i-1].Current)
		}
	}
}

// cleanup releases whatever the driver left behind, stale registry entries
// included, and runs the per-driver end checks. Uses its own context so a
// scenario deadline cannot strand a half-released room.
func (d *driver) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.client.Rooms().Release(ctx, d.id); err != nil {
		d.run.fail("RELEASE", "room %s: final cleanup: %v", d.id, err)
	}
	d.room = nil
	d.finalChecks()
}

// finalChecks runs once per driver at scenario end.
func (d *driver) finalChecks() {
	if n := d.rt.MaxConcurrentOps(); n > 1 {
		d.run.fail("OP_OVERLAP", "room %s: %d channel operations overlapped", d.id, n)
	}
	if n := d.client.Rooms().Len(); n != 0 {
		d.run.fail("ROOM_LEAK", "room %s: %d rooms left in registry", d.id, n)
	}
}

const (
	chaosNone      = ""
	chaosTransient = "transient"
	chaosTerminal  = "terminal"
)

func rollChaos(rng *rand.Rand, c config.ChaosConfig) string {
	r := rng.Float64()
	switch {
	case r < c.TerminalRate:
		return chaosTerminal
	case r < c.TerminalRate+c.TransientRate:
		return chaosTransient
	default:
		return chaosNone
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
