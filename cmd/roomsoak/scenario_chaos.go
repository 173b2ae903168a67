// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roomkit/roomkit/chat"
	"github.com/roomkit/roomkit/internal/config"
	"github.com/roomkit/roomkit/realtime/realtimetest"
)

// runChaosScenario injects scripted attach failures and connection drops at
// the configured rates and verifies that every room either converges back to
// attached or settles terminally, never wedging in between. Chaos rates are
// re-read from the config holder each cycle, so a hot reload retunes a
// running soak.
func runChaosScenario(ctx context.Context, holder *config.Holder) ScenarioResult {
	cfg := holder.Get()
	run := newScenarioRun(scenarioChaos)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration.Std())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Rooms; i++ {
		index := i
		g.Go(func() error {
			d, err := newDriver(run, index, holder)
			if err != nil {
				run.fail("HARNESS", "driver %d: %v", index, err)
				return nil
			}
			d.chaos(gctx)
			return nil
		})
	}
	_ = g.Wait()

	checkMetrics(run)
	return run.result()
}

func (d *driver) chaos(ctx context.Context) {
	defer d.cleanup()

	for ctx.Err() == nil {
		cfg := d.holder.Get()
		if !d.getRoom(soakRoomOptions(cfg)) {
			return
		}

		switch rollChaos(d.rng, cfg.Chaos) {
		case chaosTerminal:
			d.terminalCycle(ctx)
		case chaosTransient:
			target := soakFeatures[d.rng.Intn(len(soakFeatures))]
			d.channelFor(target).ScriptAttach(realtimetest.Transient(errInjectedAttach))
			d.run.observe("transients_injected", 1)
			if d.attachConverged(ctx, 5*time.Second) {
				d.steadyCycle(ctx, cfg.Chaos)
			}
		default:
			if d.attachConverged(ctx, 5*time.Second) {
				d.steadyCycle(ctx, cfg.Chaos)
			}
		}
		if ctx.Err() != nil {
			return
		}

		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.releaseRoom(rctx)
		cancel()
		d.run.observe("cycles", 1)
	}
}

// terminalCycle scripts a fatal attach failure and verifies the room fails,
// its channels settle, and further lifecycle operations are refused.
func (d *driver) terminalCycle(ctx context.Context) {
	target := soakFeatures[d.rng.Intn(len(soakFeatures))]
	d.channelFor(target).ScriptAttach(realtimetest.Terminal(errInjectedAttach))
	d.run.observe("terminals_injected", 1)

	if err := d.room.Attach(ctx); err == nil {
		d.run.fail("TERMINAL_SETTLE", "room %s: attach succeeded despite fatal failure on %s", d.id, target)
		return
	}
	if ctx.Err() != nil {
		return
	}
	if !waitFor(2*time.Second, func() bool { return d.room.Status() == chat.RoomStatusFailed }) {
		d.run.fail("TERMINAL_SETTLE", "room %s: status %s after fatal attach failure", d.id, d.room.Status())
		return
	}
	if !waitFor(5*time.Second, d.channelsSettled) {
		d.run.fail("TERMINAL_SETTLE", "room %s: channels never settled after fatal failure on %s", d.id, target)
	}

	if err := d.room.Attach(ctx); !errors.Is(err, chat.ErrRoomInFailedState) {
		d.run.fail("FAILED_GATE", "room %s: attach in failed state returned %v", d.id, err)
	}
}

// steadyCycle runs traffic against an attached room, with optional drop and
// detach-retry injections before winding down.
func (d *driver) steadyCycle(ctx context.Context, chaos config.ChaosConfig) {
	d.traffic(ctx)

	if d.rng.Float64() < chaos.DropRate {
		target := soakFeatures[d.rng.Intn(len(soakFeatures))]
		d.injectDrop(target)
	}
	if ctx.Err() != nil {
		return
	}

	if d.room.Status() != chat.RoomStatusAttached {
		return
	}
	if d.rng.Float64() < chaos.TransientRate/2 {
		target := soakFeatures[d.rng.Intn(len(soakFeatures))]
		d.channelFor(target).ScriptDetach(realtimetest.Transient(errInjectedDetach), realtimetest.OK())
		d.run.observe("detach_retries_injected", 1)
	}
	if err := d.room.Detach(ctx); err != nil {
		if ctx.Err() == nil {
			d.run.fail("OP_RESULT", "room %s: detach after chaos: %v", d.id, err)
		}
		return
	}
	d.run.observe("detaches", 1)
}
