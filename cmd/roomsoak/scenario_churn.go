// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roomkit/roomkit/chat"
	"github.com/roomkit/roomkit/internal/config"
)

// runChurnScenario spins every driver through get/attach/traffic/release
// cycles until the clock runs out, alternating between release styles so the
// registry sees detached, attached and stale-entry releases.
func runChurnScenario(ctx context.Context, holder *config.Holder) ScenarioResult {
	cfg := holder.Get()
	run := newScenarioRun(scenarioChurn)

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
			d.churn(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return run.result()
}

func (d *driver) churn(ctx context.Context) {
	defer d.cleanup()

	for cycle := 0; ctx.Err() == nil; cycle++ {
		opts := soakRoomOptions(d.holder.Get())
		if !d.getRoom(opts) {
			return
		}

		if err := d.room.Attach(ctx); err != nil {
			// The clock running out mid-attach abandons the wait, not the
			// operation; cleanup settles it.
			if ctx.Err() != nil {
				return
			}
			d.run.fail("OP_RESULT", "room %s: churn attach: %v", d.id, err)
			return
		}
		d.run.observe("attaches", 1)

		if err := d.room.Messages().Send(ctx, "churn"); err != nil && ctx.Err() == nil {
			d.run.fail("FEATURE_TRAFFIC", "room %s: churn send: %v", d.id, err)
		}

		// Release must succeed even when the scenario deadline already
		// passed, so it gets its own context.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch cycle % 3 {
		case 0:
			// Detach first, then release through the registry.
			if err := d.room.Detach(ctx); err != nil {
				cancel()
				if ctx.Err() != nil {
					return
				}
				d.run.fail("OP_RESULT", "room %s: churn detach: %v", d.id, err)
				return
			}
			d.run.observe("detaches", 1)
			d.releaseRoom(rctx)
		case 1:
			// Release straight out of attached; the sweep detaches.
			d.releaseRoom(rctx)
		case 2:
			// Release the room directly, leaving a stale registry entry
			// that the next Get has to replace.
			if err := d.room.Release(rctx); err != nil {
				d.run.fail("RELEASE", "room %s: direct release: %v", d.id, err)
			} else if st := d.room.Status(); st != chat.RoomStatusReleased {
				d.run.fail("RELEASE", "room %s: status %s after direct release", d.id, st)
			} else {
				d.run.observe("releases", 1)
				d.verifyStatusSeq()
			}
			d.room = nil
		}
		cancel()
		d.run.observe("cycles", 1)
	}
}
