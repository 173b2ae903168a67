// SPDX-License-Identifier: MIT

package main

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/roomkit/roomkit/chat"
	"github.com/roomkit/roomkit/internal/config"
)

// runSmokeScenario walks every room through one fixed, fully deterministic
// lifecycle script and compares the observable traces against the expected
// ones entry by entry.
func runSmokeScenario(ctx context.Context, holder *config.Holder) ScenarioResult {
	cfg := holder.Get()
	run := newScenarioRun(scenarioSmoke)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Rooms; i++ {
		index := i
		g.Go(func() error {
			d, err := newDriver(run, index, holder)
			if err != nil {
				run.fail("HARNESS", "driver %d: %v", index, err)
				return nil
			}
			d.smoke(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return run.result()
}

func (d *driver) smoke(ctx context.Context) {
	defer d.cleanup()

	opts := soakRoomOptions(d.holder.Get())
	if !d.getRoom(opts) {
		return
	}

	if err := d.room.Attach(ctx); err != nil {
		d.run.fail("OP_RESULT", "room %s: attach: %v", d.id, err)
		return
	}
	d.run.observe("attaches", 1)

	d.traffic(ctx)

	if err := d.room.Detach(ctx); err != nil {
		d.run.fail("OP_RESULT", "room %s: detach: %v", d.id, err)
		return
	}
	d.run.observe("detaches", 1)
	if st := d.room.Status(); st != chat.RoomStatusDetached {
		d.run.fail("OP_RESULT", "room %s: status %s after detach", d.id, st)
	}
	if n := d.discs.Load(); n != 0 {
		d.run.fail("SPURIOUS_DISCONTINUITY", "room %s: %d discontinuities during clean attach/detach", d.id, n)
	}

	// A re-attach after an explicit detach starts fresh.
	if err := d.room.Attach(ctx); err != nil {
		d.run.fail("OP_RESULT", "room %s: re-attach: %v", d.id, err)
		return
	}
	d.run.observe("attaches", 1)
	if n := d.discs.Load(); n != 0 {
		d.run.fail("SPURIOUS_DISCONTINUITY", "room %s: %d discontinuities after re-attach", d.id, n)
	}

	// One unresumed reconnect must surface exactly one discontinuity.
	d.injectDrop(chat.FeatureMessages)

	d.releaseRoom(ctx)

	wantTrail := []statusPair{
		{Current: "attaching", Previous: "initialized"},
		{Current: "attached", Previous: "attaching"},
		{Current: "detaching", Previous: "attached"},
		{Current: "detached", Previous: "detaching"},
		{Current: "attaching", Previous: "detached"},
		{Current: "attached", Previous: "attaching"},
		{Current: "suspended", Previous: "attached"},
		{Current: "attached", Previous: "suspended"},
		{Current: "releasing", Previous: "attached"},
		{Current: "released", Previous: "releasing"},
	}
	if diff := cmp.Diff(wantTrail, d.seqA.snapshot()); diff != "" {
		d.run.fail("STATUS_SEQ", "room %s: unexpected status trail (-want +got):\n%s", d.id, diff)
	}

	// Two full attach/detach rounds, each sweeping the features in order and
	// winding them down in reverse.
	var wantLog []string
	for _, f := range soakFeatures {
		wantLog = append(wantLog, "attach "+d.id+"::"+string(f))
	}
	for i := len(soakFeatures) - 1; i >= 0; i-- {
		wantLog = append(wantLog, "detach "+d.id+"::"+string(soakFeatures[i]))
	}
	for _, f := range soakFeatures {
		wantLog = append(wantLog, "attach "+d.id+"::"+string(f))
	}
	for i := len(soakFeatures) - 1; i >= 0; i-- {
		wantLog = append(wantLog, "detach "+d.id+"::"+string(soakFeatures[i]))
	}
	if diff := cmp.Diff(wantLog, d.rt.OperationLog()); diff != "" {
		d.run.fail("SWEEP_ORDER", "room %s: unexpected operation log (-want +got):\n%s", d.id, diff)
	}

	if names := d.rt.ReleasedNames(); len(names) != len(soakFeatures) {
		d.run.fail("RELEASE", "room %s: %d channel handles released, want %d", d.id, len(names), len(soakFeatures))
	}
}
