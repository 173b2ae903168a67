// SPDX-License-Identifier: MIT

package chat

import (
	"fmt"
	"time"

	"github.com/roomkit/roomkit/realtime"
)

// handleStateChange reacts to a contributor channel's state transitions.
// While a lifecycle operation is in progress the operation owns the room
// status: discontinuities are buffered (latest per feature wins) and state
// mapping is suppressed. When the room is idle, channel states map onto the
// room status one to one.
func (c *lifecycleCoordinator) handleStateChange(con *contributor, change realtime.StateChange) {
	var deliver error

	c.mu.Lock()
	if change.Current == realtime.ChannelStateAttached && !change.Resumed && con.attachedOnce {
		reason := change.Err
		if reason == nil {
			reason = fmt.Errorf("discontinuity on %s channel: messages may have been missed", con.feature)
		}
		if c.opInProgress {
			c.pendingDiscontinuities[con.feature] = reason
		} else {
			deliver = reason
		}
	}

	op := c.opInProgress
	if !op {
		switch change.Current {
		case realtime.ChannelStateAttached:
			c.stopTransientTimerLocked(con.feature)
		case realtime.ChannelStateAttaching:
			// A channel quietly reattaching under an attached room gets a
			// grace period before the room degrades to suspended.
			if c.tracker.Current() == RoomStatusAttached {
				c.startTransientTimerLocked(con, change.Err)
			}
		}
	}
	c.mu.Unlock()

	if deliver != nil {
		c.deliverDiscontinuity(con, deliver)
	}
	if op {
		return
	}

	c.applyChannelState(con, change)
}

// applyChannelState maps an idle-room channel transition onto the room
// status.
func (c *lifecycleCoordinator) applyChannelState(con *contributor, change realtime.StateChange) {
	status := c.tracker.Current()
	switch change.Current {
	case realtime.ChannelStateFailed:
		if status == RoomStatusAttached || status == RoomStatusSuspended || status == RoomStatusAttaching {
			cerr := newError(attachmentFailedCode(con.feature), con.feature, RoomStatusFailed, change.Err)
			c.tracker.Set(RoomStatusFailed, cerr)
			// Recovery cannot win against a failed channel; let it die
			// without blocking the transport's callback goroutine.
			c.mu.Lock()
			rec := c.recovery
			c.recovery = nil
			c.mu.Unlock()
			if rec != nil {
				rec.cancel()
			}
		}
	case realtime.ChannelStateSuspended:
		if status == RoomStatusAttached {
			cerr := newError(attachmentFailedCode(con.feature), con.feature, RoomStatusSuspended, change.Err)
			c.tracker.Set(RoomStatusSuspended, cerr)
		}
	case realtime.ChannelStateAttached:
		if status == RoomStatusSuspended {
			// The transport recovered on its own.
			c.tracker.Set(RoomStatusAttached, nil)
		}
	}
}

// startTransientTimerLocked arms the per-feature grace timer. Callers hold
// c.mu; a timer already pending for the feature is left alone.
func (c *lifecycleCoordinator) startTransientTimerLocked(con *contributor, cause error) {
	if _, ok := c.transientTimers[con.feature]; ok {
		return
	}
	c.transientTimers[con.feature] = time.AfterFunc(c.opts.TransientTimeout, func() {
		c.onTransientTimeout(con, cause)
	})
}

// onTransientTimeout fires when a channel stayed away past the grace period:
// the room drops to suspended unless an operation took over in the meantime.
func (c *lifecycleCoordinator) onTransientTimeout(con *contributor, cause error) {
	c.mu.Lock()
	delete(c.transientTimers, con.feature)
	suppressed := c.opInProgress
	c.mu.Unlock()
	if suppressed {
		return
	}
	if c.tracker.Current() != RoomStatusAttached {
		return
	}
	if cause == nil {
		cause = fmt.Errorf("channel %s did not reattach within %s", con.channel.Name(), c.opts.TransientTimeout)
	}
	cerr := newError(attachmentFailedCode(con.feature), con.feature, RoomStatusSuspended, cause)
	c.tracker.Set(RoomStatusSuspended, cerr)
}

func (c *lifecycleCoordinator) stopTransientTimerLocked(feature Feature) {
	if timer, ok := c.transientTimers[feature]; ok {
		timer.Stop()
		delete(c.transientTimers, feature)
	}
}

func (c *lifecycleCoordinator) stopTransientTimersLocked() {
	for feature, timer := range c.transientTimers {
		timer.Stop()
		delete(c.transientTimers, feature)
	}
}
