// SPDX-License-Identifier: MIT

// Package realtime defines the boundary to the underlying pub/sub client.
//
// Connection management, wire protocol, reconnection, and presence sync all
// live behind these interfaces. The chat layer only drives channels through
// Attach/Detach and observes their state stream; any client exposing this
// surface can carry it.
package realtime

import (
	"context"
	"time"
)

// ChannelState is the lifecycle state of a single channel as reported by the
// transport.
type ChannelState int

const (
	ChannelStateInitialized ChannelState = iota
	ChannelStateAttaching
	ChannelStateAttached
	ChannelStateDetaching
	ChannelStateDetached
	ChannelStateSuspended
	ChannelStateFailed
)

var channelStateNames = map[ChannelState]string{
	ChannelStateInitialized: "initialized",
	ChannelStateAttaching:   "attaching",
	ChannelStateAttached:    "attached",
	ChannelStateDetaching:   "detaching",
	ChannelStateDetached:    "detached",
	ChannelStateSuspended:   "suspended",
	ChannelStateFailed:      "failed",
}

func (s ChannelState) String() string {
	if name, ok := channelStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// StateChange describes one transition of a channel's state.
type StateChange struct {
	Current  ChannelState
	Previous ChannelState
	// Err carries the transport error that caused the transition, if any.
	Err error
	// Resumed is true when the transition preserved message continuity.
	Resumed bool
}

// Message is a single event received on a channel. Data is opaque to the
// chat layer; codecs belong to the transport's callers.
type Message struct {
	Name      string
	Data      []byte
	ClientID  string
	Timestamp time.Time
}

// PresenceAction classifies a presence event.
type PresenceAction int

const (
	PresenceEnter PresenceAction = iota
	PresenceLeave
	PresenceUpdate
	PresencePresent
)

func (a PresenceAction) String() string {
	switch a {
	case PresenceEnter:
		return "enter"
	case PresenceLeave:
		return "leave"
	case PresenceUpdate:
		return "update"
	case PresencePresent:
		return "present"
	}
	return "unknown"
}

// PresenceEvent is a single presence set mutation on a channel.
type PresenceEvent struct {
	Action   PresenceAction
	ClientID string
	Data     []byte
}

// Subscription detaches a listener when no longer needed.
type Subscription interface {
	Unsubscribe()
}

// Presence is the per-channel presence set.
type Presence interface {
	Enter(ctx context.Context, data []byte) error
	Leave(ctx context.Context, data []byte) error
	Get(ctx context.Context) ([]PresenceEvent, error)
	Subscribe(fn func(PresenceEvent)) Subscription
}

// Channel is one named transport channel.
//
// Attach and Detach block until the transport resolves the request. After a
// failed call, State reports whether the failure was terminal
// (ChannelStateFailed) or transient (typically ChannelStateSuspended).
type Channel interface {
	Name() string
	State() ChannelState
	// ErrorReason returns the last error the transport recorded for this
	// channel, or nil.
	ErrorReason() error
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	Publish(ctx context.Context, name string, data []byte) error
	Subscribe(name string, fn func(Message)) Subscription
	OnStateChange(fn func(StateChange)) Subscription
	Presence() Presence
}

// Client hands out channels by name. Channel is idempotent: the same name
// yields the same handle until Release drops it.
type Client interface {
	Channel(name string) Channel
	Release(name string)
	ClientID() string
}
