// SPDX-License-Identifier: MIT

package chat

import (
	"fmt"
	"time"
)

// TypingOptions configures the typing feature of a room.
type TypingOptions struct {
	// HeartbeatThrottle is the minimum interval between typing.started
	// events published for a continuously typing client. Subsequent Start
	// calls inside the window are absorbed locally.
	HeartbeatThrottle time.Duration
}

// LifecycleOptions tunes the room lifecycle coordinator. Zero values are
// replaced by the defaults from DefaultLifecycleOptions.
type LifecycleOptions struct {
	// RetryInitialInterval seeds the exponential backoff used by the
	// background recovery and cleanup loops.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps that backoff.
	RetryMaxInterval time.Duration
	// TransientTimeout is how long a channel may report attaching while the
	// room is attached before the room is marked suspended. Shorter blips
	// never surface.
	TransientTimeout time.Duration
	// DetachRetryLimit bounds per-channel retries of non-terminal detach
	// failures before the room is marked failed.
	DetachRetryLimit int
	// ReleaseRetryLimit bounds best-effort detach attempts per contributor
	// during release; exhausting it never fails the release.
	ReleaseRetryLimit int
	// CleanupRetryLimit bounds the background detach sweep that runs after
	// a terminal attach failure. 0 retries forever with capped backoff.
	CleanupRetryLimit int
	// OperationTimeout bounds one attach or detach call to the transport.
	OperationTimeout time.Duration
}

// RoomOptions selects the features of a room and their settings. Messages
// are always enabled. Two Get calls for the same room must carry identical
// options.
type RoomOptions struct {
	EnablePresence  bool
	EnableTyping    bool
	EnableOccupancy bool
	EnableReactions bool

	Typing    TypingOptions
	Lifecycle LifecycleOptions
}

const defaultHeartbeatThrottle = 10 * time.Second

// DefaultRoomOptions returns a room configuration with every feature
// enabled.
func DefaultRoomOptions() RoomOptions {
	return RoomOptions{
		EnablePresence:  true,
		EnableTyping:    true,
		EnableOccupancy: true,
		EnableReactions: true,
		Typing:          TypingOptions{HeartbeatThrottle: defaultHeartbeatThrottle},
		Lifecycle:       DefaultLifecycleOptions(),
	}
}

// DefaultLifecycleOptions returns the coordinator defaults.
func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		RetryInitialInterval: 250 * time.Millisecond,
		RetryMaxInterval:     30 * time.Second,
		TransientTimeout:     5 * time.Second,
		DetachRetryLimit:     3,
		ReleaseRetryLimit:    5,
		CleanupRetryLimit:    0,
		OperationTimeout:     10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultLifecycleOptions.
func (o LifecycleOptions) withDefaults() LifecycleOptions {
	def := DefaultLifecycleOptions()
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = def.RetryInitialInterval
	}
	if o.RetryMaxInterval <= 0 {
		o.RetryMaxInterval = def.RetryMaxInterval
	}
	if o.TransientTimeout <= 0 {
		o.TransientTimeout = def.TransientTimeout
	}
	if o.DetachRetryLimit <= 0 {
		o.DetachRetryLimit = def.DetachRetryLimit
	}
	if o.ReleaseRetryLimit <= 0 {
		o.ReleaseRetryLimit = def.ReleaseRetryLimit
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = def.OperationTimeout
	}
	return o
}

// normalized returns the effective options: zero settings replaced by their
// defaults, so that equality between two values means identical behavior.
func (o RoomOptions) normalized() RoomOptions {
	if o.Typing.HeartbeatThrottle == 0 {
		o.Typing.HeartbeatThrottle = defaultHeartbeatThrottle
	}
	o.Lifecycle = o.Lifecycle.withDefaults()
	return o
}

// Validate rejects option combinations the room cannot honor.
func (o RoomOptions) Validate() error {
	if o.EnableTyping && o.Typing.HeartbeatThrottle < 0 {
		return newError(ErrorCodeBadRequest, FeatureTyping, RoomStatusInitialized,
			fmt.Errorf("typing heartbeat throttle must not be negative, got %s", o.Typing.HeartbeatThrottle))
	}
	if o.Lifecycle.RetryInitialInterval < 0 || o.Lifecycle.RetryMaxInterval < 0 {
		return newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
			fmt.Errorf("lifecycle retry intervals must not be negative"))
	}
	if o.Lifecycle.CleanupRetryLimit < 0 {
		return newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
			fmt.Errorf("cleanup retry limit must not be negative, got %d", o.Lifecycle.CleanupRetryLimit))
	}
	return nil
}

// enabledFeatures lists the room's contributors in the fixed sweep order.
func (o RoomOptions) enabledFeatures() []Feature {
	enabled := map[Feature]bool{
		FeatureMessages:  true,
		FeaturePresence:  o.EnablePresence,
		FeatureTyping:    o.EnableTyping,
		FeatureOccupancy: o.EnableOccupancy,
		FeatureReactions: o.EnableReactions,
	}
	out := make([]Feature, 0, len(featureOrder))
	for _, f := range featureOrder {
		if enabled[f] {
			out = append(out, f)
		}
	}
	return out
}

// ClientOptions configures a chat client.
type ClientOptions struct {
	// ClientID overrides the identity reported by the realtime client. When
	// both are empty a random UUID is generated.
	ClientID string
	// LogLevel, when set, configures the process-wide logger on first use
	// ("debug", "info", "warn", "error").
	LogLevel string
}
