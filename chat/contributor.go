// SPDX-License-Identifier: MIT

package chat

import (
	"github.com/roomkit/roomkit/realtime"
)

// Feature identifies one room capability carried by its own channel.
type Feature string

const (
	FeatureMessages  Feature = "messages"
	FeaturePresence  Feature = "presence"
	FeatureTyping    Feature = "typing"
	FeatureOccupancy Feature = "occupancy"
	FeatureReactions Feature = "reactions"
)

// featureOrder fixes the contributor sweep order: attach walks it front to
// back, detach and release walk it back to front.
var featureOrder = [...]Feature{
	FeatureMessages,
	FeaturePresence,
	FeatureTyping,
	FeatureOccupancy,
	FeatureReactions,
}

// contributor pairs one feature's channel with its discontinuity callback.
// The coordinator holds contributors as a fixed, ordered list created at
// room construction; the list never changes until the room is released.
type contributor struct {
	feature Feature
	channel realtime.Channel
	// discontinuity is invoked when message continuity on this feature's
	// channel may have been lost.
	discontinuity func(error)

	// attachedOnce is true once the coordinator has attached this channel
	// successfully; a channel's very first attach is never reported as a
	// discontinuity. Guarded by the coordinator's mutex.
	attachedOnce bool
}

// channelName builds the transport channel name for one room feature.
// Room IDs must not contain the "::" separator (enforced in Rooms.Get).
func channelName(roomID string, f Feature) string {
	return roomID + "::" + string(f)
}
