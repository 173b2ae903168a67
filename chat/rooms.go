// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/realtime"
)

// Rooms hands out live Room instances by id. One id maps to at most one live
// room; Release disposes it and frees the id for a fresh instance.
type Rooms struct {
	client realtime.Client
	logger zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func newRooms(client realtime.Client) *Rooms {
	return &Rooms{
		client: client,
		rooms:  make(map[string]*Room),
		logger: log.WithComponent("rooms"),
	}
}

// Get returns the live room for id, constructing one on first use. A second
// Get for a live room must carry identical effective options. Getting a room
// that is mid-release fails; a fully released room is replaced by a fresh
// instance.
func (rs *Rooms) Get(id string, opts RoomOptions) (*Room, error) {
	if id == "" {
		return nil, newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
			errors.New("room id must not be empty"))
	}
	if strings.Contains(id, "::") {
		return nil, newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
			fmt.Errorf("room id %q must not contain %q", id, "::"))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.normalized()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if room, ok := rs.rooms[id]; ok {
		switch room.Status() {
		case RoomStatusReleasing:
			return nil, newError(ErrorCodeRoomIsReleasing, "", RoomStatusReleasing, nil)
		case RoomStatusReleased:
			// Stale entry from a direct Room.Release; fall through and
			// replace it.
		default:
			if room.options != opts {
				return nil, newError(ErrorCodeBadRequest, "", room.Status(),
					fmt.Errorf("room %q already exists with different options", id))
			}
			return room, nil
		}
	}

	room := newRoom(rs.client, id, opts)
	rs.rooms[id] = room
	rs.logger.Debug().Str(log.FieldRoomID, id).Msg("room created")
	return room, nil
}

// Release releases the room registered under id and removes it from the
// registry. Unknown ids are a no-op; concurrent calls for the same id join
// the same underlying operation.
func (rs *Rooms) Release(ctx context.Context, id string) error {
	rs.mu.Lock()
	room, ok := rs.rooms[id]
	rs.mu.Unlock()
	if !ok {
		return nil
	}

	if err := room.Release(ctx); err != nil {
		return err
	}

	rs.mu.Lock()
	if rs.rooms[id] == room {
		delete(rs.rooms, id)
	}
	rs.mu.Unlock()
	rs.logger.Debug().Str(log.FieldRoomID, id).Msg("room released")
	return nil
}

// Len reports how many live rooms the registry currently holds.
func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}
