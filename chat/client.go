// SPDX-License-Identifier: MIT

// Package chat layers room lifecycle management on top of a realtime pub/sub
// client. A Room bundles one channel per enabled feature (messages,
// presence, typing, occupancy, reactions) behind a single attach/detach
// lifecycle with serialized operations, ordered status events, and automatic
// recovery from transient channel failures.
package chat

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/realtime"
)

// Client is the chat-layer entry point over one realtime connection.
type Client struct {
	rt       realtime.Client
	clientID string
	rooms    *Rooms
	logger   zerolog.Logger
}

// NewClient wraps rt in a chat client. The effective client identity is
// opts.ClientID, falling back to the realtime client's identity, falling
// back to a random UUID.
func NewClient(rt realtime.Client, opts ClientOptions) (*Client, error) {
	if rt == nil {
		return nil, newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
			errors.New("realtime client must not be nil"))
	}
	if opts.LogLevel != "" {
		if err := log.SetLevel(opts.LogLevel); err != nil {
			return nil, newError(ErrorCodeBadRequest, "", RoomStatusInitialized,
				err)
		}
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = rt.ClientID()
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c := &Client{
		rt:       rt,
		clientID: clientID,
		rooms:    newRooms(rt),
		logger: log.WithComponent("client").With().
			Str(log.FieldClientID, clientID).Logger(),
	}
	c.logger.Debug().Msg("chat client ready")
	return c, nil
}

// Rooms returns the room registry.
func (c *Client) Rooms() *Rooms { return c.rooms }

// ClientID returns the effective client identity.
func (c *Client) ClientID() string { return c.clientID }

// Realtime exposes the underlying transport client.
func (c *Client) Realtime() realtime.Client { return c.rt }
