// SPDX-License-Identifier: MIT

// Package realtimetest provides a scriptable in-memory realtime.Client for
// tests and soak runs. Channels attach and detach instantly unless a test
// scripts failures or installs hooks, and published messages are echoed back
// to local subscribers the way a real pub/sub transport would.
package realtimetest

import (
	"context"
	"sync"
	"time"

	"github.com/roomkit/roomkit/realtime"
)

var (
	_ realtime.Client   = (*Client)(nil)
	_ realtime.Channel  = (*Channel)(nil)
	_ realtime.Presence = (*fakePresence)(nil)
)

// Client is an in-memory implementation of realtime.Client.
type Client struct {
	mu       sync.Mutex
	clientID string
	channels map[string]*Channel
	released []string

	opsInflight int
	opsMax      int
	opLog       []string
}

// NewClient returns a client with clientID "test-client".
func NewClient() *Client {
	return NewClientWithID("test-client")
}

// NewClientWithID returns a client with the given clientID.
func NewClientWithID(id string) *Client {
	return &Client{
		clientID: id,
		channels: make(map[string]*Channel),
	}
}

// Channel returns the channel with the given name, creating it on first use.
func (c *Client) Channel(name string) realtime.Channel {
	return c.Lookup(name)
}

// Lookup is Channel returning the concrete fake for scripting.
func (c *Client) Lookup(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := newChannel(c, name)
	c.channels[name] = ch
	return ch
}

// Release drops the named channel handle.
func (c *Client) Release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, name)
	c.released = append(c.released, name)
}

// ClientID returns the identity this client publishes under.
func (c *Client) ClientID() string {
	return c.clientID
}

// ReleasedNames returns the channel names passed to Release, in order.
func (c *Client) ReleasedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.released))
	copy(out, c.released)
	return out
}

// OperationLog returns the channel names whose Attach/Detach calls started,
// in start order, prefixed with "attach " or "detach ".
func (c *Client) OperationLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.opLog))
	copy(out, c.opLog)
	return out
}

// MaxConcurrentOps reports the highest number of Attach/Detach calls that
// were ever in flight simultaneously across all channels.
func (c *Client) MaxConcurrentOps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opsMax
}

func (c *Client) opStarted(kind, channel string) {
	c.mu.Lock()
	c.opsInflight++
	if c.opsInflight > c.opsMax {
		c.opsMax = c.opsInflight
	}
	c.opLog = append(c.opLog, kind+" "+channel)
	c.mu.Unlock()
}

func (c *Client) opFinished() {
	c.mu.Lock()
	c.opsInflight--
	c.mu.Unlock()
}

// Outcome scripts the result of one Attach or Detach call.
type Outcome struct {
	Err error
	// State the channel lands in when Err is non-nil. Ignored on success.
	State realtime.ChannelState
}

// Transient scripts a failed call that leaves the channel suspended.
func Transient(err error) Outcome {
	return Outcome{Err: err, State: realtime.ChannelStateSuspended}
}

// Terminal scripts a failed call that leaves the channel failed.
func Terminal(err error) Outcome {
	return Outcome{Err: err, State: realtime.ChannelStateFailed}
}

// OK scripts a successful call.
func OK() Outcome {
	return Outcome{}
}

// PublishedMessage records one Publish call on a channel.
type PublishedMessage struct {
	Event string
	Data  []byte
}

type stateListener struct {
	id int
	fn func(realtime.StateChange)
}

type messageListener struct {
	id int
	fn func(realtime.Message)
}

// Channel is an in-memory implementation of realtime.Channel.
//
// AttachFunc, DetachFunc and PublishFunc are optional hooks consulted before
// the default instant-success behavior; a hook that fails leaves the channel
// suspended unless it moved the state itself. Scripted outcomes queued with
// ScriptAttach/ScriptDetach take precedence over hooks.
type Channel struct {
	client *Client
	name   string

	AttachFunc  func(ctx context.Context) error
	DetachFunc  func(ctx context.Context) error
	PublishFunc func(ctx context.Context, event string, data []byte) error

	mu           sync.Mutex
	state        realtime.ChannelState
	errReason    error
	resumedNext  bool
	attachScript []Outcome
	detachScript []Outcome
	attachCalls  int
	detachCalls  int
	publishes    []PublishedMessage

	nextID        int
	stateSubs     []stateListener
	msgSubs       map[string][]messageListener
	presence      *fakePresence
	presenceState map[string][]byte
}

func newChannel(client *Client, name string) *Channel {
	ch := &Channel{
		client:        client,
		name:          name,
		state:         realtime.ChannelStateInitialized,
		msgSubs:       make(map[string][]messageListener),
		presenceState: make(map[string][]byte),
	}
	ch.presence = &fakePresence{ch: ch}
	return ch
}

// Name implements realtime.Channel.
func (c *Channel) Name() string { return c.name }

// State implements realtime.Channel.
func (c *Channel) State() realtime.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrorReason implements realtime.Channel.
func (c *Channel) ErrorReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errReason
}

// ScriptAttach queues outcomes for upcoming Attach calls, consumed in order.
func (c *Channel) ScriptAttach(outcomes ...Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachScript = append(c.attachScript, outcomes...)
}

// ScriptDetach queues outcomes for upcoming Detach calls, consumed in order.
func (c *Channel) ScriptDetach(outcomes ...Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachScript = append(c.detachScript, outcomes...)
}

// SetResumedNext marks the next successful attach as having preserved
// continuity.
func (c *Channel) SetResumedNext(resumed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumedNext = resumed
}

// AttachCalls reports how many times Attach was invoked.
func (c *Channel) AttachCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachCalls
}

// DetachCalls reports how many times Detach was invoked.
func (c *Channel) DetachCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachCalls
}

// Publishes returns the messages published on this channel, in order.
func (c *Channel) Publishes() []PublishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishedMessage, len(c.publishes))
	copy(out, c.publishes)
	return out
}

// Attach implements realtime.Channel.
func (c *Channel) Attach(ctx context.Context) error {
	c.client.opStarted("attach", c.name)
	defer c.client.opFinished()

	c.mu.Lock()
	c.attachCalls++
	var scripted *Outcome
	if len(c.attachScript) > 0 {
		out := c.attachScript[0]
		c.attachScript = c.attachScript[1:]
		scripted = &out
	}
	if scripted == nil && c.state == realtime.ChannelStateAttached {
		c.mu.Unlock()
		return nil
	}
	hook := c.AttachFunc
	c.mu.Unlock()

	c.transition(realtime.ChannelStateAttaching, nil, false)

	if scripted != nil {
		if scripted.Err != nil {
			c.transition(scripted.State, scripted.Err, false)
			return scripted.Err
		}
	} else if hook != nil {
		if err := hook(ctx); err != nil {
			c.failUnlessMoved(realtime.ChannelStateAttaching, realtime.ChannelStateSuspended, err)
			return err
		}
	}

	c.mu.Lock()
	resumed := c.resumedNext
	c.resumedNext = false
	c.mu.Unlock()
	c.transition(realtime.ChannelStateAttached, nil, resumed)
	return nil
}

// Detach implements realtime.Channel.
func (c *Channel) Detach(ctx context.Context) error {
	c.client.opStarted("detach", c.name)
	defer c.client.opFinished()

	c.mu.Lock()
	c.detachCalls++
	var scripted *Outcome
	if len(c.detachScript) > 0 {
		out := c.detachScript[0]
		c.detachScript = c.detachScript[1:]
		scripted = &out
	}
	if scripted == nil && c.state == realtime.ChannelStateDetached {
		c.mu.Unlock()
		return nil
	}
	hook := c.DetachFunc
	c.mu.Unlock()

	c.transition(realtime.ChannelStateDetaching, nil, false)

	if scripted != nil {
		if scripted.Err != nil {
			c.transition(scripted.State, scripted.Err, false)
			return scripted.Err
		}
	} else if hook != nil {
		if err := hook(ctx); err != nil {
			c.failUnlessMoved(realtime.ChannelStateDetaching, realtime.ChannelStateSuspended, err)
			return err
		}
	}

	c.transition(realtime.ChannelStateDetached, nil, false)
	return nil
}

// Publish implements realtime.Channel. Messages are journaled and echoed to
// local subscribers of the same event name.
func (c *Channel) Publish(ctx context.Context, event string, data []byte) error {
	c.mu.Lock()
	hook := c.PublishFunc
	c.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, event, data); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.publishes = append(c.publishes, PublishedMessage{Event: event, Data: data})
	c.mu.Unlock()

	c.PushMessage(realtime.Message{
		Name:      event,
		Data:      data,
		ClientID:  c.client.ClientID(),
		Timestamp: time.Now(),
	})
	return nil
}

// Subscribe implements realtime.Channel.
func (c *Channel) Subscribe(name string, fn func(realtime.Message)) realtime.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.msgSubs[name] = append(c.msgSubs[name], messageListener{id: id, fn: fn})
	return &subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.msgSubs[name]
		for i, l := range subs {
			if l.id == id {
				c.msgSubs[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}}
}

// OnStateChange implements realtime.Channel.
func (c *Channel) OnStateChange(fn func(realtime.StateChange)) realtime.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.stateSubs = append(c.stateSubs, stateListener{id: id, fn: fn})
	return &subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.stateSubs {
			if l.id == id {
				c.stateSubs = append(c.stateSubs[:i], c.stateSubs[i+1:]...)
				return
			}
		}
	}}
}

// Presence implements realtime.Channel.
func (c *Channel) Presence() realtime.Presence { return c.presence }

// PushMessage delivers m to subscribers of m.Name, as if it arrived from the
// transport.
func (c *Channel) PushMessage(m realtime.Message) {
	c.mu.Lock()
	subs := append([]messageListener(nil), c.msgSubs[m.Name]...)
	c.mu.Unlock()
	for _, l := range subs {
		l.fn(m)
	}
}

// PushPresence delivers ev to presence subscribers, as if it arrived from
// the transport, and updates the local presence set.
func (c *Channel) PushPresence(ev realtime.PresenceEvent) {
	c.presence.apply(ev)
}

// SetState moves the channel to state without notifying listeners.
func (c *Channel) SetState(state realtime.ChannelState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.errReason = err
}

// EmitStateChange moves the channel to change.Current and notifies state
// listeners, as if the transport reported it.
func (c *Channel) EmitStateChange(change realtime.StateChange) {
	c.mu.Lock()
	change.Previous = c.state
	c.state = change.Current
	if change.Err != nil {
		c.errReason = change.Err
	}
	subs := append([]stateListener(nil), c.stateSubs...)
	c.mu.Unlock()
	for _, l := range subs {
		l.fn(change)
	}
}

func (c *Channel) transition(to realtime.ChannelState, err error, resumed bool) {
	c.mu.Lock()
	prev := c.state
	c.state = to
	c.errReason = err
	subs := append([]stateListener(nil), c.stateSubs...)
	c.mu.Unlock()
	change := realtime.StateChange{Current: to, Previous: prev, Err: err, Resumed: resumed}
	for _, l := range subs {
		l.fn(change)
	}
}

// failUnlessMoved applies the default failure state unless the hook already
// transitioned the channel away from the in-progress state.
func (c *Channel) failUnlessMoved(inProgress, fallback realtime.ChannelState, err error) {
	c.mu.Lock()
	moved := c.state != inProgress
	c.mu.Unlock()
	if !moved {
		c.transition(fallback, err, false)
	}
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

type presenceListener struct {
	id int
	fn func(realtime.PresenceEvent)
}

type fakePresence struct {
	ch   *Channel
	mu   sync.Mutex
	subs []presenceListener
}

func (p *fakePresence) Enter(ctx context.Context, data []byte) error {
	p.apply(realtime.PresenceEvent{
		Action:   realtime.PresenceEnter,
		ClientID: p.ch.client.ClientID(),
		Data:     data,
	})
	return nil
}

func (p *fakePresence) Leave(ctx context.Context, data []byte) error {
	p.apply(realtime.PresenceEvent{
		Action:   realtime.PresenceLeave,
		ClientID: p.ch.client.ClientID(),
		Data:     data,
	})
	return nil
}

func (p *fakePresence) Get(ctx context.Context) ([]realtime.PresenceEvent, error) {
	p.ch.mu.Lock()
	defer p.ch.mu.Unlock()
	out := make([]realtime.PresenceEvent, 0, len(p.ch.presenceState))
	for clientID, data := range p.ch.presenceState {
		out = append(out, realtime.PresenceEvent{
			Action:   realtime.PresencePresent,
			ClientID: clientID,
			Data:     data,
		})
	}
	return out, nil
}

func (p *fakePresence) Subscribe(fn func(realtime.PresenceEvent)) realtime.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch.mu.Lock()
	p.ch.nextID++
	id := p.ch.nextID
	p.ch.mu.Unlock()
	p.subs = append(p.subs, presenceListener{id: id, fn: fn})
	return &subscription{cancel: func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.subs {
			if l.id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				return
			}
		}
	}}
}

func (p *fakePresence) apply(ev realtime.PresenceEvent) {
	p.ch.mu.Lock()
	switch ev.Action {
	case realtime.PresenceEnter, realtime.PresenceUpdate, realtime.PresencePresent:
		p.ch.presenceState[ev.ClientID] = ev.Data
	case realtime.PresenceLeave:
		delete(p.ch.presenceState, ev.ClientID)
	}
	p.ch.mu.Unlock()

	p.mu.Lock()
	subs := append([]presenceListener(nil), p.subs...)
	p.mu.Unlock()
	for _, l := range subs {
		l.fn(ev)
	}
}
