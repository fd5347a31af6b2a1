// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package platformtest provides in-memory platforms for tests of the
// bridge and workflow packages.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// Operation names accepted by FailNext.
const (
	OpSend          = "send"
	OpDial          = "dial"
	OpCreateChannel = "create_channel"
	OpEditChannel   = "edit_channel"
	OpFetch         = "fetch"
	OpSendCustomer  = "send_customer"
	OpSetSession    = "set_session"
)

// failures is a per-operation queue of injected errors.
type failures struct {
	queued map[string][]error
	calls  map[string]int
}

func (f *failures) next(op string) error {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	queue := f.queued[op]
	if len(queue) == 0 {
		return nil
	}
	f.queued[op] = queue[1:]
	return queue[0]
}

func (f *failures) push(op string, errs []error) {
	if f.queued == nil {
		f.queued = make(map[string][]error)
	}
	f.queued[op] = append(f.queued[op], errs...)
}

// Channel is the fake's record of one staff channel.
type Channel struct {
	Spec     platform.ChannelSpec
	Options  []platform.ChannelOptions
	Messages []platform.OutboundMessage
}

// Staff is an in-memory platform.ChannelPlatform.
type Staff struct {
	mu       sync.Mutex
	channels map[string]*Channel
	order    []string
	members  map[string][]platform.Member
	failures failures
	nextID   int
	open     int
}

// NewStaff returns an empty Staff platform.
func NewStaff() *Staff {
	return &Staff{channels: make(map[string]*Channel), members: make(map[string][]platform.Member)}
}

// FailNext queues errors returned by the next calls of op, one per call.
func (s *Staff) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures.push(op, errs)
}

// Calls returns how many times op has been invoked.
func (s *Staff) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures.calls[op]
}

// AddChannel registers a channel without going through CreateChannel.
func (s *Staff) AddChannel(channelRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelRef] = &Channel{}
	s.order = append(s.order, channelRef)
}

// SetMembers sets the members returned for a group.
func (s *Staff) SetMembers(groupRef string, members []platform.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[groupRef] = members
}

// Channel returns a copy of the named channel's record.
func (s *Staff) Channel(channelRef string) (Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := s.channels[channelRef]
	if !ok {
		return Channel{}, false
	}
	copied := *channel
	copied.Options = append([]platform.ChannelOptions(nil), channel.Options...)
	copied.Messages = append([]platform.OutboundMessage(nil), channel.Messages...)
	return copied, true
}

// ChannelRefs lists channels in creation order.
func (s *Staff) ChannelRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// OpenHandles returns how many send handles are open.
func (s *Staff) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func notFound(op, ref string) error {
	return &platform.Error{Platform: "fake", Op: op, Kind: platform.KindNotFound, Err: fmt.Errorf("no channel %s", ref)}
}

func (s *Staff) CreateConnection(_ context.Context, channelRef string) (platform.SendHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures.next(OpDial); err != nil {
		return nil, err
	}
	if _, ok := s.channels[channelRef]; !ok {
		return nil, notFound(OpDial, channelRef)
	}
	s.open++
	return &handle{staff: s, channelRef: channelRef}, nil
}

func (s *Staff) CreateChannel(_ context.Context, spec platform.ChannelSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures.next(OpCreateChannel); err != nil {
		return "", err
	}
	s.nextID++
	channelRef := fmt.Sprintf("!channel%d:fake", s.nextID)
	s.channels[channelRef] = &Channel{Spec: spec}
	s.order = append(s.order, channelRef)
	return channelRef, nil
}

func (s *Staff) EditChannel(_ context.Context, channelRef string, options platform.ChannelOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures.next(OpEditChannel); err != nil {
		return err
	}
	channel, ok := s.channels[channelRef]
	if !ok {
		return notFound(OpEditChannel, channelRef)
	}
	channel.Options = append(channel.Options, options)
	return nil
}

func (s *Staff) FetchRecent(_ context.Context, channelRef string, limit int) ([]platform.FetchedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures.next(OpFetch); err != nil {
		return nil, err
	}
	channel, ok := s.channels[channelRef]
	if !ok {
		return nil, notFound(OpFetch, channelRef)
	}
	var fetched []platform.FetchedMessage
	for i := len(channel.Messages) - 1; i >= 0 && len(fetched) < limit; i-- {
		fetched = append(fetched, platform.FetchedMessage{
			ID:   fmt.Sprintf("%s/%d", channelRef, i),
			Body: channel.Messages[i].Text,
		})
	}
	return fetched, nil
}

func (s *Staff) LookupMembersAndRoles(_ context.Context, groupRef string) ([]platform.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Member(nil), s.members[groupRef]...), nil
}

type handle struct {
	staff      *Staff
	channelRef string
	closed     bool
}

func (h *handle) Send(_ context.Context, msg platform.OutboundMessage) (string, error) {
	s := h.staff
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.closed {
		return "", fmt.Errorf("send on closed handle")
	}
	if err := s.failures.next(OpSend); err != nil {
		return "", err
	}
	channel, ok := s.channels[h.channelRef]
	if !ok {
		return "", notFound(OpSend, h.channelRef)
	}
	channel.Messages = append(channel.Messages, msg)
	return fmt.Sprintf("%s/%d", h.channelRef, len(channel.Messages)-1), nil
}

func (h *handle) Close() error {
	s := h.staff
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.closed {
		h.closed = true
		s.open--
	}
	return nil
}

// Customers is an in-memory platform.CustomerPlatform.
type Customers struct {
	mu       sync.Mutex
	sent     map[string][]platform.OutboundMessage
	states   map[string]platform.SessionState
	failures failures
}

// NewCustomers returns an empty Customers platform.
func NewCustomers() *Customers {
	return &Customers{
		sent:   make(map[string][]platform.OutboundMessage),
		states: make(map[string]platform.SessionState),
	}
}

// FailNext queues errors returned by the next calls of op.
func (c *Customers) FailNext(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures.push(op, errs)
}

// Calls returns how many times op has been invoked.
func (c *Customers) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures.calls[op]
}

// Sent returns the messages delivered to a session.
func (c *Customers) Sent(sessionRef string) []platform.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]platform.OutboundMessage(nil), c.sent[sessionRef]...)
}

func (c *Customers) SendMessage(_ context.Context, sessionRef string, msg platform.OutboundMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures.next(OpSendCustomer); err != nil {
		return "", err
	}
	c.sent[sessionRef] = append(c.sent[sessionRef], msg)
	return fmt.Sprintf("%s:%d", sessionRef, len(c.sent[sessionRef])), nil
}

func (c *Customers) GetSessionState(_ context.Context, sessionRef string) (platform.SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[sessionRef], nil
}

func (c *Customers) SetSessionState(_ context.Context, sessionRef string, state platform.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures.next(OpSetSession); err != nil {
		return err
	}
	c.states[sessionRef] = state
	return nil
}

// Transient returns a retryable platform error.
func Transient(op string) error {
	return &platform.Error{Platform: "fake", Op: op, Kind: platform.KindTransient, StatusCode: 503, Err: fmt.Errorf("unavailable")}
}

// Forbidden returns a permission error.
func Forbidden(op string) error {
	return &platform.Error{Platform: "fake", Op: op, Kind: platform.KindPermission, StatusCode: 403, Err: fmt.Errorf("forbidden")}
}
