// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("connpool: closed")

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxPerChannel    = 5
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultFailureThreshold = 3
)

// DialFunc opens a new send handle for a channel.
type DialFunc func(ctx context.Context, channelRef string) (platform.SendHandle, error)

// Config holds the parameters for New.
type Config struct {
	// Dial is required.
	Dial DialFunc

	// MaxPerChannel defaults to DefaultMaxPerChannel.
	MaxPerChannel int

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// FailureThreshold is the consecutive failure count at which a
	// handle is closed. Defaults to DefaultFailureThreshold.
	FailureThreshold int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handle is a pooled send handle. It is owned by the caller between
// Acquire and Release.
type Handle struct {
	channel    string
	conn       platform.SendHandle
	lastUsedAt time.Time
	failures   int
	inUse      bool
}

// Channel returns the channel the handle sends into.
func (h *Handle) Channel() string { return h.channel }

// Send forwards to the underlying handle.
func (h *Handle) Send(ctx context.Context, msg platform.OutboundMessage) (string, error) {
	return h.conn.Send(ctx, msg)
}

type channelState struct {
	handles []*Handle

	// dialing counts slots reserved by in-flight dials.
	dialing int

	// released is closed and replaced whenever a slot may have become
	// available.
	released chan struct{}
}

func (s *channelState) broadcast() {
	close(s.released)
	s.released = make(chan struct{})
}

// Pool is a per-channel handle pool. It is safe for concurrent use.
type Pool struct {
	dial             DialFunc
	maxPerChannel    int
	idleTimeout      time.Duration
	failureThreshold int
	clock            clock.Clock
	logger           *slog.Logger

	mu       sync.Mutex
	channels map[string]*channelState
	closed   bool
}

// New creates a Pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("connpool: Dial is required")
	}
	p := &Pool{
		dial:             cfg.Dial,
		maxPerChannel:    cfg.MaxPerChannel,
		idleTimeout:      cfg.IdleTimeout,
		failureThreshold: cfg.FailureThreshold,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		channels:         make(map[string]*channelState),
	}
	if p.maxPerChannel <= 0 {
		p.maxPerChannel = DefaultMaxPerChannel
	}
	if p.idleTimeout <= 0 {
		p.idleTimeout = DefaultIdleTimeout
	}
	if p.failureThreshold <= 0 {
		p.failureThreshold = DefaultFailureThreshold
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p, nil
}

func (p *Pool) stateLocked(channelRef string) *channelState {
	state, ok := p.channels[channelRef]
	if !ok {
		state = &channelState{released: make(chan struct{})}
		p.channels[channelRef] = state
	}
	return state
}

// Acquire returns a handle for channelRef. The caller must pass it to
// Release exactly once.
func (p *Pool) Acquire(ctx context.Context, channelRef string) (*Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		state := p.stateLocked(channelRef)

		var best *Handle
		for _, handle := range state.handles {
			if handle.inUse || handle.failures >= p.failureThreshold {
				continue
			}
			if best == nil || handle.lastUsedAt.Before(best.lastUsedAt) {
				best = handle
			}
		}
		if best != nil {
			best.inUse = true
			p.mu.Unlock()
			return best, nil
		}

		if len(state.handles)+state.dialing < p.maxPerChannel {
			state.dialing++
			p.mu.Unlock()
			return p.dialHandle(ctx, channelRef)
		}

		released := state.released
		p.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, fmt.Errorf("connpool: waiting for a handle on %s: %w", channelRef, ctx.Err())
		}
	}
}

func (p *Pool) dialHandle(ctx context.Context, channelRef string) (*Handle, error) {
	conn, err := p.dial(ctx, channelRef)

	p.mu.Lock()
	state := p.stateLocked(channelRef)
	state.dialing--
	if err != nil {
		state.broadcast()
		p.mu.Unlock()
		return nil, fmt.Errorf("connpool: dial %s: %w", channelRef, err)
	}
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	handle := &Handle{channel: channelRef, conn: conn, lastUsedAt: p.clock.Now(), inUse: true}
	state.handles = append(state.handles, handle)
	open := len(state.handles)
	p.mu.Unlock()

	p.logger.Debug("send handle opened", "channel", channelRef, "open", open)
	return handle, nil
}

// Release returns handle to the pool. A nil callErr marks the handle
// healthy. Only retryable failures count against it: a permission or
// not-found error is about the request, not the connection, and caller
// cancellation is neither.
func (p *Pool) Release(handle *Handle, callErr error) {
	p.mu.Lock()
	handle.inUse = false
	handle.lastUsedAt = p.clock.Now()
	switch {
	case callErr == nil:
		handle.failures = 0
	case platform.IsRetryable(callErr):
		handle.failures++
	}

	state := p.channels[handle.channel]
	destroy := p.closed || handle.failures >= p.failureThreshold
	if destroy && state != nil {
		p.removeLocked(state, handle)
	}
	if state != nil {
		state.broadcast()
	}
	failures := handle.failures
	p.mu.Unlock()

	if destroy {
		if !p.closed {
			p.logger.Warn("send handle destroyed after repeated failures",
				"channel", handle.channel,
				"failures", failures,
				"error", callErr,
			)
		}
		p.closeHandle(handle)
	}
}

func (p *Pool) removeLocked(state *channelState, handle *Handle) {
	for i, candidate := range state.handles {
		if candidate == handle {
			state.handles = append(state.handles[:i], state.handles[i+1:]...)
			break
		}
	}
	if len(state.handles) == 0 && state.dialing == 0 && !p.closed {
		delete(p.channels, handle.channel)
		// Waiters hold the old state's channel; wake them so they
		// re-read the map.
		state.broadcast()
	}
}

func (p *Pool) closeHandle(handle *Handle) {
	if err := handle.conn.Close(); err != nil {
		p.logger.Debug("closing send handle", "channel", handle.channel, "error", err)
	}
}

// Sweep closes idle handles unused for longer than the idle timeout
// and any idle handle at the failure threshold. It returns how many it
// closed.
func (p *Pool) Sweep() int {
	now := p.clock.Now()
	var evicted []*Handle

	p.mu.Lock()
	for _, state := range p.channels {
		kept := state.handles[:0]
		for _, handle := range state.handles {
			stale := now.Sub(handle.lastUsedAt) >= p.idleTimeout
			if !handle.inUse && (stale || handle.failures >= p.failureThreshold) {
				evicted = append(evicted, handle)
				continue
			}
			kept = append(kept, handle)
		}
		clear(state.handles[len(kept):])
		state.handles = kept
	}
	for channelRef, state := range p.channels {
		if len(state.handles) == 0 && state.dialing == 0 {
			delete(p.channels, channelRef)
			state.broadcast()
		}
	}
	p.mu.Unlock()

	for _, handle := range evicted {
		p.closeHandle(handle)
	}
	if len(evicted) > 0 {
		p.logger.Debug("swept idle send handles", "closed", len(evicted))
	}
	return len(evicted)
}

// Stats is a point-in-time view of one channel's handles.
type Stats struct {
	Open  int
	InUse int
}

// Stats reports channelRef's handle counts.
func (p *Pool) Stats(channelRef string) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var stats Stats
	if state, ok := p.channels[channelRef]; ok {
		stats.Open = len(state.handles)
		for _, handle := range state.handles {
			if handle.inUse {
				stats.InUse++
			}
		}
	}
	return stats
}

// Close closes every idle handle and fails pending Acquire calls.
// Handles currently in use are closed when released.
func (p *Pool) Close() error {
	var idle []*Handle
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for channelRef, state := range p.channels {
		var busy []*Handle
		for _, handle := range state.handles {
			if handle.inUse {
				busy = append(busy, handle)
			} else {
				idle = append(idle, handle)
			}
		}
		state.handles = busy
		state.broadcast()
		if len(busy) == 0 {
			delete(p.channels, channelRef)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, handle := range idle {
		if err := handle.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connpool: closing handle for %s: %w", handle.channel, err))
		}
	}
	return errors.Join(errs...)
}
