// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/connpool"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/ratelimit"
)

// ErrNoChannel is returned when a ticket has no staff channel or no
// customer session to relay into.
var ErrNoChannel = errors.New("bridge: ticket has no destination")

// RetryPolicy bounds retries of transient platform failures.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Defaults to 3.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the wait after the first failure, doubled after
	// each further failure up to MaxBackoff. Defaults to 500ms and 10s.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	// CallTimeout bounds each individual platform call. Defaults to
	// 15s.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		CallTimeout: 15 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = defaults.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaults.CallTimeout
	}
	return p
}

// Config holds the parameters for New.
type Config struct {
	// Staff and Customers are the two platforms. Required.
	Staff     platform.ChannelPlatform
	Customers platform.CustomerPlatform

	// Pool supplies staff send handles. Required.
	Pool *connpool.Pool

	// Limiter gates every outbound call. Required.
	Limiter *ratelimit.Limiter

	Retry RetryPolicy

	// MaintenanceInterval is how often Start's loop sweeps the pool and
	// prunes rate-limit buckets. Defaults to one minute.
	MaintenanceInterval time.Duration

	// BucketIdle is how long a per-resource bucket may sit unused
	// before pruning. Defaults to ten minutes.
	BucketIdle time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bridge relays messages between the staff and customer platforms.
type Bridge struct {
	staff     platform.ChannelPlatform
	customers platform.CustomerPlatform
	pool      *connpool.Pool
	limiter   *ratelimit.Limiter
	retry     RetryPolicy

	maintenanceInterval time.Duration
	bucketIdle          time.Duration

	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	var missing []error
	if cfg.Staff == nil {
		missing = append(missing, errors.New("Staff is required"))
	}
	if cfg.Customers == nil {
		missing = append(missing, errors.New("Customers is required"))
	}
	if cfg.Pool == nil {
		missing = append(missing, errors.New("Pool is required"))
	}
	if cfg.Limiter == nil {
		missing = append(missing, errors.New("Limiter is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	b := &Bridge{
		staff:               cfg.Staff,
		customers:           cfg.Customers,
		pool:                cfg.Pool,
		limiter:             cfg.Limiter,
		retry:               cfg.Retry.withDefaults(),
		maintenanceInterval: cfg.MaintenanceInterval,
		bucketIdle:          cfg.BucketIdle,
		clock:               cfg.Clock,
		logger:              cfg.Logger,
	}
	if b.maintenanceInterval <= 0 {
		b.maintenanceInterval = time.Minute
	}
	if b.bucketIdle <= 0 {
		b.bucketIdle = 10 * time.Minute
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Send delivers payload to a staff channel and returns the platform
// message ID.
func (b *Bridge) Send(ctx context.Context, channelRef string, payload Payload) (string, error) {
	if channelRef == "" {
		return "", ErrNoChannel
	}
	msg := Normalize(payload)
	return b.withRetry(ctx, "send", channelRef, func(ctx context.Context) (string, error) {
		if err := b.limiter.Acquire(ctx, ratelimit.Send, channelRef); err != nil {
			return "", err
		}
		handle, err := b.pool.Acquire(ctx, channelRef)
		if err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, b.retry.CallTimeout)
		id, err := handle.Send(callCtx, msg)
		cancel()
		b.pool.Release(handle, err)
		return id, err
	})
}

// SendCustomer delivers payload to a customer's conversation.
func (b *Bridge) SendCustomer(ctx context.Context, sessionRef string, payload Payload) (string, error) {
	if sessionRef == "" {
		return "", ErrNoChannel
	}
	msg := Normalize(payload)
	return b.withRetry(ctx, "send to customer", sessionRef, func(ctx context.Context) (string, error) {
		if err := b.limiter.Acquire(ctx, ratelimit.Send, "customer:"+sessionRef); err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, b.retry.CallTimeout)
		defer cancel()
		return b.customers.SendMessage(callCtx, sessionRef, msg)
	})
}

// CreateChannel creates a staff channel and returns its reference.
// Creation is not idempotent, so it is attempted once.
func (b *Bridge) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error) {
	if err := b.limiter.Acquire(ctx, ratelimit.ChannelCreate, ""); err != nil {
		return "", fmt.Errorf("bridge: create channel %q: %w", spec.Name, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, b.retry.CallTimeout)
	defer cancel()
	channelRef, err := b.staff.CreateChannel(callCtx, spec)
	if err != nil {
		return "", fmt.Errorf("bridge: create channel %q: %w", spec.Name, err)
	}
	b.logger.Info("staff channel created", "channel", channelRef, "name", spec.Name)
	return channelRef, nil
}

// EditChannel changes a staff channel's properties.
func (b *Bridge) EditChannel(ctx context.Context, channelRef string, options platform.ChannelOptions) error {
	_, err := b.withRetry(ctx, "edit channel", channelRef, func(ctx context.Context) (string, error) {
		if err := b.limiter.Acquire(ctx, ratelimit.ChannelEdit, channelRef); err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, b.retry.CallTimeout)
		defer cancel()
		return "", b.staff.EditChannel(callCtx, channelRef, options)
	})
	return err
}

// FetchRecent reads up to limit recent messages from a staff channel.
func (b *Bridge) FetchRecent(ctx context.Context, channelRef string, limit int) ([]platform.FetchedMessage, error) {
	var messages []platform.FetchedMessage
	_, err := b.withRetry(ctx, "fetch", channelRef, func(ctx context.Context) (string, error) {
		if err := b.limiter.Acquire(ctx, ratelimit.Fetch, channelRef); err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, b.retry.CallTimeout)
		defer cancel()
		var err error
		messages, err = b.staff.FetchRecent(callCtx, channelRef, limit)
		return "", err
	})
	return messages, err
}

// withRetry runs call until it succeeds, fails with a non-transient
// error, or runs out of attempts.
func (b *Bridge) withRetry(ctx context.Context, op, target string, call func(context.Context) (string, error)) (string, error) {
	backoff := b.retry.BaseBackoff
	for attempt := 1; ; attempt++ {
		id, err := call(ctx)
		if err == nil {
			return id, nil
		}
		if !platform.IsRetryable(err) || attempt >= b.retry.MaxAttempts || ctx.Err() != nil {
			return "", fmt.Errorf("bridge: %s %s (attempt %d of %d): %w", op, target, attempt, b.retry.MaxAttempts, err)
		}

		wait := backoff
		if hint := platform.RetryAfterHint(err); hint > wait {
			wait = hint
		}
		b.logger.Warn("platform call failed, retrying",
			"op", op,
			"target", target,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("bridge: %s %s: %w (last error: %v)", op, target, ctx.Err(), err)
		case <-b.clock.After(wait):
		}
		backoff = min(backoff*2, b.retry.MaxBackoff)
	}
}

// Start runs the maintenance loop in the background until Stop is
// called or ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	ticker := b.clock.NewTicker(b.maintenanceInterval)
	go func() {
		defer close(b.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.maintain()
			}
		}
	}()
	b.logger.Info("bridge started", "maintenance_interval", b.maintenanceInterval)
}

func (b *Bridge) maintain() {
	swept := b.pool.Sweep()
	pruned := b.limiter.Prune(b.bucketIdle)
	if swept > 0 || pruned > 0 {
		b.logger.Debug("bridge maintenance", "handles_closed", swept, "buckets_pruned", pruned)
	}
}

// Stop ends the maintenance loop and waits for it to exit. The pool
// and limiter are left open; their owner closes them.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the maintenance loop has stopped.
func (b *Bridge) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}
