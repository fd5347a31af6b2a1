// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
)

// Category names a class of outbound platform call. Each category has
// its own bucket configuration.
type Category string

const (
	Global        Category = "global"
	Send          Category = "send"
	ChannelCreate Category = "channel_create"
	ChannelEdit   Category = "channel_edit"
	Fetch         Category = "fetch"
)

// ErrTimeout is returned by Acquire when no token became available
// within the configured ceiling.
var ErrTimeout = errors.New("ratelimit: timed out waiting for token")

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("ratelimit: limiter closed")

// Limit is the bucket shape for one category: Capacity tokens, refilled
// continuously so that a full bucket's worth arrives every Interval.
type Limit struct {
	Capacity int           `yaml:"capacity"`
	Interval time.Duration `yaml:"interval"`
}

// perMillisecond returns the refill rate in tokens per millisecond.
func (l Limit) perMillisecond() float64 {
	return float64(l.Capacity) / float64(l.Interval.Milliseconds())
}

// DefaultLimits returns the production bucket shapes. The channel edit
// limit mirrors the staff platform's two-renames-per-ten-minutes rule.
func DefaultLimits() map[Category]Limit {
	return map[Category]Limit{
		Global:        {Capacity: 50, Interval: time.Second},
		Send:          {Capacity: 5, Interval: 5 * time.Second},
		ChannelCreate: {Capacity: 2, Interval: 10 * time.Second},
		ChannelEdit:   {Capacity: 2, Interval: 10 * time.Minute},
		Fetch:         {Capacity: 10, Interval: time.Second},
	}
}

// DefaultTimeout is the ceiling on a single Acquire.
const DefaultTimeout = 30 * time.Second

// Config holds Limiter parameters. All fields are optional.
type Config struct {
	// Limits overrides DefaultLimits per category. Categories missing
	// from the map keep their default.
	Limits map[Category]Limit

	// Timeout bounds how long Acquire waits across all the buckets it
	// needs. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Clock drives refill scheduling and timeouts. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives queueing and timeout events. Defaults to a
	// discard logger.
	Logger *slog.Logger
}

// Limiter grants tokens from per-category, optionally per-resource,
// token buckets. Waiters are served strictly in arrival order within a
// bucket.
type Limiter struct {
	limits  map[Category]Limit
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	closed  bool
}

type bucketKey struct {
	category   Category
	resourceID string
}

func (k bucketKey) String() string {
	if k.resourceID == "" {
		return string(k.category)
	}
	return string(k.category) + "/" + k.resourceID
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limits := DefaultLimits()
	for category, limit := range cfg.Limits {
		if limit.Capacity > 0 && limit.Interval > 0 {
			limits[category] = limit
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Limiter{
		limits:  limits,
		timeout: timeout,
		clock:   clk,
		logger:  logger,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Acquire takes one token from the (category, resourceID) bucket and,
// for every category other than Global, one token from the global
// bucket. An empty resourceID selects the category-wide bucket.
//
// Acquire blocks until both tokens are granted, ctx is done, or the
// limiter's timeout elapses. On failure no token is left consumed.
func (l *Limiter) Acquire(ctx context.Context, category Category, resourceID string) error {
	if _, ok := l.limits[category]; !ok {
		return fmt.Errorf("ratelimit: unknown category %q", category)
	}

	deadline := &lazyDeadline{clock: l.clock, after: l.timeout}

	primary, err := l.bucketFor(bucketKey{category, resourceID})
	if err != nil {
		return err
	}
	if err := l.take(ctx, primary, deadline); err != nil {
		return err
	}
	if category == Global {
		return nil
	}

	global, err := l.bucketFor(bucketKey{category: Global})
	if err != nil {
		primary.refund()
		return err
	}
	if err := l.take(ctx, global, deadline); err != nil {
		primary.refund()
		return err
	}
	return nil
}

// Snapshot describes a bucket's state at a point in time.
type Snapshot struct {
	Tokens   float64
	Capacity float64
	Waiting  int
}

// Snapshot returns the current state of a bucket, refilled to now. The
// second result is false if the bucket has never been used.
func (l *Limiter) Snapshot(category Category, resourceID string) (Snapshot, bool) {
	l.mu.Lock()
	b, ok := l.buckets[bucketKey{category, resourceID}]
	l.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.clock.Now())
	return Snapshot{Tokens: b.tokens, Capacity: b.capacity, Waiting: len(b.queue)}, true
}

// Prune drops per-resource buckets that are full, have no waiters, and
// have not been touched for idleFor. Category-wide buckets are kept.
// Returns the number of buckets dropped.
func (l *Limiter) Prune(idleFor time.Duration) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for key, b := range l.buckets {
		if key.resourceID == "" {
			continue
		}
		b.mu.Lock()
		b.refillLocked(now)
		idle := len(b.queue) == 0 && b.tokens >= b.capacity && now.Sub(b.lastUsed) >= idleFor
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Close rejects every queued waiter with ErrClosed and stops refill
// timers. Subsequent Acquire calls fail with ErrClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	l.closed = true
	buckets := make([]*bucket, 0, len(l.buckets))
	for _, b := range l.buckets {
		buckets = append(buckets, b)
	}
	l.mu.Unlock()

	for _, b := range buckets {
		b.shutdown()
	}
}

func (l *Limiter) bucketFor(key bucketKey) (*bucket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	b, ok := l.buckets[key]
	if !ok {
		limit := l.limits[key.category]
		now := l.clock.Now()
		b = &bucket{
			key:      key,
			capacity: float64(limit.Capacity),
			tokens:   float64(limit.Capacity),
			rate:     limit.perMillisecond(),
			last:     now,
			lastUsed: now,
			clock:    l.clock,
		}
		l.buckets[key] = b
	}
	return b, nil
}

// lazyDeadline starts the Acquire timeout on the first wait, so calls
// served from available tokens never arm a timer.
type lazyDeadline struct {
	clock clock.Clock
	after time.Duration
	ch    <-chan time.Time
}

func (d *lazyDeadline) C() <-chan time.Time {
	if d.ch == nil {
		d.ch = d.clock.After(d.after)
	}
	return d.ch
}

func (l *Limiter) take(ctx context.Context, b *bucket, deadline *lazyDeadline) error {
	w, ok := b.tryTake()
	if ok {
		return nil
	}
	if w == nil {
		return ErrClosed
	}
	l.logger.Debug("rate limit wait",
		"bucket", b.key.String(),
		"position", w.position,
	)

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		b.abandon(w)
		return fmt.Errorf("ratelimit: %s: %w", b.key, ctx.Err())
	case <-deadline.C():
		b.abandon(w)
		l.logger.Warn("rate limit timeout",
			"bucket", b.key.String(),
			"timeout", l.timeout,
		)
		return fmt.Errorf("ratelimit: %s: %w", b.key, ErrTimeout)
	}
}

// bucket is one token bucket with its FIFO of waiters. A single
// clock timer drains the queue as tokens accrue.
type bucket struct {
	key      bucketKey
	capacity float64
	rate     float64
	clock    clock.Clock

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	lastUsed time.Time
	queue    []*waiter
	timer    *clock.Timer
	closed   bool
}

type waiter struct {
	ready    chan struct{}
	granted  bool
	err      error
	position int
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := float64(now.Sub(b.last)) / float64(time.Millisecond)
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
		b.last = now
	}
}

// tokenEpsilon absorbs floating-point drift in refill arithmetic so a
// timer armed for exactly one token's worth of refill finds it.
const tokenEpsilon = 1e-9

func (b *bucket) hasTokenLocked() bool { return b.tokens+tokenEpsilon >= 1 }

func (b *bucket) consumeLocked() { b.tokens = math.Max(0, b.tokens-1) }

// tryTake consumes a token if one is available and nobody is queued
// ahead. Otherwise it enqueues and returns the new waiter. A nil waiter
// with ok false means the bucket is closed.
func (b *bucket) tryTake() (*waiter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	now := b.clock.Now()
	b.refillLocked(now)
	b.lastUsed = now
	if len(b.queue) == 0 && b.hasTokenLocked() {
		b.consumeLocked()
		return nil, true
	}
	w := &waiter{ready: make(chan struct{}), position: len(b.queue) + 1}
	b.queue = append(b.queue, w)
	b.scheduleLocked()
	return w, false
}

// scheduleLocked arms the drain timer for the moment the head waiter's
// token will exist.
func (b *bucket) scheduleLocked() {
	if b.timer != nil || len(b.queue) == 0 || b.closed {
		return
	}
	missing := 1 - b.tokens
	wait := time.Duration(math.Ceil(missing/b.rate)) * time.Millisecond
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	b.timer = b.clock.AfterFunc(wait, b.drain)
}

// drain grants tokens to queued waiters in order, then re-arms the
// timer if anyone is still waiting.
func (b *bucket) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.closed {
		return
	}
	b.refillLocked(b.clock.Now())
	for len(b.queue) > 0 && b.hasTokenLocked() {
		w := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.consumeLocked()
		w.granted = true
		close(w.ready)
	}
	b.scheduleLocked()
}

// abandon removes a waiter that gave up. If the token was granted in
// the meantime it is returned to the bucket.
func (b *bucket) abandon(w *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.granted {
		b.tokens = math.Min(b.capacity, b.tokens+1)
		if len(b.queue) > 0 && b.timer == nil {
			b.timer = b.clock.AfterFunc(time.Millisecond, b.drain)
		}
		return
	}
	for i, queued := range b.queue {
		if queued == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			break
		}
	}
}

func (b *bucket) refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = math.Min(b.capacity, b.tokens+1)
}

func (b *bucket) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	for _, w := range b.queue {
		w.err = ErrClosed
		close(w.ready)
	}
	b.queue = nil
}
