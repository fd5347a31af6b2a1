// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, limits map[Category]Limit) (*Limiter, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	limiter := New(Config{Limits: limits, Clock: fake})
	t.Cleanup(limiter.Close)
	return limiter, fake
}

func TestAcquireImmediate(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(ctx, Send, "room-1"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}

	snapshot, ok := limiter.Snapshot(Send, "room-1")
	if !ok {
		t.Fatal("Snapshot: bucket not found")
	}
	if snapshot.Tokens != 0 {
		t.Errorf("send tokens = %v, want 0", snapshot.Tokens)
	}
	global, _ := limiter.Snapshot(Global, "")
	if global.Tokens != 45 {
		t.Errorf("global tokens = %v, want 45", global.Tokens)
	}
}

func TestAcquireUnknownCategory(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)
	if err := limiter.Acquire(context.Background(), Category("bogus"), ""); err == nil {
		t.Fatal("Acquire with unknown category succeeded")
	}
}

func TestAcquireFIFO(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		Send: {Capacity: 1, Interval: time.Second},
	})
	ctx := context.Background()

	if err := limiter.Acquire(ctx, Send, "room-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		go func() {
			if err := limiter.Acquire(ctx, Send, "room-1"); err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			order <- i
		}()
		// One drain timer plus one deadline per waiter.
		fake.WaitForTimers(1 + i)
	}

	for want := 1; want <= 3; want++ {
		fake.Advance(time.Second)
		got := testutil.RequireReceive(t, order, 5*time.Second, "waiter %d", want)
		if got != want {
			t.Fatalf("granted waiter %d, want %d", got, want)
		}
	}
}

func TestWaiterGrantedAfterOneTokenInterval(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		Send: {Capacity: 5, Interval: time.Second},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(ctx, Send, "room-1"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}

	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, Send, "room-1") }()
	fake.WaitForTimers(2)

	// Five tokens per second refill one token every 200ms.
	fake.Advance(199 * time.Millisecond)
	testutil.RequireNoReceive(t, result, 50*time.Millisecond, "sixth send granted before 200ms")

	fake.Advance(time.Millisecond)
	if err := testutil.RequireReceive(t, result, 5*time.Second, "sixth send at 200ms"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		ChannelEdit: {Capacity: 1, Interval: 10 * time.Minute},
	})
	ctx := context.Background()

	if err := limiter.Acquire(ctx, ChannelEdit, "room-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, ChannelEdit, "room-1") }()
	fake.WaitForTimers(2)
	fake.Advance(DefaultTimeout)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for timeout")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire error = %v, want ErrTimeout", err)
	}

	snapshot, _ := limiter.Snapshot(ChannelEdit, "room-1")
	if snapshot.Waiting != 0 {
		t.Errorf("Waiting = %d after timeout, want 0", snapshot.Waiting)
	}
	if snapshot.Tokens < 0 || snapshot.Tokens >= 1 {
		t.Errorf("Tokens = %v, want in [0,1)", snapshot.Tokens)
	}
}

func TestSendWaitsForGlobal(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		Global: {Capacity: 2, Interval: time.Second},
	})
	ctx := context.Background()

	for _, room := range []string{"room-a", "room-b"} {
		if err := limiter.Acquire(ctx, Send, room); err != nil {
			t.Fatalf("Acquire %s: %v", room, err)
		}
	}

	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, Send, "room-c") }()
	fake.WaitForTimers(2)

	global, _ := limiter.Snapshot(Global, "")
	if global.Waiting != 1 {
		t.Fatalf("global Waiting = %d, want 1", global.Waiting)
	}
	room, _ := limiter.Snapshot(Send, "room-c")
	if room.Tokens != 4 {
		t.Errorf("room-c tokens = %v, want 4 while waiting on global", room.Tokens)
	}

	fake.Advance(500 * time.Millisecond)
	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for global"); err != nil {
		t.Fatalf("Acquire room-c: %v", err)
	}
}

func TestGlobalTimeoutRefundsResourceToken(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		Global: {Capacity: 1, Interval: time.Hour},
		Send:   {Capacity: 2, Interval: time.Hour},
	})
	ctx := context.Background()

	if err := limiter.Acquire(ctx, Global, ""); err != nil {
		t.Fatalf("Acquire global: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, Send, "room-1") }()
	fake.WaitForTimers(2)
	fake.Advance(DefaultTimeout)

	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for timeout"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire error = %v, want ErrTimeout", err)
	}
	snapshot, _ := limiter.Snapshot(Send, "room-1")
	if snapshot.Tokens != 2 {
		t.Errorf("room tokens = %v, want 2 after refund", snapshot.Tokens)
	}
}

func TestAcquireContextCancel(t *testing.T) {
	limiter, fake := newTestLimiter(t, map[Category]Limit{
		Fetch: {Capacity: 1, Interval: time.Minute},
	})
	if err := limiter.Acquire(context.Background(), Fetch, ""); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, Fetch, "") }()
	fake.WaitForTimers(2)
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire error = %v, want context.Canceled", err)
	}
	snapshot, _ := limiter.Snapshot(Fetch, "")
	if snapshot.Waiting != 0 {
		t.Errorf("Waiting = %d after cancel, want 0", snapshot.Waiting)
	}
}

func TestRefillCappedAtCapacity(t *testing.T) {
	limiter, fake := newTestLimiter(t, nil)
	if err := limiter.Acquire(context.Background(), Fetch, ""); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	fake.Advance(time.Hour)
	snapshot, _ := limiter.Snapshot(Fetch, "")
	if snapshot.Tokens != snapshot.Capacity {
		t.Errorf("Tokens = %v, want capacity %v", snapshot.Tokens, snapshot.Capacity)
	}
}

func TestPrune(t *testing.T) {
	limiter, fake := newTestLimiter(t, nil)
	ctx := context.Background()
	for _, room := range []string{"room-a", "room-b"} {
		if err := limiter.Acquire(ctx, Send, room); err != nil {
			t.Fatalf("Acquire %s: %v", room, err)
		}
	}

	if dropped := limiter.Prune(time.Minute); dropped != 0 {
		t.Errorf("Prune right after use dropped %d, want 0", dropped)
	}

	fake.Advance(10 * time.Minute)
	if dropped := limiter.Prune(time.Minute); dropped != 2 {
		t.Errorf("Prune dropped %d, want 2", dropped)
	}
	if _, ok := limiter.Snapshot(Send, "room-a"); ok {
		t.Error("room-a bucket survived Prune")
	}
	if _, ok := limiter.Snapshot(Global, ""); !ok {
		t.Error("global bucket was pruned")
	}
}

func TestCloseRejectsWaiters(t *testing.T) {
	fake := clock.NewFake(epoch)
	limiter := New(Config{
		Limits: map[Category]Limit{ChannelCreate: {Capacity: 1, Interval: time.Hour}},
		Clock:  fake,
	})
	ctx := context.Background()
	if err := limiter.Acquire(ctx, ChannelCreate, ""); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- limiter.Acquire(ctx, ChannelCreate, "") }()
	fake.WaitForTimers(2)
	limiter.Close()

	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for close"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Acquire error = %v, want ErrClosed", err)
	}
	if err := limiter.Acquire(ctx, Fetch, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close = %v, want ErrClosed", err)
	}
}
