// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source for ticketbridge.
//
// Everything that waits (rate-limit refill scheduling, pool sweeps,
// relay backoff, restart delays, period boundaries in ledger queries)
// takes a [Clock] instead of calling the time package. Production wires
// [Real]; tests wire [NewFake] and move time explicitly:
//
//	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
//	limiter := ratelimit.New(ratelimit.Config{Clock: fake})
//	go limiter.Acquire(ctx, ratelimit.Send, "room-1")
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
//
// [Fake.Advance] fires due timers in deadline order and moves Now to
// each deadline before firing it, so callbacks observe the time at which
// they were scheduled to run.
package clock
