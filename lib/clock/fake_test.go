// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAfter(t *testing.T) {
	fake := NewFake(start)
	ch := fake.After(2 * time.Second)

	fake.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	fake.Advance(time.Second)
	select {
	case got := <-ch:
		if want := start.Add(2 * time.Second); !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := NewFake(start)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should deliver immediately")
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fake.Pending())
	}
}

func TestFakeAfterFuncOrderAndNow(t *testing.T) {
	fake := NewFake(start)
	var order []int
	var seen []time.Time
	for i, delay := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		fake.AfterFunc(delay, func() {
			order = append(order, i)
			seen = append(seen, fake.Now())
		})
	}

	fake.Advance(5 * time.Second)

	wantOrder := []int{1, 2, 0}
	for i := range wantOrder {
		if order[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", order, wantOrder)
		}
	}
	for i, delay := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		if want := start.Add(delay); !seen[i].Equal(want) {
			t.Errorf("callback %d saw Now() = %v, want %v", i, seen[i], want)
		}
	}
	if got, want := fake.Now(), start.Add(5*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfterFuncRescheduleWithinAdvance(t *testing.T) {
	fake := NewFake(start)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			fake.AfterFunc(time.Second, tick)
		}
	}
	fake.AfterFunc(time.Second, tick)

	fake.Advance(10 * time.Second)
	if count != 3 {
		t.Errorf("callback ran %d times, want 3", count)
	}
}

func TestFakeTimerStop(t *testing.T) {
	fake := NewFake(start)
	called := false
	timer := fake.AfterFunc(time.Second, func() { called = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false on a pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	fake.Advance(time.Minute)
	if called {
		t.Error("stopped timer fired")
	}
}

func TestFakeTicker(t *testing.T) {
	fake := NewFake(start)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		fake.Advance(time.Second)
		select {
		case got := <-ticker.C:
			if want := start.Add(time.Duration(i) * time.Second); !got.Equal(want) {
				t.Errorf("tick %d at %v, want %v", i, got, want)
			}
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}

	ticker.Stop()
	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Error("tick delivered after Stop")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := NewFake(start)
	done := make(chan struct{})
	go func() {
		fake.Sleep(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
