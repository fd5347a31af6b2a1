// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Time stands still until Advance.
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending deadlineHeap
	changed *sync.Cond
}

// NewFake returns a Fake whose Now is start.
func NewFake(start time.Time) *Fake {
	fake := &Fake{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// scheduled is one pending After, AfterFunc, Sleep, or ticker.
type scheduled struct {
	when   time.Time
	seq    uint64
	period time.Duration
	ch     chan time.Time
	fn     func()
	index  int
	done   bool
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.pushLocked(&scheduled{when: f.now.Add(d), ch: ch})
	return ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		go fn()
		return &Timer{stop: func() bool { return false }}
	}
	f.mu.Lock()
	entry := &scheduled{when: f.now.Add(d), fn: fn}
	f.pushLocked(entry)
	f.mu.Unlock()
	return &Timer{stop: func() bool { return f.cancel(entry) }}
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker with non-positive interval")
	}
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	entry := &scheduled{when: f.now.Add(d), period: d, ch: ch}
	f.pushLocked(entry)
	f.mu.Unlock()
	return &Ticker{C: ch, stop: func() { f.cancel(entry) }}
}

func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// Advance moves time forward by d, firing everything that falls due in
// deadline order. AfterFunc callbacks run on the calling goroutine with
// the Fake unlocked, so they may schedule further timers; a timer they
// schedule inside the advanced window also fires before Advance returns.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for len(f.pending) > 0 && !f.pending[0].when.After(target) {
		entry := f.pending[0]
		if entry.when.After(f.now) {
			f.now = entry.when
		}
		if entry.period > 0 {
			entry.when = entry.when.Add(entry.period)
			heap.Fix(&f.pending, entry.index)
		} else {
			heap.Pop(&f.pending)
			entry.done = true
		}
		fired := f.now
		f.mu.Unlock()
		if entry.fn != nil {
			entry.fn()
		} else {
			select {
			case entry.ch <- fired:
			default:
			}
		}
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// WaitForTimers blocks until at least n timers are pending. Use it to
// wait for a goroutine under test to register its timer before calling
// Advance.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.pending) < n {
		f.changed.Wait()
	}
}

// Pending returns the number of registered timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Fake) pushLocked(entry *scheduled) {
	f.seq++
	entry.seq = f.seq
	heap.Push(&f.pending, entry)
	f.changed.Broadcast()
}

func (f *Fake) cancel(entry *scheduled) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.done {
		return false
	}
	entry.done = true
	heap.Remove(&f.pending, entry.index)
	f.changed.Broadcast()
	return true
}

// deadlineHeap orders by deadline, then registration order.
type deadlineHeap []*scheduled

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	entry := x.(*scheduled)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}
