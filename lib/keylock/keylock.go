// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keylock provides per-key mutual exclusion for keys that come
// and go, such as worker IDs and ticket IDs.
package keylock

import "sync"

// Map hands out one mutex per key and forgets keys nobody holds. The
// zero value is ready to use.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*heldLock
}

type heldLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*heldLock)
	}
	held, ok := m.locks[key]
	if !ok {
		held = &heldLock{}
		m.locks[key] = held
	}
	held.refs++
	m.mu.Unlock()

	held.Lock()
	return func() {
		held.Unlock()
		m.mu.Lock()
		held.refs--
		if held.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
