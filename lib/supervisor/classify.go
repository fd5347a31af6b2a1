// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/ticketbridge/lib/netutil"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/ratelimit"
	"github.com/bureau-foundation/ticketbridge/lib/sqlitepool"
)

// Classification is the coarse origin of a fault.
type Classification string

const (
	ClassMedia    Classification = "media"
	ClassPlatform Classification = "platform"
	ClassStorage  Classification = "storage"
	ClassOther    Classification = "other"
)

// mediaFailure is implemented by errors from rendering or fetching
// message content.
type mediaFailure interface {
	MediaFailure() bool
}

// Classify places err into a Classification.
func Classify(err error) Classification {
	if err == nil {
		return ClassOther
	}
	var media mediaFailure
	if errors.As(err, &media) && media.MediaFailure() {
		return ClassMedia
	}
	if errors.Is(err, sqlitepool.ErrStorageConnectivity) || sqlitepool.IsTransient(err) {
		return ClassStorage
	}
	var platformErr *platform.Error
	if errors.As(err, &platformErr) || errors.Is(err, ratelimit.ErrTimeout) || netutil.IsTransient(err) {
		return ClassPlatform
	}
	return ClassOther
}

// Fault is a failure handed to the supervisor.
type Fault struct {
	// Source names the goroutine or component that failed.
	Source string

	// Err is the reported error. For a panic it wraps the panic value.
	Err error

	// Stack is set for panics.
	Stack []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("supervisor: fault in %s: %v", f.Source, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes a panicked error value to errors.Is and errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
