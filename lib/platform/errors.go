// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/netutil"
)

// Kind classifies a platform failure by what the caller should do.
type Kind int

const (
	// KindUnknown is an unclassified failure. Not retried.
	KindUnknown Kind = iota
	// KindTransient is a network failure, timeout, 5xx, or 429.
	KindTransient
	// KindPermission means the bot lacks the rights for the call.
	KindPermission
	// KindNotFound means the channel, chat, or user does not exist.
	KindNotFound
	// KindInvalid means the platform rejected the request itself.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrTransient  = errors.New("platform: transient failure")
	ErrPermission = errors.New("platform: permission denied")
	ErrNotFound   = errors.New("platform: not found")
)

// Error is a classified adapter failure.
type Error struct {
	// Platform names the adapter ("matrix", "telegram").
	Platform string
	Op       string
	Kind     Kind

	// StatusCode is the HTTP or API status, when there was one.
	StatusCode int

	// RetryAfter is the platform's requested delay for rate-limit
	// responses. Zero when unspecified.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: %s (status %d): %v", e.Platform, e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Platform, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransient) and friends match by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermission:
		return e.Kind == KindPermission
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// Classify returns the Kind of err. Errors that did not come through
// an adapter are classified by their transport failure, if any.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var platformErr *Error
	if errors.As(err, &platformErr) {
		return platformErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if netutil.IsTransient(err) {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

// RetryAfterHint returns the delay the platform asked for, or zero.
func RetryAfterHint(err error) time.Duration {
	var platformErr *Error
	if errors.As(err, &platformErr) {
		return platformErr.RetryAfter
	}
	return 0
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(code int) Kind {
	switch {
	case netutil.IsTransientStatus(code):
		return KindTransient
	case code == 401 || code == 403:
		return KindPermission
	case code == 404 || code == 410:
		return KindNotFound
	case code >= 400 && code < 500:
		return KindInvalid
	}
	return KindUnknown
}
