// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
)

// ErrStorageConnectivity marks an operation that kept failing with a
// transient storage condition until its retries ran out.
var ErrStorageConnectivity = errors.New("storage connectivity")

// RetryPolicy bounds retries of transient storage failures.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Default 5.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the backoff ceiling before the second attempt; it
	// doubles per attempt up to MaxDelay. Defaults 50ms and 2s.
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	return p
}

// IsTransient reports whether err is a SQLite condition worth retrying:
// busy, locked, I/O error, or cannot open.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked, sqlite.ResultIOErr, sqlite.ResultCantOpen:
		return true
	}
	return false
}

// IsConstraint reports whether err is a constraint violation (unique,
// check, not null).
func IsConstraint(err error) bool {
	return err != nil && sqlite.ErrCode(err).ToPrimary() == sqlite.ResultConstraint
}

// Retry calls fn until it succeeds, returns an error transient rejects,
// ctx ends, or policy.MaxAttempts is reached. Between attempts it waits
// a uniformly random duration up to an exponentially growing ceiling.
// Exhaustion wraps the last error together with ErrStorageConnectivity.
func Retry(ctx context.Context, policy RetryPolicy, clk clock.Clock, logger *slog.Logger, transient func(error) bool, fn func() error) error {
	policy = policy.withDefaults()
	ceiling := policy.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		delay := time.Duration(rand.Int64N(int64(ceiling)) + 1)
		logger.Warn("transient storage error, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("sqlitepool: retry abandoned: %w", errors.Join(ctx.Err(), err))
		case <-clk.After(delay):
		}

		ceiling *= 2
		if ceiling > policy.MaxDelay {
			ceiling = policy.MaxDelay
		}
	}
	return fmt.Errorf("sqlitepool: %w after %d attempts: %w", ErrStorageConnectivity, policy.MaxAttempts, err)
}
