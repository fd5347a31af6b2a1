// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"time"
)

// Policy governs restart decisions.
type Policy struct {
	// BaseBackoff is the wait before a restart that is not part of a
	// crash loop.
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// MaxBackoff caps the doubling on rapid restarts.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// RapidWindow is how soon after the previous relaunch a crash
	// counts as rapid. The relaunch happens once the backoff has
	// elapsed, so long backoffs do not make a crash loop look spaced.
	RapidWindow time.Duration `yaml:"rapid_window"`

	// MaxAttemptsPerHour bounds restarts within one hour window.
	MaxAttemptsPerHour int `yaml:"max_attempts_per_hour"`
}

// DefaultPolicy returns the production restart policy.
func DefaultPolicy() Policy {
	return Policy{
		BaseBackoff:        time.Second,
		MaxBackoff:         5 * time.Minute,
		RapidWindow:        time.Minute,
		MaxAttemptsPerHour: 10,
	}
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = defaults.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	if p.RapidWindow <= 0 {
		p.RapidWindow = defaults.RapidWindow
	}
	if p.MaxAttemptsPerHour <= 0 {
		p.MaxAttemptsPerHour = defaults.MaxAttemptsPerHour
	}
	return p
}

const hourWindow = time.Hour

// RestartState is the persisted restart bookkeeping.
type RestartState struct {
	AttemptCount int `json:"attempt_count"`

	// LastRestartAt is when the most recent restart relaunched the
	// process: the fault time plus its backoff.
	LastRestartAt     time.Time     `json:"last_restart_at"`
	CurrentBackoff    time.Duration `json:"current_backoff"`
	AttemptsThisHour  int           `json:"attempts_this_hour"`
	HourWindowResetAt time.Time     `json:"hour_window_reset_at"`
}

// Decision is the outcome of consulting the restart policy.
type Decision struct {
	Restart bool          `json:"restart"`
	Backoff time.Duration `json:"backoff"`

	// Reason explains a suppressed restart.
	Reason string `json:"reason,omitempty"`
}

// Next applies policy to a fault at now. It returns the updated state
// and the decision. A suppressed restart leaves the attempt counters
// alone.
func (s RestartState) Next(policy Policy, now time.Time) (RestartState, Decision) {
	policy = policy.withDefaults()

	if s.HourWindowResetAt.IsZero() || !now.Before(s.HourWindowResetAt) {
		s.AttemptsThisHour = 0
		s.HourWindowResetAt = now.Add(hourWindow)
	}
	if s.AttemptsThisHour >= policy.MaxAttemptsPerHour {
		return s, Decision{Reason: "hourly restart limit reached"}
	}

	rapid := !s.LastRestartAt.IsZero() && now.Sub(s.LastRestartAt) < policy.RapidWindow
	if rapid && s.CurrentBackoff >= policy.MaxBackoff {
		return s, Decision{Reason: "crash loop with backoff at its cap"}
	}

	backoff := policy.BaseBackoff
	if rapid && s.CurrentBackoff > 0 {
		backoff = min(s.CurrentBackoff*2, policy.MaxBackoff)
	}

	s.AttemptCount++
	s.AttemptsThisHour++
	s.LastRestartAt = now.Add(backoff)
	s.CurrentBackoff = backoff
	return s, Decision{Restart: true, Backoff: backoff}
}
