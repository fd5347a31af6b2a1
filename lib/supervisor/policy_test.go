// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		state       RestartState
		wantRestart bool
		wantBackoff time.Duration
		wantReason  string
	}{
		{
			name:        "first crash",
			state:       RestartState{},
			wantRestart: true,
			wantBackoff: time.Second,
		},
		{
			name: "rapid crash doubles",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Second), CurrentBackoff: 4 * time.Second,
				AttemptsThisHour: 2, HourWindowResetAt: now.Add(30 * time.Minute),
			},
			wantRestart: true,
			wantBackoff: 8 * time.Second,
		},
		{
			name: "doubling is capped",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Second), CurrentBackoff: 4 * time.Minute,
				AttemptsThisHour: 2, HourWindowResetAt: now.Add(30 * time.Minute),
			},
			wantRestart: true,
			wantBackoff: 5 * time.Minute,
		},
		{
			name: "spaced crash resets",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Minute), CurrentBackoff: 2 * time.Minute,
				AttemptsThisHour: 2, HourWindowResetAt: now.Add(30 * time.Minute),
			},
			wantRestart: true,
			wantBackoff: time.Second,
		},
		{
			name: "rapid crash at cap is suppressed",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Second), CurrentBackoff: 5 * time.Minute,
				AttemptsThisHour: 3, HourWindowResetAt: now.Add(30 * time.Minute),
			},
			wantReason: "crash loop with backoff at its cap",
		},
		{
			name: "hourly limit",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Minute), CurrentBackoff: time.Second,
				AttemptsThisHour: 10, HourWindowResetAt: now.Add(time.Minute),
			},
			wantReason: "hourly restart limit reached",
		},
		{
			name: "hour window resets",
			state: RestartState{
				LastRestartAt: now.Add(-10 * time.Minute), CurrentBackoff: time.Second,
				AttemptsThisHour: 10, HourWindowResetAt: now,
			},
			wantRestart: true,
			wantBackoff: time.Second,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			next, decision := test.state.Next(policy, now)
			if decision.Restart != test.wantRestart {
				t.Fatalf("Restart = %v, want %v (%+v)", decision.Restart, test.wantRestart, decision)
			}
			if !test.wantRestart {
				if decision.Reason != test.wantReason {
					t.Errorf("Reason = %q, want %q", decision.Reason, test.wantReason)
				}
				if next.AttemptCount != test.state.AttemptCount || next.AttemptsThisHour != test.state.AttemptsThisHour {
					t.Errorf("suppressed restart changed counters: %+v", next)
				}
				return
			}
			if decision.Backoff != test.wantBackoff || next.CurrentBackoff != test.wantBackoff {
				t.Errorf("backoff = %v (state %v), want %v", decision.Backoff, next.CurrentBackoff, test.wantBackoff)
			}
			if want := now.Add(test.wantBackoff); !next.LastRestartAt.Equal(want) {
				t.Errorf("LastRestartAt = %v, want %v", next.LastRestartAt, want)
			}
			if next.AttemptCount != test.state.AttemptCount+1 {
				t.Errorf("AttemptCount = %d", next.AttemptCount)
			}
		})
	}
}

func TestNextCrashLoopSequence(t *testing.T) {
	policy := Policy{BaseBackoff: time.Second, MaxBackoff: 8 * time.Second, RapidWindow: time.Minute, MaxAttemptsPerHour: 100}
	now := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

	var state RestartState
	var backoffs []time.Duration
	for range 6 {
		var decision Decision
		state, decision = state.Next(policy, now)
		if !decision.Restart {
			break
		}
		backoffs = append(backoffs, decision.Backoff)
		now = now.Add(decision.Backoff + time.Second)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(backoffs) != len(want) {
		t.Fatalf("backoffs = %v, want %v then suppression", backoffs, want)
	}
	for i := range want {
		if backoffs[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, backoffs[i], want[i])
		}
	}
}

func TestNextDefaultPolicyEscalatesToCap(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

	// Each relaunched process crashes five seconds after it starts.
	var state RestartState
	var backoffs []time.Duration
	var last Decision
	for range 20 {
		state, last = state.Next(policy, now)
		if !last.Restart {
			break
		}
		backoffs = append(backoffs, last.Backoff)
		now = now.Add(last.Backoff + 5*time.Second)
	}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second, 128 * time.Second,
		256 * time.Second, 5 * time.Minute,
	}
	if len(backoffs) != len(want) {
		t.Fatalf("backoffs = %v, want %v then suppression", backoffs, want)
	}
	for i := range want {
		if backoffs[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, backoffs[i], want[i])
		}
	}
	if last.Restart {
		t.Fatalf("expected suppression after reaching the cap, got %+v", last)
	}
}

func TestNextCrashLoopAtCapSuppressedAfterLongBackoff(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttemptsPerHour = 100
	now := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

	// A restart with a four minute backoff relaunches at now+4m. A crash
	// ten seconds after that relaunch is rapid even though the previous
	// fault was more than a RapidWindow ago.
	state, decision := RestartState{
		LastRestartAt: now.Add(-time.Second), CurrentBackoff: 4 * time.Minute,
		AttemptsThisHour: 1, HourWindowResetAt: now.Add(time.Hour),
	}.Next(policy, now)
	if !decision.Restart || decision.Backoff != 5*time.Minute {
		t.Fatalf("decision = %+v, want restart after 5m", decision)
	}

	now = now.Add(decision.Backoff + 10*time.Second)
	_, decision = state.Next(policy, now)
	if decision.Restart {
		t.Fatalf("decision = %+v, want suppression", decision)
	}
	if decision.Reason != "crash loop with backoff at its cap" {
		t.Errorf("Reason = %q", decision.Reason)
	}
}
