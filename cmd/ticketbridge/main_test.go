// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/bureau-foundation/ticketbridge/lib/config"
	"github.com/bureau-foundation/ticketbridge/lib/ledger"
	"github.com/bureau-foundation/ticketbridge/lib/ratelimit"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestRunUsage(t *testing.T) {
	var output bytes.Buffer
	if err := run(nil, &output); err != nil {
		t.Fatalf("run() = %v", err)
	}
	for _, name := range commandOrder {
		if !strings.Contains(output.String(), name) {
			t.Errorf("usage does not list %s:\n%s", name, output.String())
		}
	}
	if len(commandOrder) != len(commands) {
		t.Errorf("commandOrder has %d entries, commands has %d", len(commandOrder), len(commands))
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run([]string{"frobnicate"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), `unknown command "frobnicate"`) {
		t.Errorf("run() = %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketbridge.yaml")
	if err := os.WriteFile(path, []byte("environment: development\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run([]string{"stats", "--config", path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("run() = %v", err)
	}
}

func TestStatsEndToEnd(t *testing.T) {
	directory := t.TempDir()
	database := filepath.Join(directory, "ticketbridge.db")
	path := filepath.Join(directory, "ticketbridge.yaml")
	content := `
environment: development
paths:
  state_dir: ` + directory + `
  database: ` + database + `
matrix:
  homeserver_url: https://matrix.example.org
  user_id: "@support:example.org"
log:
  level: error
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	env := &environment{cfg: cfg, logger: cfg.Log.NewLogger(&bytes.Buffer{}), stdout: &bytes.Buffer{}}
	db, earnings, err := openLedger(env)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, payment := range []ledger.PaymentRequest{
		{TicketID: 1, WorkerID: "@alice:example.org", Amount: 40},
		{TicketID: 2, WorkerID: "@bob:example.org", Amount: 90},
		{TicketID: 3, WorkerID: "@alice:example.org", Amount: 30},
	} {
		if _, err := earnings.RecordPayment(ctx, payment); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
	}
	db.Close()

	var output bytes.Buffer
	if err := run([]string{"stats", "--config", path, "--period", "all"}, &output); err != nil {
		t.Fatalf("run(stats) = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected heading, two workers, and total; got:\n%s", output.String())
	}
	if !strings.Contains(lines[1], "@bob:example.org") || !strings.Contains(lines[1], "90") {
		t.Errorf("expected bob first, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "@alice:example.org") || !strings.Contains(lines[2], "70") {
		t.Errorf("expected alice second, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "160") || !strings.Contains(lines[3], "3 tickets") {
		t.Errorf("unexpected total line %q", lines[3])
	}

	output.Reset()
	if err := run([]string{"reconcile", "--config", path}, &output); err != nil {
		t.Fatalf("run(reconcile) = %v", err)
	}
	if !strings.Contains(output.String(), "All worker summaries match") {
		t.Errorf("unexpected reconcile output %q", output.String())
	}
}

func TestStatsRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		period    string
		from, to  string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{name: "week", period: "week", wantStart: now.AddDate(0, 0, -7)},
		{name: "all", period: "all"},
		{name: "unknown period", period: "decade", wantErr: true},
		{
			name: "custom range", from: "2026-03-01", to: "2026-03-10",
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "open custom range ends today", from: "2026-03-10",
			wantStart: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{name: "to without from", period: "week", to: "2026-03-10", wantErr: true},
		{name: "reversed", from: "2026-03-10", to: "2026-03-01", wantErr: true},
		{name: "malformed", from: "March 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, _, err := statsRange(tt.period, tt.from, tt.to, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got range %+v", window)
				}
				return
			}
			if err != nil {
				t.Fatalf("statsRange: %v", err)
			}
			if !window.Start.Equal(tt.wantStart) || !window.End.Equal(tt.wantEnd) {
				t.Errorf("range = [%s, %s), want [%s, %s)", window.Start, window.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestPrintRankingsEmpty(t *testing.T) {
	var output bytes.Buffer
	printRankings(&output, "period: week", nil)
	if !strings.Contains(output.String(), "no confirmed payments") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestPrintDrifts(t *testing.T) {
	var output bytes.Buffer
	printDrifts(&output, []ledger.Drift{{WorkerID: "@alice:example.org", StoredEarnings: 10, ComputedEarnings: 70, StoredTickets: 1, ComputedTickets: 2}})
	if !strings.Contains(output.String(), "earnings 10 -> 70, tickets 1 -> 2") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestRateLimits(t *testing.T) {
	if rateLimits(nil) != nil {
		t.Error("expected nil overrides for empty config")
	}
	limits := rateLimits(map[string]config.LimitConfig{"send": {Capacity: 2, Interval: time.Second}})
	if got := limits[ratelimit.Send]; got.Capacity != 2 || got.Interval != time.Second {
		t.Errorf("send limit = %+v", got)
	}
}
