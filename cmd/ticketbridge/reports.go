// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ticketbridge/lib/ledger"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/transcript"
)

// openLedger opens the database for the offline subcommands.
func openLedger(env *environment) (*store.Store, *ledger.Ledger, error) {
	db, err := store.Open(store.Config{Path: env.cfg.Paths.Database, PoolSize: 1, Logger: env.logger})
	if err != nil {
		return nil, nil, err
	}
	earnings, err := ledger.New(ledger.Config{Pool: db.Pool(), Logger: env.logger})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, earnings, nil
}

func reconcileFlags(flagSet *pflag.FlagSet) func(context.Context, *environment) error {
	var worker string
	flagSet.StringVar(&worker, "worker", "", "reconcile only this worker")

	return func(ctx context.Context, env *environment) error {
		db, earnings, err := openLedger(env)
		if err != nil {
			return err
		}
		defer db.Close()

		var drifts []ledger.Drift
		if worker != "" {
			drift, err := earnings.Reconcile(ctx, worker)
			if err != nil {
				return err
			}
			if drift != nil {
				drifts = append(drifts, *drift)
			}
		} else if drifts, err = earnings.ReconcileAll(ctx); err != nil {
			return err
		}

		printDrifts(env.stdout, drifts)
		return nil
	}
}

func printDrifts(w io.Writer, drifts []ledger.Drift) {
	if len(drifts) == 0 {
		fmt.Fprintln(w, color.New(color.FgGreen).Sprint("All worker summaries match their entries."))
		return
	}
	fmt.Fprintln(w, color.New(color.FgYellow).Sprintf("Corrected %d worker summaries:", len(drifts)))
	for _, drift := range drifts {
		fmt.Fprintf(w, "  %-30s earnings %d -> %d, tickets %d -> %d\n",
			drift.WorkerID,
			drift.StoredEarnings, drift.ComputedEarnings,
			drift.StoredTickets, drift.ComputedTickets,
		)
	}
}

func statsFlags(flagSet *pflag.FlagSet) func(context.Context, *environment) error {
	var periodName, from, to, worker string
	flagSet.StringVar(&periodName, "period", "week", "reporting period: week, month, or all")
	flagSet.StringVar(&from, "from", "", "first day of a custom range (YYYY-MM-DD); overrides --period")
	flagSet.StringVar(&to, "to", "", "last day of a custom range (YYYY-MM-DD); defaults to today")
	flagSet.StringVar(&worker, "worker", "", "show one worker's totals instead of the rankings")

	return func(ctx context.Context, env *environment) error {
		db, earnings, err := openLedger(env)
		if err != nil {
			return err
		}
		defer db.Close()

		window, label, err := statsRange(periodName, from, to, time.Now())
		if err != nil {
			return err
		}

		if worker != "" {
			stats, err := earnings.WorkerStats(ctx, worker, window)
			if err != nil {
				return err
			}
			summary, err := earnings.WorkerEarningsSummary(ctx, worker)
			if err != nil {
				return err
			}
			printWorker(env.stdout, label, stats, summary)
			return nil
		}

		rankings, err := earnings.Rankings(ctx, window)
		if err != nil {
			return err
		}
		printRankings(env.stdout, label, rankings)
		return nil
	}
}

// statsRange resolves the stats flags to a ledger range and a heading.
func statsRange(periodName, from, to string, now time.Time) (ledger.Range, string, error) {
	if from == "" {
		if to != "" {
			return ledger.Range{}, "", fmt.Errorf("--to needs --from")
		}
		period, err := ledger.ParsePeriod(periodName)
		if err != nil {
			return ledger.Range{}, "", err
		}
		window, err := ledger.PeriodRange(period, now)
		return window, "period: " + string(period), err
	}

	start, err := time.ParseInLocation(time.DateOnly, from, now.Location())
	if err != nil {
		return ledger.Range{}, "", fmt.Errorf("--from: %w", err)
	}
	end := now
	if to != "" {
		if end, err = time.ParseInLocation(time.DateOnly, to, now.Location()); err != nil {
			return ledger.Range{}, "", fmt.Errorf("--to: %w", err)
		}
	}
	window, err := ledger.DateRange(start, end)
	if err != nil {
		return ledger.Range{}, "", err
	}
	return window, fmt.Sprintf("%s to %s", start.Format(time.DateOnly), end.Format(time.DateOnly)), nil
}

func printRankings(w io.Writer, label string, rankings []ledger.WorkerStats) {
	heading := color.New(color.Bold)
	fmt.Fprintln(w, heading.Sprintf("Worker rankings (%s)", label))
	if len(rankings) == 0 {
		fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint("  no confirmed payments"))
		return
	}
	var totalEarnings, totalTickets int64
	for i, stats := range rankings {
		rank := fmt.Sprintf("%3d.", i+1)
		if i == 0 {
			rank = color.New(color.FgHiYellow).Sprint(rank)
		}
		fmt.Fprintf(w, "%s %-30s %s  %d tickets\n",
			rank, stats.WorkerID, color.New(color.FgGreen).Sprintf("%8d", stats.Earnings), stats.Tickets)
		totalEarnings += stats.Earnings
		totalTickets += stats.Tickets
	}
	fmt.Fprintf(w, "     %-30s %8d  %d tickets\n", "total", totalEarnings, totalTickets)
}

func printWorker(w io.Writer, label string, stats ledger.WorkerStats, summary ledger.Summary) {
	fmt.Fprintln(w, color.New(color.Bold).Sprintf("%s (%s)", stats.WorkerID, label))
	fmt.Fprintf(w, "  earnings     %s\n", color.New(color.FgGreen).Sprint(stats.Earnings))
	fmt.Fprintf(w, "  tickets      %d\n", stats.Tickets)
	if stats.Adjustments != 0 {
		fmt.Fprintf(w, "  adjustments  %s\n", color.New(color.FgYellow).Sprintf("%+d", stats.Adjustments))
	}
	fmt.Fprintf(w, "  lifetime     %d from %d tickets\n", summary.TotalEarnings, summary.TotalTickets)
	if summary.LastEarningAt != nil {
		fmt.Fprintf(w, "  last paid    %s\n", summary.LastEarningAt.Local().Format(time.DateTime))
	}
}

func transcriptFlags(flagSet *pflag.FlagSet) func(context.Context, *environment) error {
	var output string
	flagSet.StringVarP(&output, "output", "o", "", "write the HTML document to this file instead of stdout")

	return func(ctx context.Context, env *environment) error {
		if len(env.args) != 1 {
			return fmt.Errorf("usage: ticketbridge transcript <ticket-id>")
		}
		ticketID, err := strconv.ParseInt(env.args[0], 10, 64)
		if err != nil || ticketID <= 0 {
			return fmt.Errorf("invalid ticket ID %q", env.args[0])
		}

		db, err := store.Open(store.Config{Path: env.cfg.Paths.Database, PoolSize: 1, Logger: env.logger})
		if err != nil {
			return err
		}
		defer db.Close()

		document, err := transcript.NewArchiver(db, env.logger).Load(ctx, ticketID)
		if err != nil {
			return err
		}
		if output == "" {
			_, err = env.stdout.Write(document)
			return err
		}
		return os.WriteFile(output, document, 0o644)
	}
}
