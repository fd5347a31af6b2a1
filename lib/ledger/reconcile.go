// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Drift describes a summary that disagreed with its entries.
type Drift struct {
	WorkerID string

	// Stored is what worker_summaries held; Computed is what the
	// entries add up to and what the summary now holds.
	StoredEarnings   int64
	StoredTickets    int64
	ComputedEarnings int64
	ComputedTickets  int64
}

type totals struct {
	earnings int64
	tickets  int64
	last     *time.Time
}

// Reconcile rebuilds one worker's summary from their confirmed
// payments. It returns the drift found, or nil if the summary was
// already correct.
func (l *Ledger) Reconcile(ctx context.Context, workerID string) (*Drift, error) {
	unlock := l.workers.Lock(workerID)
	defer unlock()

	drifts, err := l.reconcile(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: reconcile %s: %w", workerID, err)
	}
	if len(drifts) == 0 {
		return nil, nil
	}
	return &drifts[0], nil
}

// ReconcileAll rebuilds every worker's summary in one transaction and
// returns the drifts found, ordered by worker ID.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Drift, error) {
	drifts, err := l.reconcile(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("ledger: reconcile all: %w", err)
	}
	return drifts, nil
}

// ReconcileEvery runs ReconcileAll each interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (l *Ledger) ReconcileEvery(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(interval):
		}
		drifts, err := l.ReconcileAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("periodic reconciliation failed", "error", err)
			continue
		}
		l.logger.Debug("periodic reconciliation finished", "drifts", len(drifts))
	}
}

// reconcile recomputes summaries for workerID, or for every worker when
// workerID is empty.
func (l *Ledger) reconcile(ctx context.Context, workerID string) ([]Drift, error) {
	var drifts []Drift
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) (err error) {
		drifts = drifts[:0]
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)

		filter, args := "", []any(nil)
		if workerID != "" {
			filter, args = " AND worker_id = ?", []any{workerID}
		}

		computed := make(map[string]totals)
		err = sqlitex.Execute(conn, `
			SELECT worker_id, SUM(amount), COUNT(*), MAX(confirmed_at)
			FROM ledger_entries
			WHERE kind = 'ticket_payment' AND status = 'confirmed'`+filter+`
			GROUP BY worker_id`,
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					computed[stmt.ColumnText(0)] = totals{
						earnings: stmt.ColumnInt64(1),
						tickets:  stmt.ColumnInt64(2),
						last:     columnTimePointer(stmt, 3),
					}
					return nil
				},
			})
		if err != nil {
			return err
		}

		stored := make(map[string]totals)
		err = sqlitex.Execute(conn, `
			SELECT worker_id, total_earnings, total_tickets FROM worker_summaries WHERE 1 = 1`+filter,
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stored[stmt.ColumnText(0)] = totals{
						earnings: stmt.ColumnInt64(1),
						tickets:  stmt.ColumnInt64(2),
					}
					return nil
				},
			})
		if err != nil {
			return err
		}

		workers := make(map[string]struct{}, len(computed)+len(stored))
		for id := range computed {
			workers[id] = struct{}{}
		}
		for id := range stored {
			workers[id] = struct{}{}
		}

		now := l.clock.Now().UnixMilli()
		for id := range workers {
			want, have := computed[id], stored[id]
			if want.earnings == have.earnings && want.tickets == have.tickets {
				if _, exists := stored[id]; exists {
					continue
				}
			}
			var last any
			if want.last != nil {
				last = want.last.UnixMilli()
			}
			err = sqlitex.Execute(conn, `
				INSERT INTO worker_summaries (worker_id, total_earnings, total_tickets, last_earning_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (worker_id) DO UPDATE SET
					total_earnings = excluded.total_earnings,
					total_tickets = excluded.total_tickets,
					last_earning_at = excluded.last_earning_at,
					updated_at = excluded.updated_at`,
				&sqlitex.ExecOptions{Args: []any{id, want.earnings, want.tickets, last, now}})
			if err != nil {
				return err
			}
			drifts = append(drifts, Drift{
				WorkerID:         id,
				StoredEarnings:   have.earnings,
				StoredTickets:    have.tickets,
				ComputedEarnings: want.earnings,
				ComputedTickets:  want.tickets,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].WorkerID < drifts[j].WorkerID })
	for _, drift := range drifts {
		l.logger.Warn("worker summary drift corrected",
			"worker_id", drift.WorkerID,
			"stored_earnings", drift.StoredEarnings,
			"computed_earnings", drift.ComputedEarnings,
			"stored_tickets", drift.StoredTickets,
			"computed_tickets", drift.ComputedTickets,
		)
	}
	return drifts, nil
}
