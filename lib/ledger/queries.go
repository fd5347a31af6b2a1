// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Period names a reporting window relative to now.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period name.
func ParsePeriod(value string) (Period, error) {
	switch period := Period(strings.ToLower(value)); period {
	case PeriodWeek, PeriodMonth, PeriodAll:
		return period, nil
	}
	return "", fmt.Errorf("ledger: unknown period %q (want week, month, or all)", value)
}

// Range is a half-open interval [Start, End) over confirmed_at. A zero
// Start or End leaves that side unbounded.
type Range struct {
	Start time.Time
	End   time.Time
}

// PeriodRange resolves period against now.
func PeriodRange(period Period, now time.Time) (Range, error) {
	switch period {
	case PeriodWeek:
		return Range{Start: now.AddDate(0, 0, -7)}, nil
	case PeriodMonth:
		return Range{Start: now.AddDate(0, 0, -30)}, nil
	case PeriodAll:
		return Range{}, nil
	}
	return Range{}, fmt.Errorf("ledger: unknown period %q", period)
}

// DateRange covers whole days from start's day through end's day,
// inclusive, in the location of each argument.
func DateRange(start, end time.Time) (Range, error) {
	first := startOfDay(start)
	last := startOfDay(end)
	if last.Before(first) {
		return Range{}, fmt.Errorf("ledger: range end %s is before start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return Range{Start: first, End: last.AddDate(0, 0, 1)}, nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// where renders the range as SQL conditions on confirmed_at.
func (r Range) where() ([]string, []any) {
	var conditions []string
	var args []any
	if !r.Start.IsZero() {
		conditions = append(conditions, "confirmed_at >= ?")
		args = append(args, r.Start.UnixMilli())
	}
	if !r.End.IsZero() {
		conditions = append(conditions, "confirmed_at < ?")
		args = append(args, r.End.UnixMilli())
	}
	return conditions, args
}

// WorkerStats aggregates a worker's confirmed ticket payments in a
// range.
type WorkerStats struct {
	WorkerID string
	Earnings int64
	Tickets  int64

	// Adjustments is the sum of confirmed manual adjustments in the
	// same range, reported separately from earnings.
	Adjustments int64
}

// WorkerStats returns one worker's totals for r.
func (l *Ledger) WorkerStats(ctx context.Context, workerID string, r Range) (WorkerStats, error) {
	conditions, args := r.where()
	conditions = append([]string{"worker_id = ?", "status = 'confirmed'"}, conditions...)
	args = append([]any{workerID}, args...)

	stats := WorkerStats{WorkerID: workerID}
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT
				COALESCE(SUM(CASE WHEN kind = 'ticket_payment' THEN amount END), 0),
				COUNT(CASE WHEN kind = 'ticket_payment' THEN 1 END),
				COALESCE(SUM(CASE WHEN kind = 'manual_adjustment' THEN amount END), 0)
			FROM ledger_entries WHERE `+strings.Join(conditions, " AND "),
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Earnings = stmt.ColumnInt64(0)
					stats.Tickets = stmt.ColumnInt64(1)
					stats.Adjustments = stmt.ColumnInt64(2)
					return nil
				},
			})
	})
	if err != nil {
		return WorkerStats{}, fmt.Errorf("ledger: stats for %s: %w", workerID, err)
	}
	return stats, nil
}

// Rankings returns every worker with at least one confirmed payment in
// r, ordered by earnings descending, then ticket count descending, then
// worker ID.
func (l *Ledger) Rankings(ctx context.Context, r Range) ([]WorkerStats, error) {
	conditions, args := r.where()
	conditions = append([]string{"kind = 'ticket_payment'", "status = 'confirmed'"}, conditions...)

	var rankings []WorkerStats
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		rankings = rankings[:0]
		return sqlitex.Execute(conn, `
			SELECT worker_id, SUM(amount) AS earnings, COUNT(*) AS tickets
			FROM ledger_entries WHERE `+strings.Join(conditions, " AND ")+`
			GROUP BY worker_id
			ORDER BY earnings DESC, tickets DESC, worker_id ASC`,
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					rankings = append(rankings, WorkerStats{
						WorkerID: stmt.ColumnText(0),
						Earnings: stmt.ColumnInt64(1),
						Tickets:  stmt.ColumnInt64(2),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: rankings: %w", err)
	}
	return rankings, nil
}

// TicketHistory returns every entry ever written for a ticket, oldest
// first, including entries for tickets that no longer exist.
func (l *Ledger) TicketHistory(ctx context.Context, ticketID int64) ([]Entry, error) {
	var entries []Entry
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		entries = entries[:0]
		return sqlitex.Execute(conn, `
			SELECT id, worker_id, ticket_id, category_id, amount, kind, status, reason,
				created_at, confirmed_at, confirmed_by
			FROM ledger_entries WHERE ticket_id = ? ORDER BY created_at, id`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					entries = append(entries, Entry{
						ID:          stmt.ColumnText(0),
						WorkerID:    stmt.ColumnText(1),
						TicketID:    stmt.ColumnInt64(2),
						CategoryID:  stmt.ColumnText(3),
						Amount:      stmt.ColumnInt64(4),
						Kind:        Kind(stmt.ColumnText(5)),
						Status:      EntryStatus(stmt.ColumnText(6)),
						Reason:      stmt.ColumnText(7),
						CreatedAt:   time.UnixMilli(stmt.ColumnInt64(8)).UTC(),
						ConfirmedAt: columnTimePointer(stmt, 9),
						ConfirmedBy: stmt.ColumnText(10),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: history of ticket %d: %w", ticketID, err)
	}
	return entries, nil
}

// Summary returns a worker's materialized totals. A worker with no
// payments gets a zero Summary.
func (l *Ledger) Summary(ctx context.Context, workerID string) (Summary, error) {
	summary := Summary{WorkerID: workerID}
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT total_earnings, total_tickets, last_earning_at, updated_at
			FROM worker_summaries WHERE worker_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{workerID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					summary.TotalEarnings = stmt.ColumnInt64(0)
					summary.TotalTickets = stmt.ColumnInt64(1)
					summary.LastEarningAt = columnTimePointer(stmt, 2)
					summary.UpdatedAt = time.UnixMilli(stmt.ColumnInt64(3)).UTC()
					return nil
				},
			})
	})
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: summary for %s: %w", workerID, err)
	}
	return summary, nil
}
