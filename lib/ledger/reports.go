// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"time"
)

// The methods below are the query surface the dashboard consumes. Each
// resolves its window against the ledger's clock and delegates to the
// range queries.

// UserStatsByPeriod returns a worker's totals for a named period.
func (l *Ledger) UserStatsByPeriod(ctx context.Context, workerID string, period Period) (WorkerStats, error) {
	r, err := PeriodRange(period, l.clock.Now())
	if err != nil {
		return WorkerStats{}, err
	}
	return l.WorkerStats(ctx, workerID, r)
}

// UserStatsByDateRange returns a worker's totals for whole days start
// through end.
func (l *Ledger) UserStatsByDateRange(ctx context.Context, workerID string, start, end time.Time) (WorkerStats, error) {
	r, err := DateRange(start, end)
	if err != nil {
		return WorkerStats{}, err
	}
	return l.WorkerStats(ctx, workerID, r)
}

// AllWorkerStatsByPeriod ranks all workers over a named period.
func (l *Ledger) AllWorkerStatsByPeriod(ctx context.Context, period Period) ([]WorkerStats, error) {
	r, err := PeriodRange(period, l.clock.Now())
	if err != nil {
		return nil, err
	}
	return l.Rankings(ctx, r)
}

// AllWorkerStatsByDateRange ranks all workers over whole days start
// through end.
func (l *Ledger) AllWorkerStatsByDateRange(ctx context.Context, start, end time.Time) ([]WorkerStats, error) {
	r, err := DateRange(start, end)
	if err != nil {
		return nil, err
	}
	return l.Rankings(ctx, r)
}

// TicketPaymentHistory is TicketHistory under its dashboard name.
func (l *Ledger) TicketPaymentHistory(ctx context.Context, ticketID int64) ([]Entry, error) {
	return l.TicketHistory(ctx, ticketID)
}

// WorkerEarningsSummary is Summary under its dashboard name.
func (l *Ledger) WorkerEarningsSummary(ctx context.Context, workerID string) (Summary, error) {
	return l.Summary(ctx, workerID)
}
