// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/keylock"
	"github.com/bureau-foundation/ticketbridge/lib/sqlitepool"
)

// Kind distinguishes ticket payments from manual adjustments.
type Kind string

const (
	KindTicketPayment    Kind = "ticket_payment"
	KindManualAdjustment Kind = "manual_adjustment"
)

// EntryStatus is the confirmation state of an entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusConfirmed EntryStatus = "confirmed"
)

// ErrNotFound is returned for unknown entries.
var ErrNotFound = errors.New("ledger: not found")

// Entry is one ledger row.
type Entry struct {
	ID       string
	WorkerID string

	// TicketID is zero for adjustments not tied to a ticket. It keeps
	// its value after the ticket row is deleted.
	TicketID   int64
	CategoryID string

	Amount int64
	Kind   Kind
	Status EntryStatus
	Reason string

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	ConfirmedBy string
}

// Summary is a worker's materialized totals.
type Summary struct {
	WorkerID      string
	TotalEarnings int64
	TotalTickets  int64
	LastEarningAt *time.Time
	UpdatedAt     time.Time
}

// Config holds the parameters for New.
type Config struct {
	// Pool is the database holding ledger_entries and
	// worker_summaries. Required.
	Pool *sqlitepool.Pool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// NewID generates entry IDs. Defaults to uuid.NewString.
	NewID func() string

	Logger *slog.Logger
}

// Ledger is the earnings ledger.
type Ledger struct {
	pool    *sqlitepool.Pool
	clock   clock.Clock
	newID   func() string
	logger  *slog.Logger
	workers keylock.Map[string]
}

// New creates a Ledger over an already-migrated database.
func New(cfg Config) (*Ledger, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("ledger: Pool is required")
	}
	l := &Ledger{
		pool:   cfg.Pool,
		clock:  cfg.Clock,
		newID:  cfg.NewID,
		logger: cfg.Logger,
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	return l, nil
}

// Outcome says what RecordPayment did.
type Outcome int

const (
	// OutcomeInserted means a new confirmed payment was written.
	OutcomeInserted Outcome = iota
	// OutcomeUnchanged means the same amount was already recorded.
	OutcomeUnchanged
	// OutcomeUpdated means an existing payment changed amount.
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// PaymentRequest asks the ledger to record a worker's pay for a ticket.
type PaymentRequest struct {
	TicketID    int64
	WorkerID    string
	Amount      int64
	CategoryID  string
	Reason      string
	ConfirmedBy string
}

// PaymentResult reports the effect of RecordPayment.
type PaymentResult struct {
	Outcome Outcome
	EntryID string

	// Delta is the change applied to the worker's total earnings.
	Delta int64
}

// RecordPayment idempotently records req as the confirmed payment for
// (req.TicketID, req.WorkerID). The entry and the summary change commit
// together or not at all.
func (l *Ledger) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if req.TicketID <= 0 {
		return PaymentResult{}, fmt.Errorf("ledger: payment needs a ticket ID")
	}
	if req.WorkerID == "" {
		return PaymentResult{}, fmt.Errorf("ledger: payment for ticket %d needs a worker", req.TicketID)
	}
	if req.Amount <= 0 {
		return PaymentResult{}, fmt.Errorf("ledger: payment for ticket %d must be positive (got %d)", req.TicketID, req.Amount)
	}

	unlock := l.workers.Lock(req.WorkerID)
	defer unlock()

	var result PaymentResult
	var err error
	// A constraint violation means another process inserted the same
	// payment between our read and write; the second pass sees it.
	for pass := 0; pass < 2; pass++ {
		err = l.pool.Do(ctx, func(conn *sqlite.Conn) error {
			var txErr error
			result, txErr = l.recordPayment(conn, req)
			return txErr
		})
		if !sqlitepool.IsConstraint(err) {
			break
		}
	}
	if err != nil {
		return PaymentResult{}, fmt.Errorf("ledger: record payment for ticket %d worker %s: %w", req.TicketID, req.WorkerID, err)
	}

	l.logger.Info("payment recorded",
		"ticket_id", req.TicketID,
		"worker_id", req.WorkerID,
		"amount", req.Amount,
		"outcome", result.Outcome.String(),
		"delta", result.Delta,
	)
	return result, nil
}

func (l *Ledger) recordPayment(conn *sqlite.Conn, req PaymentRequest) (result PaymentResult, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return PaymentResult{}, err
	}
	defer endTransaction(&err)

	now := l.clock.Now().UTC()

	var existingID string
	var existingAmount int64
	found := false
	err = sqlitex.Execute(conn, `
		SELECT id, amount FROM ledger_entries
		WHERE ticket_id = ? AND worker_id = ? AND kind = 'ticket_payment' AND status = 'confirmed'`,
		&sqlitex.ExecOptions{
			Args: []any{req.TicketID, req.WorkerID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existingID = stmt.ColumnText(0)
				existingAmount = stmt.ColumnInt64(1)
				found = true
				return nil
			},
		})
	if err != nil {
		return PaymentResult{}, err
	}

	switch {
	case !found:
		id := l.newID()
		err = sqlitex.Execute(conn, `
			INSERT INTO ledger_entries (id, worker_id, ticket_id, category_id, amount, kind, status,
				reason, created_at, confirmed_at, confirmed_by)
			VALUES (?, ?, ?, ?, ?, 'ticket_payment', 'confirmed', ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				id, req.WorkerID, req.TicketID, nullable(req.CategoryID), req.Amount,
				req.Reason, now.UnixMilli(), now.UnixMilli(), nullable(req.ConfirmedBy),
			}})
		if err != nil {
			return PaymentResult{}, err
		}
		if err = adjustSummary(conn, req.WorkerID, req.Amount, 1, now); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Outcome: OutcomeInserted, EntryID: id, Delta: req.Amount}, nil

	case existingAmount == req.Amount:
		return PaymentResult{Outcome: OutcomeUnchanged, EntryID: existingID}, nil

	default:
		delta := req.Amount - existingAmount
		err = sqlitex.Execute(conn, `
			UPDATE ledger_entries SET amount = ?, reason = ?, confirmed_at = ?, confirmed_by = ?
			WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				req.Amount, req.Reason, now.UnixMilli(), nullable(req.ConfirmedBy), existingID,
			}})
		if err != nil {
			return PaymentResult{}, err
		}
		if err = adjustSummary(conn, req.WorkerID, delta, 0, now); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Outcome: OutcomeUpdated, EntryID: existingID, Delta: delta}, nil
	}
}

// adjustSummary moves a worker's totals by the given deltas, creating
// the row on first use.
func adjustSummary(conn *sqlite.Conn, workerID string, earnings, tickets int64, now time.Time) error {
	return sqlitex.Execute(conn, `
		INSERT INTO worker_summaries (worker_id, total_earnings, total_tickets, last_earning_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (worker_id) DO UPDATE SET
			total_earnings  = total_earnings + excluded.total_earnings,
			total_tickets   = total_tickets + excluded.total_tickets,
			last_earning_at = MAX(COALESCE(last_earning_at, 0), excluded.last_earning_at),
			updated_at      = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{workerID, earnings, tickets, now.UnixMilli(), now.UnixMilli()}})
}

// Adjustment is a manual correction to a worker's pay.
type Adjustment struct {
	WorkerID string
	Amount   int64
	Reason   string

	// TicketID optionally ties the adjustment to a ticket.
	TicketID int64
}

// RecordAdjustment writes a pending manual adjustment and returns its
// entry ID.
func (l *Ledger) RecordAdjustment(ctx context.Context, adjustment Adjustment) (string, error) {
	if adjustment.WorkerID == "" {
		return "", fmt.Errorf("ledger: adjustment needs a worker")
	}
	if adjustment.Amount == 0 {
		return "", fmt.Errorf("ledger: adjustment amount must be non-zero")
	}
	id := l.newID()
	now := l.clock.Now().UTC()
	var ticketID any
	if adjustment.TicketID > 0 {
		ticketID = adjustment.TicketID
	}
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO ledger_entries (id, worker_id, ticket_id, amount, kind, status, reason, created_at)
			VALUES (?, ?, ?, ?, 'manual_adjustment', 'pending', ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				id, adjustment.WorkerID, ticketID, adjustment.Amount, adjustment.Reason, now.UnixMilli(),
			}})
	})
	if err != nil {
		return "", fmt.Errorf("ledger: record adjustment for %s: %w", adjustment.WorkerID, err)
	}
	l.logger.Info("adjustment recorded", "entry_id", id, "worker_id", adjustment.WorkerID, "amount", adjustment.Amount)
	return id, nil
}

// ConfirmAdjustment confirms a pending manual adjustment.
func (l *Ledger) ConfirmAdjustment(ctx context.Context, entryID, confirmedBy string) error {
	now := l.clock.Now().UTC()
	var changed int
	err := l.pool.Do(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE ledger_entries SET status = 'confirmed', confirmed_at = ?, confirmed_by = ?
			WHERE id = ? AND kind = 'manual_adjustment' AND status = 'pending'`,
			&sqlitex.ExecOptions{Args: []any{now.UnixMilli(), nullable(confirmedBy), entryID}})
		changed = conn.Changes()
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: confirm adjustment %s: %w", entryID, err)
	}
	if changed == 0 {
		return fmt.Errorf("ledger: pending adjustment %s: %w", entryID, ErrNotFound)
	}
	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func columnTimePointer(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	t := time.UnixMilli(stmt.ColumnInt64(col)).UTC()
	return &t
}
