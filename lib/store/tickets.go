// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

const ticketColumns = `id, category_id, user_id, status, amount, claimed_by,
	channel_ref, session_ref, completed_at, created_at, updated_at`

func scanTicket(stmt *sqlite.Stmt) (ticket.Ticket, error) {
	status, err := ticket.ParseStatus(stmt.ColumnText(3))
	if err != nil {
		return ticket.Ticket{}, err
	}
	return ticket.Ticket{
		ID:          stmt.ColumnInt64(0),
		CategoryID:  stmt.ColumnText(1),
		UserID:      stmt.ColumnText(2),
		Status:      status,
		Amount:      stmt.ColumnInt64(4),
		ClaimedBy:   stmt.ColumnText(5),
		ChannelRef:  stmt.ColumnText(6),
		SessionRef:  stmt.ColumnText(7),
		CompletedAt: columnTimePointer(stmt, 8),
		CreatedAt:   columnTime(stmt, 9),
		UpdatedAt:   columnTime(stmt, 10),
	}, nil
}

// CreateTicket inserts t and returns it with ID and timestamps set.
// The status defaults to open.
func (s *Store) CreateTicket(ctx context.Context, t ticket.Ticket) (ticket.Ticket, error) {
	now := s.clock.Now().UTC()
	if t.Status == "" {
		t.Status = ticket.StatusOpen
	}
	t.CreatedAt, t.UpdatedAt = now, now

	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO tickets (category_id, user_id, status, amount, claimed_by,
				channel_ref, session_ref, completed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				t.CategoryID, t.UserID, string(t.Status), t.Amount, nullableString(t.ClaimedBy),
				nullableString(t.ChannelRef), nullableString(t.SessionRef), nullableTime(t.CompletedAt),
				millis(now), millis(now),
			}})
		if err != nil {
			return err
		}
		t.ID = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("store: create ticket: %w", err)
	}
	return t, nil
}

// GetTicket returns the ticket with the given ID or ErrNotFound.
func (s *Store) GetTicket(ctx context.Context, id int64) (ticket.Ticket, error) {
	tickets, err := s.queryTickets(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("store: get ticket %d: %w", id, err)
	}
	if len(tickets) == 0 {
		return ticket.Ticket{}, fmt.Errorf("store: ticket %d: %w", id, ErrNotFound)
	}
	return tickets[0], nil
}

// TicketByChannel returns the ticket mirrored in channelRef.
func (s *Store) TicketByChannel(ctx context.Context, channelRef string) (ticket.Ticket, error) {
	tickets, err := s.queryTickets(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE channel_ref = ? ORDER BY id DESC LIMIT 1", channelRef)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("store: ticket by channel: %w", err)
	}
	if len(tickets) == 0 {
		return ticket.Ticket{}, fmt.Errorf("store: ticket for channel %s: %w", channelRef, ErrNotFound)
	}
	return tickets[0], nil
}

// ActiveTicketBySession returns the newest non-terminal ticket of a
// customer session.
func (s *Store) ActiveTicketBySession(ctx context.Context, sessionRef string) (ticket.Ticket, error) {
	tickets, err := s.queryTickets(ctx,
		"SELECT "+ticketColumns+` FROM tickets
		WHERE session_ref = ? AND status IN ('open', 'claimed', 'paid')
		ORDER BY id DESC LIMIT 1`, sessionRef)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("store: active ticket by session: %w", err)
	}
	if len(tickets) == 0 {
		return ticket.Ticket{}, fmt.Errorf("store: active ticket for session %s: %w", sessionRef, ErrNotFound)
	}
	return tickets[0], nil
}

// TicketFilter narrows ListTickets. Zero fields do not filter.
type TicketFilter struct {
	Status    ticket.Status
	ClaimedBy string
	UserID    string
	Limit     int
}

// ListTickets returns tickets matching filter, newest first.
func (s *Store) ListTickets(ctx context.Context, filter TicketFilter) ([]ticket.Ticket, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ClaimedBy != "" {
		conditions = append(conditions, "claimed_by = ?")
		args = append(args, filter.ClaimedBy)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := "SELECT " + ticketColumns + " FROM tickets"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, int64(filter.Limit))
	}

	tickets, err := s.queryTickets(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	return tickets, nil
}

// UpdateTicket writes t if the stored row still has status expected.
// Returns ErrConflict when another writer moved the ticket first and
// ErrNotFound when the row is gone.
func (s *Store) UpdateTicket(ctx context.Context, t ticket.Ticket, expected ticket.Status) error {
	var changed int
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE tickets SET category_id = ?, status = ?, amount = ?, claimed_by = ?,
				channel_ref = ?, session_ref = ?, completed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			&sqlitex.ExecOptions{Args: []any{
				t.CategoryID, string(t.Status), t.Amount, nullableString(t.ClaimedBy),
				nullableString(t.ChannelRef), nullableString(t.SessionRef), nullableTime(t.CompletedAt),
				millis(t.UpdatedAt), t.ID, string(expected),
			}})
		if err != nil {
			return err
		}
		changed = conn.Changes()
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update ticket %d: %w", t.ID, err)
	}
	if changed == 0 {
		if _, err := s.GetTicket(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("store: update ticket %d from %s: %w", t.ID, expected, ErrConflict)
	}
	return nil
}

// DeleteTicket physically removes a ticket and its messages. Ledger
// entries referencing it are kept.
func (s *Store) DeleteTicket(ctx context.Context, id int64) error {
	var changed int
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)

		if err = sqlitex.Execute(conn, "DELETE FROM messages WHERE ticket_id = ?",
			&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return err
		}
		if err = sqlitex.Execute(conn, "DELETE FROM tickets WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return err
		}
		changed = conn.Changes()
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: delete ticket %d: %w", id, err)
	}
	if changed == 0 {
		return fmt.Errorf("store: delete ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...any) ([]ticket.Ticket, error) {
	var tickets []ticket.Ticket
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		tickets = tickets[:0]
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t, err := scanTicket(stmt)
				if err != nil {
					return err
				}
				tickets = append(tickets, t)
				return nil
			},
		})
	})
	return tickets, err
}
