// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Direction says which way a message crossed the bridge.
type Direction string

const (
	// Inbound messages come from the customer.
	Inbound Direction = "inbound"
	// Outbound messages come from staff.
	Outbound Direction = "outbound"
)

// Message is one relayed conversation turn.
type Message struct {
	ID        int64
	TicketID  int64
	Direction Direction
	Author    string
	Body      string

	AttachmentURL string

	// SourceID is the originating platform's message identifier. It
	// feeds the fingerprint that drops redelivered messages; it is not
	// stored on its own.
	SourceID string

	CreatedAt time.Time
}

// Fingerprint identifies a platform message within a ticket.
func Fingerprint(ticketID int64, direction Direction, sourceID string) string {
	hasher := blake3.New()
	hasher.Write([]byte(strconv.FormatInt(ticketID, 10)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(direction))
	hasher.Write([]byte{0})
	hasher.Write([]byte(sourceID))
	return hex.EncodeToString(hasher.Sum(nil))
}

// AppendMessage records m. It reports false without error when the same
// platform message was already recorded for the ticket.
func (s *Store) AppendMessage(ctx context.Context, m Message) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock.Now()
	}
	fingerprint := Fingerprint(m.TicketID, m.Direction, m.SourceID)

	var changed int
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO messages (ticket_id, direction, author, body, attachment_url, fingerprint, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticket_id, fingerprint) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{
				m.TicketID, string(m.Direction), m.Author, m.Body,
				nullableString(m.AttachmentURL), fingerprint, millis(m.CreatedAt),
			}})
		if err != nil {
			return err
		}
		changed = conn.Changes()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: append message to ticket %d: %w", m.TicketID, err)
	}
	return changed > 0, nil
}

// Messages returns a ticket's messages oldest first.
func (s *Store) Messages(ctx context.Context, ticketID int64) ([]Message, error) {
	var messages []Message
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		messages = messages[:0]
		return sqlitex.Execute(conn, `
			SELECT id, ticket_id, direction, author, body, attachment_url, created_at
			FROM messages WHERE ticket_id = ? ORDER BY created_at, id`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					messages = append(messages, Message{
						ID:            stmt.ColumnInt64(0),
						TicketID:      stmt.ColumnInt64(1),
						Direction:     Direction(stmt.ColumnText(2)),
						Author:        stmt.ColumnText(3),
						Body:          stmt.ColumnText(4),
						AttachmentURL: stmt.ColumnText(5),
						CreatedAt:     columnTime(stmt, 6),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: messages of ticket %d: %w", ticketID, err)
	}
	return messages, nil
}
