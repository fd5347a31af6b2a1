// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// User is a customer known to the bridge.
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// UpsertUser records a customer, refreshing the display name of an
// existing one.
func (s *Store) UpsertUser(ctx context.Context, user User) error {
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`,
			&sqlitex.ExecOptions{Args: []any{user.ID, user.DisplayName, millis(s.clock.Now())}})
	})
	if err != nil {
		return fmt.Errorf("store: upsert user %s: %w", user.ID, err)
	}
	return nil
}

// GetUser returns a customer or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	found := false
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT id, display_name, created_at FROM users WHERE id = ?",
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					user = User{ID: stmt.ColumnText(0), DisplayName: stmt.ColumnText(1), CreatedAt: columnTime(stmt, 2)}
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return User{}, fmt.Errorf("store: get user %s: %w", id, err)
	}
	if !found {
		return User{}, fmt.Errorf("store: user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

// Category is the stored projection of a catalog category.
type Category struct {
	ID   string
	Name string
}

// SyncCategories upserts every category in one transaction.
func (s *Store) SyncCategories(ctx context.Context, categories []Category) error {
	now := millis(s.clock.Now())
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)
		for _, category := range categories {
			err = sqlitex.Execute(conn, `
				INSERT INTO categories (id, name, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
				&sqlitex.ExecOptions{Args: []any{category.ID, category.Name, now}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: sync categories: %w", err)
	}
	return nil
}

// Categories returns all stored categories ordered by ID.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		categories = categories[:0]
		return sqlitex.Execute(conn, "SELECT id, name FROM categories ORDER BY id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				categories = append(categories, Category{ID: stmt.ColumnText(0), Name: stmt.ColumnText(1)})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: categories: %w", err)
	}
	return categories, nil
}

// LoadSession returns the encoded state of a customer session. The
// second result is false when none is stored.
func (s *Store) LoadSession(ctx context.Context, sessionRef string) ([]byte, bool, error) {
	var state []byte
	found := false
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT state FROM sessions WHERE session_ref = ?", &sqlitex.ExecOptions{
			Args: []any{sessionRef},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				state = columnBytes(stmt, 0)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: load session %s: %w", sessionRef, err)
	}
	return state, found, nil
}

// SaveSession replaces the encoded state of a customer session.
func (s *Store) SaveSession(ctx context.Context, sessionRef string, state []byte) error {
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO sessions (session_ref, state, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (session_ref) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{sessionRef, state, millis(s.clock.Now())}})
	})
	if err != nil {
		return fmt.Errorf("store: save session %s: %w", sessionRef, err)
	}
	return nil
}

// Transcript is the archived conversation of a ticket.
type Transcript struct {
	TicketID int64

	// Encoding names how Body is compressed, e.g. "zstd".
	Encoding string
	Body     []byte

	RawSize      int64
	MessageCount int
	CreatedAt    time.Time
}

// SaveTranscript stores or replaces a ticket's transcript.
func (s *Store) SaveTranscript(ctx context.Context, transcript Transcript) error {
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = s.clock.Now()
	}
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO transcripts (ticket_id, encoding, body, raw_size, message_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				transcript.TicketID, transcript.Encoding, transcript.Body,
				transcript.RawSize, int64(transcript.MessageCount), millis(transcript.CreatedAt),
			}})
	})
	if err != nil {
		return fmt.Errorf("store: save transcript for ticket %d: %w", transcript.TicketID, err)
	}
	return nil
}

// GetTranscript returns a ticket's transcript or ErrNotFound.
func (s *Store) GetTranscript(ctx context.Context, ticketID int64) (Transcript, error) {
	var transcript Transcript
	found := false
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT ticket_id, encoding, body, raw_size, message_count, created_at
			FROM transcripts WHERE ticket_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					transcript = Transcript{
						TicketID:     stmt.ColumnInt64(0),
						Encoding:     stmt.ColumnText(1),
						Body:         columnBytes(stmt, 2),
						RawSize:      stmt.ColumnInt64(3),
						MessageCount: stmt.ColumnInt(4),
						CreatedAt:    columnTime(stmt, 5),
					}
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("store: get transcript for ticket %d: %w", ticketID, err)
	}
	if !found {
		return Transcript{}, fmt.Errorf("store: transcript for ticket %d: %w", ticketID, ErrNotFound)
	}
	return transcript, nil
}
