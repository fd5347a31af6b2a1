// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

var epoch = time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "tickets.db"), Clock: fake})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func TestCreateAndGetTicket(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTicket(ctx, ticket.Ticket{
		CategoryID: "essay",
		UserID:     "tg:100",
		SessionRef: "100",
		ChannelRef: "!room:example.org",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateTicket did not assign an ID")
	}
	if created.Status != ticket.StatusOpen {
		t.Errorf("Status = %s, want open", created.Status)
	}

	got, err := s.GetTicket(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.CategoryID != "essay" || got.UserID != "tg:100" || got.ChannelRef != "!room:example.org" {
		t.Errorf("GetTicket = %+v", got)
	}
	if got.ClaimedBy != "" || got.CompletedAt != nil {
		t.Errorf("unclaimed ticket came back with ClaimedBy=%q CompletedAt=%v", got.ClaimedBy, got.CompletedAt)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, epoch)
	}

	byChannel, err := s.TicketByChannel(ctx, "!room:example.org")
	if err != nil || byChannel.ID != created.ID {
		t.Errorf("TicketByChannel = %+v, %v", byChannel, err)
	}
	bySession, err := s.ActiveTicketBySession(ctx, "100")
	if err != nil || bySession.ID != created.ID {
		t.Errorf("ActiveTicketBySession = %+v, %v", bySession, err)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.GetTicket(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTicket error = %v, want ErrNotFound", err)
	}
}

func TestUpdateTicketCompareAndSet(t *testing.T) {
	s, fake := openTestStore(t)
	ctx := context.Background()
	created, err := s.CreateTicket(ctx, ticket.Ticket{CategoryID: "essay", UserID: "tg:1"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	fake.Advance(time.Minute)
	plan, err := ticket.Plan(created, ticket.StatusClaimed, "worker-1", fake.Now())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := s.UpdateTicket(ctx, plan.Ticket, plan.Previous); err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}

	// A second writer still believing the ticket is open loses.
	stale := created
	stale.Status = ticket.StatusClosed
	if err := s.UpdateTicket(ctx, stale, ticket.StatusOpen); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale UpdateTicket error = %v, want ErrConflict", err)
	}

	got, _ := s.GetTicket(ctx, created.ID)
	if got.Status != ticket.StatusClaimed || got.ClaimedBy != "worker-1" {
		t.Errorf("ticket = %s/%q, want claimed/worker-1", got.Status, got.ClaimedBy)
	}
	if !got.UpdatedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}

	missing := got
	missing.ID = 4242
	if err := s.UpdateTicket(ctx, missing, ticket.StatusClaimed); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTicket on missing row = %v, want ErrNotFound", err)
	}
}

func TestAmountRequiresClaimer(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	created, err := s.CreateTicket(ctx, ticket.Ticket{CategoryID: "essay", UserID: "tg:1"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	created.Amount = 10
	if err := s.UpdateTicket(ctx, created, ticket.StatusOpen); err == nil {
		t.Fatal("storing an amount without a claimer succeeded")
	}
}

func TestListTickets(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	for _, user := range []string{"tg:1", "tg:2", "tg:1"} {
		if _, err := s.CreateTicket(ctx, ticket.Ticket{CategoryID: "essay", UserID: user}); err != nil {
			t.Fatalf("CreateTicket: %v", err)
		}
	}
	tickets, err := s.ListTickets(ctx, TicketFilter{UserID: "tg:1"})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("ListTickets returned %d, want 2", len(tickets))
	}
	if tickets[0].ID < tickets[1].ID {
		t.Error("ListTickets not newest first")
	}
	limited, _ := s.ListTickets(ctx, TicketFilter{Status: ticket.StatusOpen, Limit: 1})
	if len(limited) != 1 {
		t.Errorf("Limit 1 returned %d", len(limited))
	}
}

func TestDeleteTicketKeepsLedger(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	created, err := s.CreateTicket(ctx, ticket.Ticket{CategoryID: "essay", UserID: "tg:1"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := s.AppendMessage(ctx, Message{TicketID: created.ID, Direction: Inbound, Author: "tg:1", Body: "hi", SourceID: "1"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	conn, err := s.Pool().Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = execScript(conn, `INSERT INTO ledger_entries (id, worker_id, ticket_id, amount, kind, status, created_at)
		VALUES ('e1', 'w1', `+itoa(created.ID)+`, 10, 'ticket_payment', 'confirmed', 0)`)
	s.Pool().Put(conn)
	if err != nil {
		t.Fatalf("insert ledger entry: %v", err)
	}

	if err := s.DeleteTicket(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	if _, err := s.GetTicket(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTicket after delete = %v, want ErrNotFound", err)
	}
	messages, _ := s.Messages(ctx, created.ID)
	if len(messages) != 0 {
		t.Errorf("%d messages survived ticket deletion", len(messages))
	}
	if count := countRows(t, s, "SELECT COUNT(*) FROM ledger_entries WHERE ticket_id = "+itoa(created.ID)); count != 1 {
		t.Errorf("ledger entries after delete = %d, want 1", count)
	}
	if err := s.DeleteTicket(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteTicket = %v, want ErrNotFound", err)
	}
}

func TestAppendMessageDeduplicates(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	message := Message{TicketID: 1, Direction: Inbound, Author: "tg:1", Body: "hello", SourceID: "m-1"}

	inserted, err := s.AppendMessage(ctx, message)
	if err != nil || !inserted {
		t.Fatalf("first AppendMessage = %v, %v", inserted, err)
	}
	inserted, err = s.AppendMessage(ctx, message)
	if err != nil || inserted {
		t.Fatalf("redelivered AppendMessage = %v, %v; want false, nil", inserted, err)
	}

	reply := Message{TicketID: 1, Direction: Outbound, Author: "w1", Body: "hi", SourceID: "m-1"}
	if inserted, _ := s.AppendMessage(ctx, reply); !inserted {
		t.Error("outbound message with same source ID was dropped")
	}

	messages, err := s.Messages(ctx, 1)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Messages returned %d, want 2", len(messages))
	}
	if messages[0].Body != "hello" || messages[1].Direction != Outbound {
		t.Errorf("Messages = %+v", messages)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(7, Inbound, "abc")
	if a != Fingerprint(7, Inbound, "abc") {
		t.Error("Fingerprint not deterministic")
	}
	if a == Fingerprint(7, Outbound, "abc") || a == Fingerprint(8, Inbound, "abc") {
		t.Error("Fingerprint ignores its inputs")
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestUsersAndCategories(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, User{ID: "tg:1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := s.UpsertUser(ctx, User{ID: "tg:1", DisplayName: "Ana B"}); err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	user, err := s.GetUser(ctx, "tg:1")
	if err != nil || user.DisplayName != "Ana B" {
		t.Errorf("GetUser = %+v, %v", user, err)
	}
	if _, err := s.GetUser(ctx, "tg:2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser missing = %v", err)
	}

	if err := s.SyncCategories(ctx, []Category{{ID: "essay", Name: "Essay"}, {ID: "code", Name: "Code"}}); err != nil {
		t.Fatalf("SyncCategories: %v", err)
	}
	categories, err := s.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(categories) != 2 || categories[0].ID != "code" {
		t.Errorf("Categories = %+v", categories)
	}
}

func TestSessionsAndTranscripts(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if _, found, err := s.LoadSession(ctx, "100"); err != nil || found {
		t.Fatalf("LoadSession on empty = %v, %v", found, err)
	}
	if err := s.SaveSession(ctx, "100", []byte{0xa1, 0x01}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	state, found, err := s.LoadSession(ctx, "100")
	if err != nil || !found || !bytes.Equal(state, []byte{0xa1, 0x01}) {
		t.Errorf("LoadSession = %x, %v, %v", state, found, err)
	}

	transcript := Transcript{TicketID: 3, Encoding: "zstd", Body: []byte("compressed"), RawSize: 100, MessageCount: 4}
	if err := s.SaveTranscript(ctx, transcript); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	got, err := s.GetTranscript(ctx, 3)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if !bytes.Equal(got.Body, transcript.Body) || got.MessageCount != 4 || got.RawSize != 100 {
		t.Errorf("GetTranscript = %+v", got)
	}
	if _, err := s.GetTranscript(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTranscript missing = %v", err)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func execScript(conn *sqlite.Conn, script string) error {
	return sqlitex.ExecuteScript(conn, script, nil)
}

func countRows(t *testing.T, s *Store, query string) int64 {
	t.Helper()
	var count int64
	err := s.Pool().Do(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return count
}
