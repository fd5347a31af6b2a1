// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestMarkdown(t *testing.T) {
	completed := epoch.Add(time.Hour)
	tk := ticket.Ticket{
		ID:          9,
		CategoryID:  "essay",
		UserID:      "tg:55",
		ClaimedBy:   "@bob:example.org",
		Status:      ticket.StatusTranscript,
		Amount:      120,
		CreatedAt:   epoch,
		CompletedAt: &completed,
	}
	messages := []store.Message{
		{Direction: store.Inbound, Author: "tg:55", Body: "I need help | urgently", CreatedAt: epoch.Add(time.Minute)},
		{Direction: store.Outbound, Author: "@bob:example.org", Body: "On it.", AttachmentURL: "https://files.example.org/a.pdf", CreatedAt: epoch.Add(2 * time.Minute)},
	}

	got := string(Markdown(tk, messages))
	for _, want := range []string{
		"# Ticket #9",
		"| Worker | @bob:example.org |",
		"| Amount | 120 |",
		"| Closed | 2026-06-01T10:00:00Z |",
		"**Customer** · 2026-06-01 09:01:00 UTC",
		"**Staff (@bob:example.org)**",
		"Attachment: <https://files.example.org/a.pdf>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown lacks %q:\n%s", want, got)
		}
	}
}

func TestMarkdownWithoutMessages(t *testing.T) {
	got := string(Markdown(ticket.Ticket{ID: 1, Status: ticket.StatusTranscript, CreatedAt: epoch}, nil))
	if !strings.Contains(got, "_No messages._") {
		t.Errorf("markdown = %s", got)
	}
	if strings.Contains(got, "| Amount |") || strings.Contains(got, "| Worker |") {
		t.Errorf("markdown shows empty fields:\n%s", got)
	}
}

func TestHTMLDropsRawHTML(t *testing.T) {
	document, err := HTML("Ticket <1>", []byte("hello <script>alert(1)</script> **world**"))
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	text := string(document)
	if strings.Contains(text, "<script>") {
		t.Errorf("raw HTML survived: %s", text)
	}
	if !strings.Contains(text, "<strong>world</strong>") {
		t.Errorf("markdown not rendered: %s", text)
	}
	if !strings.Contains(text, "<title>Ticket &lt;1&gt;</title>") {
		t.Errorf("title not escaped: %s", text)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the customer said hello. "), 200)
	compressed := Compress(data)
	if len(compressed) >= len(data) {
		t.Errorf("compressed %d bytes to %d", len(data), len(compressed))
	}
	got, err := Decompress(compressed, int64(len(data)))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip changed the data")
	}

	_, err = Decompress(compressed, int64(len(data))+1)
	var transcriptErr *Error
	if !errors.As(err, &transcriptErr) || !transcriptErr.MediaFailure() {
		t.Errorf("size mismatch error = %v, want a media *Error", err)
	}
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "tickets.db"), Clock: clock.NewFake(epoch)})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tk, err := s.CreateTicket(ctx, ticket.Ticket{CategoryID: "essay", UserID: "tg:7", SessionRef: "7"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	for i, body := range []string{"first question", "first answer"} {
		direction := store.Inbound
		if i == 1 {
			direction = store.Outbound
		}
		if _, err := s.AppendMessage(ctx, store.Message{TicketID: tk.ID, Direction: direction, Author: "x", Body: body, SourceID: body}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	archiver := NewArchiver(s, nil)
	stored, err := archiver.Archive(ctx, tk)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if stored.MessageCount != 2 || stored.Encoding != Encoding {
		t.Errorf("stored = %+v", stored)
	}

	document, err := archiver.Load(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(string(document), "first answer") {
		t.Errorf("document lacks the conversation: %s", document)
	}

	if _, err := archiver.Load(ctx, tk.ID+100); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load of missing transcript = %v, want ErrNotFound", err)
	}
}
