// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func converter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// Markdown renders a ticket's header and conversation as Markdown.
func Markdown(t ticket.Ticket, messages []store.Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Ticket #%d\n\n", t.ID)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", name, escapeCell(value))
		}
	}
	row("Category", t.CategoryID)
	row("Customer", t.UserID)
	row("Worker", t.ClaimedBy)
	row("Status", string(t.Status))
	if t.Amount > 0 {
		row("Amount", strconv.FormatInt(t.Amount, 10))
	}
	row("Opened", t.CreatedAt.UTC().Format(time.RFC3339))
	if t.CompletedAt != nil {
		row("Closed", t.CompletedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Conversation\n")
	if len(messages) == 0 {
		b.WriteString("\n_No messages._\n")
	}
	for _, message := range messages {
		speaker := "Staff"
		if message.Direction == store.Inbound {
			speaker = "Customer"
		}
		if message.Author != "" && message.Direction == store.Outbound {
			speaker += " (" + message.Author + ")"
		}
		fmt.Fprintf(&b, "\n**%s** · %s\n\n", speaker, message.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		if body := strings.TrimSpace(message.Body); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
		if message.AttachmentURL != "" {
			fmt.Fprintf(&b, "\nAttachment: <%s>\n", message.AttachmentURL)
		}
	}
	return []byte(b.String())
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "|", `\|`)
	return strings.ReplaceAll(value, "\n", " ")
}

// HTML converts a Markdown transcript into a complete HTML document.
func HTML(title string, source []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := converter().Convert(source, &body); err != nil {
		return nil, &Error{Op: "render", Err: err}
	}
	var document bytes.Buffer
	document.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	document.WriteString(htmlEscaper.Replace(title))
	document.WriteString("</title>\n</head>\n<body>\n")
	document.Write(body.Bytes())
	document.WriteString("</body>\n</html>\n")
	return document.Bytes(), nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")
