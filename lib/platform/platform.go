// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"context"
	"time"
)

// Attachment is a file referenced by URL.
type Attachment struct {
	URL         string
	Name        string
	ContentType string
}

// NoticeField is one labelled line of a Notice.
type NoticeField struct {
	Name  string
	Value string
}

// Notice is a structured status message. Platforms without rich
// formatting render it as plain text.
type Notice struct {
	Title  string
	Body   string
	Fields []NoticeField
}

// Plain renders the notice as text.
func (n Notice) Plain() string {
	text := n.Title
	if n.Body != "" {
		if text != "" {
			text += "\n"
		}
		text += n.Body
	}
	for _, field := range n.Fields {
		text += "\n" + field.Name + ": " + field.Value
	}
	return text
}

// OutboundMessage is what an adapter actually sends. At least one of
// Text, Attachment, or Notice is set.
type OutboundMessage struct {
	Text       string
	Attachment *Attachment
	Notice     *Notice
}

// ChannelSpec describes a staff channel to create.
type ChannelSpec struct {
	Name  string
	Topic string

	// Parent groups the channel (a Matrix space, for example). Optional.
	Parent string

	// Invite lists users added on creation.
	Invite []string
}

// ChannelOptions is a partial channel edit. Empty strings and nil
// pointers leave that property unchanged.
type ChannelOptions struct {
	Name     string
	Topic    string
	ReadOnly *bool
}

// FetchedMessage is a message read back from a channel.
type FetchedMessage struct {
	ID            string
	Author        string
	Body          string
	AttachmentURL string
	SentAt        time.Time
}

// Member is a user of the staff platform with the roles that matter to
// ticket routing.
type Member struct {
	ID          string
	DisplayName string
	Roles       []string
}

// SendHandle is one reusable send path into a channel.
type SendHandle interface {
	// Send delivers msg and returns the platform's message ID.
	Send(ctx context.Context, msg OutboundMessage) (string, error)
	Close() error
}

// ChannelPlatform is the staff-facing platform.
type ChannelPlatform interface {
	CreateConnection(ctx context.Context, channelRef string) (SendHandle, error)
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	EditChannel(ctx context.Context, channelRef string, options ChannelOptions) error
	FetchRecent(ctx context.Context, channelRef string, limit int) ([]FetchedMessage, error)
	LookupMembersAndRoles(ctx context.Context, groupRef string) ([]Member, error)
}

// SessionState is a customer's conversational state on the customer
// platform. The zero value is an idle customer with no ticket.
type SessionState struct {
	ActiveTicketID int64             `cbor:"active_ticket_id,omitempty"`
	Step           string            `cbor:"step,omitempty"`
	CategoryID     string            `cbor:"category_id,omitempty"`
	Answers        map[string]string `cbor:"answers,omitempty"`
	UpdatedAt      time.Time         `cbor:"updated_at"`
}

// CustomerPlatform is the customer-facing platform.
type CustomerPlatform interface {
	// SendMessage delivers msg to the customer's conversation and
	// returns the platform's message ID.
	SendMessage(ctx context.Context, sessionRef string, msg OutboundMessage) (string, error)

	// GetSessionState returns the zero SessionState for unknown
	// sessions.
	GetSessionState(ctx context.Context, sessionRef string) (SessionState, error)
	SetSessionState(ctx context.Context, sessionRef string, state SessionState) error
}
