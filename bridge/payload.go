// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"strings"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// Placeholder replaces content that would otherwise be empty.
const Placeholder = "(empty message)"

// Payload is the content of one relayed turn. The implementations in
// this package are the only ones.
type Payload interface {
	payload()
}

// TextOnly is a plain text message.
type TextOnly struct {
	Text string
}

// AttachmentOnly is a file with no caption.
type AttachmentOnly struct {
	Attachment platform.Attachment
}

// TextWithAttachment is a captioned file.
type TextWithAttachment struct {
	Text       string
	Attachment platform.Attachment
}

// StructuredNotice is a system status message.
type StructuredNotice struct {
	Notice platform.Notice
}

func (TextOnly) payload()           {}
func (AttachmentOnly) payload()     {}
func (TextWithAttachment) payload() {}
func (StructuredNotice) payload()   {}

// Normalize converts p into a message with non-empty content. An
// attachment without a URL is treated as absent.
func Normalize(p Payload) platform.OutboundMessage {
	switch p := p.(type) {
	case TextOnly:
		return textMessage(p.Text)

	case AttachmentOnly:
		if p.Attachment.URL == "" {
			return textMessage("")
		}
		attachment := p.Attachment
		return platform.OutboundMessage{Attachment: &attachment}

	case TextWithAttachment:
		if p.Attachment.URL == "" {
			return textMessage(p.Text)
		}
		attachment := p.Attachment
		return platform.OutboundMessage{Text: strings.TrimSpace(p.Text), Attachment: &attachment}

	case StructuredNotice:
		if strings.TrimSpace(p.Notice.Plain()) == "" {
			return textMessage("")
		}
		notice := p.Notice
		return platform.OutboundMessage{Notice: &notice}
	}
	return textMessage("")
}

func textMessage(text string) platform.OutboundMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		text = Placeholder
	}
	return platform.OutboundMessage{Text: text}
}

// attribute prefixes the text of p with a speaker label. Attachments
// without text gain the label as their caption; notices are unchanged.
func attribute(p Payload, label string) Payload {
	if label == "" {
		return p
	}
	switch p := p.(type) {
	case TextOnly:
		return TextOnly{Text: label + ": " + strings.TrimSpace(p.Text)}
	case AttachmentOnly:
		return TextWithAttachment{Text: label, Attachment: p.Attachment}
	case TextWithAttachment:
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return TextWithAttachment{Text: label, Attachment: p.Attachment}
		}
		return TextWithAttachment{Text: label + ": " + text, Attachment: p.Attachment}
	}
	return p
}
