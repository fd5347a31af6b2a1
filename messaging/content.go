// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

const htmlFormat = "org.matrix.custom.html"

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func renderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))
	})
	return markdown
}

// messageContent converts an outbound message to Matrix content.
// Notices become m.notice with an HTML rendering; attachments with an
// mxc:// URI become file or image events; any other attachment is
// described in a text message since Matrix clients cannot fetch it.
func messageContent(msg platform.OutboundMessage) MessageContent {
	if msg.Notice != nil {
		content := MessageContent{MsgType: MsgTypeNotice, Body: msg.Notice.Plain()}
		if html, ok := noticeHTML(*msg.Notice); ok {
			content.Format = htmlFormat
			content.FormattedBody = html
		}
		return content
	}

	if attachment := msg.Attachment; attachment != nil {
		if strings.HasPrefix(attachment.URL, "mxc://") {
			msgType := MsgTypeFile
			if strings.HasPrefix(attachment.ContentType, "image/") {
				msgType = MsgTypeImage
			}
			body := msg.Text
			if body == "" {
				body = attachment.Name
			}
			content := MessageContent{MsgType: msgType, Body: body, URL: attachment.URL, FileName: attachment.Name}
			if attachment.ContentType != "" {
				content.Info = &FileInfo{MimeType: attachment.ContentType}
			}
			return content
		}
		name := attachment.Name
		if name == "" {
			name = "file"
		}
		line := "[attachment: " + name + " " + attachment.URL + "]"
		if msg.Text == "" {
			return MessageContent{MsgType: MsgTypeText, Body: line}
		}
		return MessageContent{MsgType: MsgTypeText, Body: msg.Text + "\n" + line}
	}

	return MessageContent{MsgType: MsgTypeText, Body: msg.Text}
}

// noticeHTML renders a notice as a bold title, a paragraph, and a list
// of fields.
func noticeHTML(notice platform.Notice) (string, bool) {
	var source strings.Builder
	if notice.Title != "" {
		source.WriteString("**" + notice.Title + "**\n\n")
	}
	if notice.Body != "" {
		source.WriteString(notice.Body + "\n\n")
	}
	for _, field := range notice.Fields {
		source.WriteString("- **" + field.Name + ":** " + field.Value + "\n")
	}
	var out bytes.Buffer
	if err := renderer().Convert([]byte(source.String()), &out); err != nil {
		return "", false
	}
	return strings.TrimSpace(out.String()), true
}

// parseContent extracts text and any attachment from an m.room.message
// event.
func parseContent(event Event) (string, *platform.Attachment) {
	body := event.contentString("body")
	switch event.contentString("msgtype") {
	case MsgTypeFile, MsgTypeImage, "m.video", "m.audio":
		url := event.contentString("url")
		if url == "" {
			return body, nil
		}
		attachment := &platform.Attachment{URL: url, Name: event.contentString("filename")}
		if attachment.Name == "" {
			attachment.Name = body
		}
		if info, ok := event.Content["info"].(map[string]any); ok {
			attachment.ContentType, _ = info["mimetype"].(string)
		}
		// body is the file name unless a separate filename carries it.
		text := ""
		if event.contentString("filename") != "" && body != attachment.Name {
			text = body
		}
		return text, attachment
	}
	return body, nil
}
