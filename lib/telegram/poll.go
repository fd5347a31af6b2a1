// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// Inbound is one customer message.
type Inbound struct {
	SessionRef  string
	UserID      string
	DisplayName string

	// MessageID is unique within the chat.
	MessageID string

	Text       string
	Attachment *platform.Attachment
	SentAt     time.Time
}

// Handler processes one inbound message. A returned error is logged;
// the update is not redelivered.
type Handler func(ctx context.Context, message Inbound) error

const maxPollBackoff = 30 * time.Second

// Poll long-polls for updates and calls handler for each private
// message, in order, until ctx is done.
func (c *Client) Poll(ctx context.Context, handler Handler) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = int(c.pollTimeout / time.Second)
	config.AllowedUpdates = []string{"message"}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := c.bot.GetUpdates(config)
		if err != nil {
			err = translate("get_updates", err)
			c.logger.Warn("polling telegram failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-c.clock.After(backoff):
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = time.Second

		for _, update := range updates {
			config.Offset = update.UpdateID + 1
			inbound, ok := convert(update)
			if !ok {
				continue
			}
			if err := handler(ctx, inbound); err != nil {
				c.logger.Error("handling customer message failed",
					"session_ref", inbound.SessionRef,
					"message_id", inbound.MessageID,
					"error", err,
				)
			}
		}
	}
}

// convert extracts an Inbound from a private-chat message update.
func convert(update tgbotapi.Update) (Inbound, bool) {
	message := update.Message
	if message == nil || message.Chat == nil || !message.Chat.IsPrivate() || message.From == nil || message.From.IsBot {
		return Inbound{}, false
	}

	inbound := Inbound{
		SessionRef:  strconv.FormatInt(message.Chat.ID, 10),
		UserID:      "tg:" + strconv.FormatInt(message.From.ID, 10),
		DisplayName: displayName(message.From),
		MessageID:   strconv.Itoa(message.MessageID),
		Text:        message.Text,
		SentAt:      message.Time().UTC(),
	}
	if inbound.Text == "" {
		inbound.Text = message.Caption
	}

	switch {
	case message.Document != nil:
		inbound.Attachment = &platform.Attachment{
			URL:         fileScheme + message.Document.FileID,
			Name:        message.Document.FileName,
			ContentType: message.Document.MimeType,
		}
	case len(message.Photo) > 0:
		largest := message.Photo[len(message.Photo)-1]
		inbound.Attachment = &platform.Attachment{
			URL:         fileScheme + largest.FileID,
			Name:        "photo.jpg",
			ContentType: "image/jpeg",
		}
	}

	if inbound.Text == "" && inbound.Attachment == nil {
		return Inbound{}, false
	}
	return inbound, true
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return name
}
