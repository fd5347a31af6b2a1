// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/netutil"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/sessionstore"
)

const platformName = "telegram"

// fileScheme prefixes attachment URLs that name a Telegram file ID
// rather than a fetchable URL. Direct download URLs embed the bot
// token and are never handed out.
const fileScheme = "tg-file:"

// Config holds the parameters for New.
type Config struct {
	// Token is the bot token. Required.
	Token string

	// APIEndpoint is a format string taking the token and the method
	// name. Defaults to tgbotapi.APIEndpoint.
	APIEndpoint string

	HTTPClient *http.Client

	// Sessions holds per-chat state. Required.
	Sessions sessionstore.Store

	// PollTimeout is the getUpdates long-poll duration. Defaults to 50s.
	PollTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client implements platform.CustomerPlatform over the Bot API.
type Client struct {
	bot         *tgbotapi.BotAPI
	sessions    sessionstore.Store
	pollTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New authenticates the bot with getMe and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: Token is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("telegram: Sessions is required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, httpClient)
	if err != nil {
		return nil, translate("get_me", err)
	}

	c := &Client{
		bot:         bot,
		sessions:    cfg.Sessions,
		pollTimeout: cfg.PollTimeout,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 50 * time.Second
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger.Info("telegram bot authenticated", "username", bot.Self.UserName)
	return c, nil
}

// Username returns the bot's username.
func (c *Client) Username() string { return c.bot.Self.UserName }

// SendMessage delivers msg to the chat named by sessionRef.
func (c *Client) SendMessage(ctx context.Context, sessionRef string, msg platform.OutboundMessage) (string, error) {
	chatID, err := strconv.ParseInt(sessionRef, 10, 64)
	if err != nil {
		return "", &platform.Error{Platform: platformName, Op: "send", Kind: platform.KindInvalid,
			Err: fmt.Errorf("session ref %q is not a chat ID", sessionRef)}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := msg.Text
	if msg.Notice != nil {
		text = msg.Notice.Plain()
	}

	var chattable tgbotapi.Chattable
	if msg.Attachment != nil {
		document := tgbotapi.NewDocument(chatID, fileData(*msg.Attachment))
		document.Caption = text
		chattable = document
	} else {
		message := tgbotapi.NewMessage(chatID, text)
		message.DisableWebPagePreview = true
		chattable = message
	}

	sent, err := c.bot.Send(chattable)
	if err != nil {
		return "", translate("send", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func fileData(attachment platform.Attachment) tgbotapi.RequestFileData {
	if id, ok := strings.CutPrefix(attachment.URL, fileScheme); ok {
		return tgbotapi.FileID(id)
	}
	return tgbotapi.FileURL(attachment.URL)
}

func (c *Client) GetSessionState(ctx context.Context, sessionRef string) (platform.SessionState, error) {
	return c.sessions.GetSessionState(ctx, sessionRef)
}

func (c *Client) SetSessionState(ctx context.Context, sessionRef string, state platform.SessionState) error {
	return c.sessions.SetSessionState(ctx, sessionRef, state)
}

// translate classifies a Bot API failure.
func translate(op string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		kind := platform.KindForStatus(apiErr.Code)
		if apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "not found") {
			kind = platform.KindNotFound
		}
		return &platform.Error{
			Platform:   platformName,
			Op:         op,
			Kind:       kind,
			StatusCode: apiErr.Code,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        errors.New(apiErr.Message),
		}
	}
	kind := platform.KindUnknown
	if netutil.IsTransient(err) {
		kind = platform.KindTransient
	}
	return &platform.Error{Platform: platformName, Op: op, Kind: kind, Err: err}
}
