// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telegram is the customer platform adapter, built on the
// Telegram Bot API.
//
// A customer session is a private chat; its session ref is the chat ID
// in decimal. Telegram keeps no conversation state for the bot, so
// session state is delegated to a [sessionstore.Store].
//
// [Client.Poll] long-polls getUpdates and hands each private message
// to a handler as an [Inbound]. Bot API failures are translated into
// *platform.Error values so the bridge's retry policy can classify
// them; a 429 carries the retry_after the API asked for.
package telegram
