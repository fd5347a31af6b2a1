// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the staff side of the ticket bridge: a Matrix
// client-server API client and the [Staff] adapter that implements
// platform.ChannelPlatform on top of it.
//
// [Client] is unauthenticated and holds the homeserver URL and HTTP
// transport. [Client.Login] and [Client.SessionFromToken] return a
// [Session], which carries the access token and exposes the handful of
// endpoints the bridge needs: room creation, invites, message and
// state events, history, membership, and /sync.
//
// Each ticket gets its own room. [Staff] creates it (optionally as a
// child of a support space), posts into it, locks it read-only by
// raising events_default in m.room.power_levels, and reports members
// with their power-level roles. [Listener] long-polls /sync and hands
// every new m.room.message from someone other than the bot to a
// handler.
//
// API errors are returned as [*MatrixError]; the Staff adapter wraps
// them in *platform.Error so the bridge can decide whether to retry.
// Request URLs are built by string concatenation rather than url.URL to
// avoid double-encoding room IDs.
package messaging
