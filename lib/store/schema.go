// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	category_id  TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	amount       INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
	claimed_by   TEXT,
	channel_ref  TEXT,
	session_ref  TEXT,
	completed_at INTEGER,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	CHECK (amount = 0 OR claimed_by IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS tickets_by_channel ON tickets (channel_ref);
CREATE INDEX IF NOT EXISTS tickets_by_session ON tickets (session_ref, status);
CREATE INDEX IF NOT EXISTS tickets_by_worker ON tickets (claimed_by, status);

CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id      INTEGER NOT NULL,
	direction      TEXT NOT NULL,
	author         TEXT NOT NULL,
	body           TEXT NOT NULL,
	attachment_url TEXT,
	fingerprint    TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	UNIQUE (ticket_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_ref TEXT PRIMARY KEY,
	state       BLOB NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transcripts (
	ticket_id     INTEGER PRIMARY KEY,
	encoding      TEXT NOT NULL,
	body          BLOB NOT NULL,
	raw_size      INTEGER NOT NULL,
	message_count INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id           TEXT PRIMARY KEY,
	worker_id    TEXT NOT NULL,
	ticket_id    INTEGER,
	category_id  TEXT,
	amount       INTEGER NOT NULL,
	kind         TEXT NOT NULL CHECK (kind IN ('ticket_payment', 'manual_adjustment')),
	status       TEXT NOT NULL CHECK (status IN ('pending', 'confirmed')),
	reason       TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	confirmed_at INTEGER,
	confirmed_by TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ledger_one_payment_per_worker
	ON ledger_entries (ticket_id, worker_id)
	WHERE kind = 'ticket_payment' AND status = 'confirmed';
CREATE INDEX IF NOT EXISTS ledger_by_worker ON ledger_entries (worker_id, confirmed_at);
CREATE INDEX IF NOT EXISTS ledger_by_confirmed ON ledger_entries (confirmed_at);

CREATE TABLE IF NOT EXISTS worker_summaries (
	worker_id       TEXT PRIMARY KEY,
	total_earnings  INTEGER NOT NULL DEFAULT 0,
	total_tickets   INTEGER NOT NULL DEFAULT 0,
	last_earning_at INTEGER,
	updated_at      INTEGER NOT NULL
);
`
