// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists customer conversation state.
//
// The customer platform does not keep per-conversation state for the
// bridge, so the bridge stores it: which ticket a conversation is
// attached to and how far the customer got through intake. State is
// CBOR-encoded. [SQLite] keeps it next to the tickets; [Redis] shares
// it between bridge replicas and expires idle sessions.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/codec"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/store"
)

// Store reads and writes session state. Unknown sessions read as the
// zero SessionState.
type Store interface {
	GetSessionState(ctx context.Context, sessionRef string) (platform.SessionState, error)
	SetSessionState(ctx context.Context, sessionRef string, state platform.SessionState) error
}

func decode(sessionRef string, data []byte) (platform.SessionState, error) {
	var state platform.SessionState
	if err := codec.Unmarshal(data, &state); err != nil {
		return platform.SessionState{}, fmt.Errorf("sessionstore: decoding session %s: %w", sessionRef, err)
	}
	return state, nil
}

func encode(sessionRef string, state platform.SessionState) ([]byte, error) {
	data, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: encoding session %s: %w", sessionRef, err)
	}
	return data, nil
}

// SQLite stores sessions in the bridge database.
type SQLite struct {
	store *store.Store
	clock clock.Clock
}

// NewSQLite returns a Store over s. A nil clk uses the real clock.
func NewSQLite(s *store.Store, clk clock.Clock) *SQLite {
	if clk == nil {
		clk = clock.Real()
	}
	return &SQLite{store: s, clock: clk}
}

func (s *SQLite) GetSessionState(ctx context.Context, sessionRef string) (platform.SessionState, error) {
	data, found, err := s.store.LoadSession(ctx, sessionRef)
	if err != nil {
		return platform.SessionState{}, fmt.Errorf("sessionstore: %w", err)
	}
	if !found {
		return platform.SessionState{}, nil
	}
	return decode(sessionRef, data)
}

// SetSessionState stamps UpdatedAt and replaces the stored state.
func (s *SQLite) SetSessionState(ctx context.Context, sessionRef string, state platform.SessionState) error {
	state.UpdatedAt = s.clock.Now().UTC()
	data, err := encode(sessionRef, state)
	if err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, sessionRef, data); err != nil {
		return fmt.Errorf("sessionstore: %w", err)
	}
	return nil
}

// RedisConfig holds the parameters for NewRedis.
type RedisConfig struct {
	// Client is the connection to use. Required.
	Client redis.Cmdable

	// KeyPrefix is prepended to session refs. Defaults to
	// "ticketbridge:session:".
	KeyPrefix string

	// TTL expires sessions not written for this long. Zero keeps them
	// forever.
	TTL time.Duration

	Clock clock.Clock
}

// Redis stores sessions as Redis strings.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	clock  clock.Clock
}

// NewRedis returns a Store over cfg.Client.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("sessionstore: Redis client is required")
	}
	r := &Redis{client: cfg.Client, prefix: cfg.KeyPrefix, ttl: cfg.TTL, clock: cfg.Clock}
	if r.prefix == "" {
		r.prefix = "ticketbridge:session:"
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	return r, nil
}

// DialRedis connects to the server at url (redis:// or rediss://) and
// checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: parsing Redis URL: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("sessionstore: connecting to Redis at %s: %w", options.Addr, err)
	}
	return client, nil
}

func (r *Redis) key(sessionRef string) string { return r.prefix + sessionRef }

func (r *Redis) GetSessionState(ctx context.Context, sessionRef string) (platform.SessionState, error) {
	data, err := r.client.Get(ctx, r.key(sessionRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return platform.SessionState{}, nil
	}
	if err != nil {
		return platform.SessionState{}, fmt.Errorf("sessionstore: reading session %s: %w", sessionRef, err)
	}
	return decode(sessionRef, data)
}

// SetSessionState stamps UpdatedAt, replaces the stored state, and
// restarts the TTL.
func (r *Redis) SetSessionState(ctx context.Context, sessionRef string, state platform.SessionState) error {
	state.UpdatedAt = r.clock.Now().UTC()
	data, err := encode(sessionRef, state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(sessionRef), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: writing session %s: %w", sessionRef, err)
	}
	return nil
}
