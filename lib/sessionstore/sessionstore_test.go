// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/codec"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/store"
)

var epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func sampleState() platform.SessionState {
	return platform.SessionState{
		ActiveTicketID: 12,
		Step:           "relay",
		CategoryID:     "essay",
		Answers:        map[string]string{"topic": "rivers", "deadline": "Today"},
	}
}

func checkState(t *testing.T, got platform.SessionState) {
	t.Helper()
	want := sampleState()
	if got.ActiveTicketID != want.ActiveTicketID || got.Step != want.Step || got.CategoryID != want.CategoryID {
		t.Errorf("state = %+v, want %+v", got, want)
	}
	if len(got.Answers) != 2 || got.Answers["topic"] != "rivers" {
		t.Errorf("answers = %v", got.Answers)
	}
	if !got.UpdatedAt.Equal(epoch) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, epoch)
	}
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "sessions.db"), Clock: fake})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sessions := NewSQLite(s, fake)

	state, err := sessions.GetSessionState(ctx, "100")
	if err != nil {
		t.Fatalf("GetSessionState of unknown session: %v", err)
	}
	if state.ActiveTicketID != 0 || state.Step != "" {
		t.Errorf("unknown session = %+v, want zero", state)
	}

	if err := sessions.SetSessionState(ctx, "100", sampleState()); err != nil {
		t.Fatalf("SetSessionState: %v", err)
	}
	state, err = sessions.GetSessionState(ctx, "100")
	if err != nil {
		t.Fatalf("GetSessionState: %v", err)
	}
	checkState(t, state)

	if err := sessions.SetSessionState(ctx, "100", platform.SessionState{}); err != nil {
		t.Fatalf("clearing session: %v", err)
	}
	state, _ = sessions.GetSessionState(ctx, "100")
	if state.ActiveTicketID != 0 || len(state.Answers) != 0 {
		t.Errorf("cleared session = %+v", state)
	}
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	sessions, err := NewRedis(RedisConfig{Client: client, TTL: 24 * time.Hour, Clock: clock.NewFake(epoch)})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}

	stamped := sampleState()
	stamped.UpdatedAt = epoch
	encoded, err := codec.Marshal(stamped)
	if err != nil {
		t.Fatalf("codec.Marshal: %v", err)
	}

	mock.ExpectGet("ticketbridge:session:100").RedisNil()
	mock.ExpectSet("ticketbridge:session:100", encoded, 24*time.Hour).SetVal("OK")
	mock.ExpectGet("ticketbridge:session:100").SetVal(string(encoded))

	state, err := sessions.GetSessionState(ctx, "100")
	if err != nil {
		t.Fatalf("GetSessionState of unknown session: %v", err)
	}
	if state.ActiveTicketID != 0 {
		t.Errorf("unknown session = %+v", state)
	}
	if err := sessions.SetSessionState(ctx, "100", sampleState()); err != nil {
		t.Fatalf("SetSessionState: %v", err)
	}
	state, err = sessions.GetSessionState(ctx, "100")
	if err != nil {
		t.Fatalf("GetSessionState: %v", err)
	}
	checkState(t, state)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisErrors(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	sessions, err := NewRedis(RedisConfig{Client: client, KeyPrefix: "tb:", Clock: clock.NewFake(epoch)})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	unavailable := errors.New("connection refused")

	mock.ExpectGet("tb:7").SetErr(unavailable)
	if _, err := sessions.GetSessionState(ctx, "7"); !errors.Is(err, unavailable) {
		t.Errorf("GetSessionState error = %v, want wrapped %v", err, unavailable)
	}

	mock.ExpectGet("tb:8").SetVal("not cbor")
	if _, err := sessions.GetSessionState(ctx, "8"); err == nil {
		t.Error("GetSessionState decoded garbage")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNewRedisRequiresClient(t *testing.T) {
	if _, err := NewRedis(RedisConfig{}); err == nil {
		t.Fatal("NewRedis without a client succeeded")
	}
}
