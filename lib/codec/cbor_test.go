// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sessionLike struct {
	Step      string            `cbor:"step"`
	TicketID  int64             `cbor:"ticket_id,omitempty"`
	Answers   map[string]string `cbor:"answers,omitempty"`
	UpdatedAt time.Time         `cbor:"updated_at"`
}

func TestRoundtripKeepsSubsecondTime(t *testing.T) {
	original := sessionLike{
		Step:      "question",
		TicketID:  42,
		Answers:   map[string]string{"subject": "physics", "deadline": "friday"},
		UpdatedAt: time.Date(2026, 4, 1, 9, 15, 30, 123456789, time.UTC),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sessionLike
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.UpdatedAt.Equal(original.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", decoded.UpdatedAt, original.UpdatedAt)
	}
	if decoded.Step != original.Step || decoded.TicketID != original.TicketID || len(decoded.Answers) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"step": "idle", "future_field": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sessionLike
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Step != "idle" {
		t.Errorf("Step = %q, want idle", decoded.Step)
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Errorf("nested value %T, want map[string]any", outer["outer"])
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]string{"step": "idle"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"step"`) {
		t.Errorf("Diagnose = %s", text)
	}
}
