// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, fmt.Errorf("simulated read failure") }

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(bytes.NewReader([]byte(`{"event_id":"$abc"}`)))
	if err != nil || string(data) != `{"event_id":"$abc"}` {
		t.Fatalf("ReadResponse = %q, %v", data, err)
	}
	if _, err := ReadResponse(failReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestDecodeResponse(t *testing.T) {
	var result struct {
		RoomID string `json:"room_id"`
	}
	if err := DecodeResponse(bytes.NewReader([]byte(`{"room_id":"!r:example.org"}`)), &result); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if result.RoomID != "!r:example.org" {
		t.Errorf("RoomID = %q", result.RoomID)
	}
	if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &result); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if err := DecodeResponse(failReader{}, &result); err == nil {
		t.Error("expected error from failing reader")
	}
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(bytes.NewReader([]byte(`{"errcode":"M_FORBIDDEN"}`))); got != `{"errcode":"M_FORBIDDEN"}` {
		t.Errorf("ErrorBody = %q", got)
	}
	if got := ErrorBody(failReader{}); got != "" {
		t.Errorf("ErrorBody(failing) = %q, want empty", got)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, test := range tests {
		header := http.Header{}
		if test.value != "" {
			header.Set("Retry-After", test.value)
		}
		if got := RetryAfter(header); got != test.want {
			t.Errorf("RetryAfter(%q) = %v, want %v", test.value, got, test.want)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutError{}}, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, true},
		{"dns not found", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"plain", errors.New("bad request"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.want {
				t.Errorf("IsTransient(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestIsTransientStatus(t *testing.T) {
	for code, want := range map[int]bool{
		200: false, 400: false, 403: false, 404: false,
		429: true, 500: true, 501: false, 502: true, 503: true, 504: true,
	} {
		if got := IsTransientStatus(code); got != want {
			t.Errorf("IsTransientStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
