// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds HTTP and network helpers shared by the platform
// adapters.
//
// Response helpers bound every body read at MaxResponseSize so a broken
// server cannot exhaust memory. [IsTransient] decides whether a
// transport failure is worth retrying.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// MaxResponseSize bounds JSON API response body reads: 16 MB.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns an error response body for use in a diagnostic
// message. Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}

// RetryAfter parses a Retry-After header given in whole seconds. It
// returns zero when the header is absent or not a number; HTTP-date
// values are not used by the APIs we talk to.
func RetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
