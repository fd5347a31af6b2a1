// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/netutil"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

const platformName = "matrix"

// MatrixError represents a structured error response from the Matrix homeserver.
// Callers can use errors.As to extract the structured information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeNotFound { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_LIMIT_EXCEEDED").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMs accompanies M_LIMIT_EXCEEDED.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// translate classifies err as a *platform.Error for op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		kind := platform.KindForStatus(matrixErr.StatusCode)
		switch matrixErr.Code {
		case ErrCodeLimitExceeded:
			kind = platform.KindTransient
		case ErrCodeNotFound:
			kind = platform.KindNotFound
		case ErrCodeForbidden, ErrCodeUnknownToken:
			kind = platform.KindPermission
		}
		return &platform.Error{
			Platform:   platformName,
			Op:         op,
			Kind:       kind,
			StatusCode: matrixErr.StatusCode,
			RetryAfter: time.Duration(matrixErr.RetryAfterMs) * time.Millisecond,
			Err:        err,
		}
	}
	kind := platform.KindUnknown
	if netutil.IsTransient(err) {
		kind = platform.KindTransient
	}
	return &platform.Error{Platform: platformName, Op: op, Kind: kind, Err: err}
}
