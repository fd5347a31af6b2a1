// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:6167"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client == nil {
			t.Fatal("NewClient returned nil")
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		if err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{HomeserverURL: "://invalid"})
		if err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})
}

func TestLogin(t *testing.T) {
	h := newHomeserver(t)
	h.reply("POST /_matrix/client/v3/login", http.StatusOK, map[string]string{
		"user_id":      "@bot:fake",
		"access_token": "abc",
		"device_id":    "DEV",
	})
	h.reply("GET /_matrix/client/v3/account/whoami", http.StatusOK, map[string]string{"user_id": "@bot:fake"})

	client, err := NewClient(ClientConfig{HomeserverURL: h.server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.Login(context.Background(), "bot", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.UserID() != "@bot:fake" {
		t.Errorf("UserID = %q, want @bot:fake", session.UserID())
	}

	logins := h.find(http.MethodPost, "/_matrix/client/v3/login")
	if len(logins) != 1 {
		t.Fatalf("login requests = %d, want 1", len(logins))
	}
	if logins[0].Body["type"] != "m.login.password" || logins[0].Body["user"] != "bot" || logins[0].Body["password"] != "hunter2" {
		t.Errorf("login body = %v", logins[0].Body)
	}

	userID, err := session.WhoAmI(context.Background())
	if err != nil || userID != "@bot:fake" {
		t.Errorf("WhoAmI = %q, %v", userID, err)
	}

	if _, err := client.Login(context.Background(), "", "x"); err == nil {
		t.Error("Login without username succeeded")
	}
}

func TestAuthorizationHeader(t *testing.T) {
	h := newHomeserver(t)
	h.handle("GET /_matrix/client/v3/account/whoami", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(writer, http.StatusOK, map[string]string{"user_id": "@bot:fake"})
	})
	if _, err := h.session(t).WhoAmI(context.Background()); err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
}

func TestMatrixErrors(t *testing.T) {
	h := newHomeserver(t)
	h.handle("GET /_matrix/client/v3/account/whoami", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>bad gateway</html>"))
	})
	h.reply("GET /_matrix/client/v3/sync", http.StatusTooManyRequests, map[string]any{
		"errcode":        ErrCodeLimitExceeded,
		"error":          "slow down",
		"retry_after_ms": 1500,
	})
	session := h.session(t)

	_, err := session.WhoAmI(context.Background())
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("WhoAmI error = %v, want *MatrixError", err)
	}
	if matrixErr.StatusCode != http.StatusBadGateway || matrixErr.Code != ErrCodeUnknown {
		t.Errorf("error = %+v, want 502 M_UNKNOWN", matrixErr)
	}
	if !errors.Is(translate("whoami", err), platform.ErrTransient) {
		t.Errorf("502 should translate to a transient failure")
	}

	_, err = session.Sync(context.Background(), SyncOptions{})
	if !IsMatrixError(err, ErrCodeLimitExceeded) {
		t.Fatalf("Sync error = %v, want M_LIMIT_EXCEEDED", err)
	}
	translated := translate("sync", err)
	if !platform.IsRetryable(translated) {
		t.Errorf("rate limit should be retryable")
	}
	if got := platform.RetryAfterHint(translated); got != 1500*time.Millisecond {
		t.Errorf("RetryAfterHint = %v, want 1.5s", got)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want platform.Kind
	}{
		{"forbidden", &MatrixError{Code: ErrCodeForbidden, StatusCode: 403}, platform.KindPermission},
		{"unknown token", &MatrixError{Code: ErrCodeUnknownToken, StatusCode: 401}, platform.KindPermission},
		{"not found", &MatrixError{Code: ErrCodeNotFound, StatusCode: 404}, platform.KindNotFound},
		{"limit", &MatrixError{Code: ErrCodeLimitExceeded, StatusCode: 429}, platform.KindTransient},
		{"bad param", &MatrixError{Code: ErrCodeInvalidParam, StatusCode: 400}, platform.KindInvalid},
		{"server error", &MatrixError{Code: ErrCodeUnknown, StatusCode: 500}, platform.KindTransient},
		{"plain", errors.New("boom"), platform.KindUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := platform.Classify(translate("op", test.err)); got != test.want {
				t.Errorf("Classify = %s, want %s", got, test.want)
			}
		})
	}
	if translate("op", nil) != nil {
		t.Error("translate(nil) != nil")
	}
}
