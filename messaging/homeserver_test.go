// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// recorded is one request seen by the fake homeserver.
type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

// homeserver is a scripted Matrix homeserver. Routes are keyed by
// "METHOD /decoded/path"; a key ending in "/" matches any path with
// that prefix.
type homeserver struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recorded
}

func newHomeserver(t *testing.T) *homeserver {
	t.Helper()
	h := &homeserver{t: t, routes: make(map[string]http.HandlerFunc)}
	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

func (h *homeserver) handle(key string, handler http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[key] = handler
}

// reply registers a route answering status with body as JSON.
func (h *homeserver) reply(key string, status int, body any) {
	h.handle(key, func(writer http.ResponseWriter, _ *http.Request) {
		writeJSON(writer, status, body)
	})
}

func (h *homeserver) serve(writer http.ResponseWriter, request *http.Request) {
	entry := recorded{Method: request.Method, Path: request.URL.Path, Query: map[string]string{}}
	for key := range request.URL.Query() {
		entry.Query[key] = request.URL.Query().Get(key)
	}
	if request.Body != nil {
		json.NewDecoder(request.Body).Decode(&entry.Body)
	}

	key := request.Method + " " + request.URL.Path
	h.mu.Lock()
	h.requests = append(h.requests, entry)
	handler, ok := h.routes[key]
	if !ok {
		best := ""
		for route := range h.routes {
			if strings.HasSuffix(route, "/") && strings.HasPrefix(key, route) && len(route) > len(best) {
				best = route
			}
		}
		handler, ok = h.routes[best], best != ""
	}
	h.mu.Unlock()

	if !ok {
		h.t.Errorf("unexpected request %s", key)
		writeJSON(writer, http.StatusNotFound, map[string]string{"errcode": ErrCodeUnknown, "error": "no route"})
		return
	}
	handler(writer, request)
}

// find returns the recorded requests matching method and path prefix.
func (h *homeserver) find(method, pathPrefix string) []recorded {
	h.mu.Lock()
	defer h.mu.Unlock()
	var found []recorded
	for _, entry := range h.requests {
		if entry.Method == method && strings.HasPrefix(entry.Path, pathPrefix) {
			found = append(found, entry)
		}
	}
	return found
}

func (h *homeserver) session(t *testing.T) *Session {
	t.Helper()
	client, err := NewClient(ClientConfig{HomeserverURL: h.server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client.SessionFromToken("@bot:fake", "secret-token")
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(body)
}
