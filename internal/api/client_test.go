// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler, access, refresh string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&Config{APIURL: srv.URL, AccessToken: access, RefreshToken: refresh})
}

func TestProfileSendsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/7/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "name": "Alice"})
	})
	c := newTestClient(t, mux, "access-1", "")

	p, err := c.Profile(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 7 || p.Name != "Alice" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestRefreshOnceThenRetry(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "access-2"})
	})
	mux.HandleFunc("GET /chats/unread", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"unread":[3,5]}`))
	})
	c := newTestClient(t, mux, "expired", "refresh-1")

	ids, err := c.UnreadChats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 5 {
		t.Fatalf("unread = %v", ids)
	}
	if refreshes.Load() != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes.Load())
	}
	if c.AccessToken() != "access-2" {
		t.Fatalf("access token = %q", c.AccessToken())
	}
}

func TestRefreshFailureClearsCredentials(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /chats/unread", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux, "expired", "stale")

	_, err := c.UnreadChats(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("request retried %d times without a new token", calls.Load()-1)
	}
	if c.AccessToken() != "" {
		t.Fatal("credentials not cleared")
	}
}

func TestNoRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/1/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux, "", "")

	_, err := c.Profile(context.Background(), 1)
	if !errors.Is(err, ErrNoRefreshToken) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}

func TestStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/1/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux, "a", "r")

	_, err := c.Profile(context.Background(), 1)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want StatusError 404", err)
	}
}

func TestLogErrorPayload(t *testing.T) {
	got := make(chan map[string]any, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /errors/log", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
	})
	c := newTestClient(t, mux, "a", "")

	c.Report(context.Background(), "setRemoteDescription", errors.New("bad sdp"))

	select {
	case body := <-got:
		if body["functionName"] != "GO setRemoteDescription" || body["message"] != "call error" {
			t.Fatalf("body = %v", body)
		}
		detail, _ := body["error"].(map[string]any)
		if detail["message"] != "bad sdp" {
			t.Fatalf("error detail = %v", body["error"])
		}
		if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
			t.Fatalf("timestamp: %v", err)
		}
	default:
		t.Fatal("no report received")
	}
}
