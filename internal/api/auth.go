// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const ControlTokenHeader = "X-Control-Token"

// AuthMiddleware guards the control API with a shared token. An empty
// token disables the check.
func AuthMiddleware(cfg *Config, skipPaths map[string]bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.ControlToken == "" || skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(ControlTokenHeader)
		if got == "" {
			slog.Warn("missing control token", "path", r.URL.Path)
			http.Error(w, `{"error": "missing authentication headers"}`, http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.ControlToken)) != 1 {
			slog.Warn("invalid control token", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, `{"error": "invalid control token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
