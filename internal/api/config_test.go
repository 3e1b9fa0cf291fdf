// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LT_USER_ID", "12")
	t.Setenv("LT_API_URL", "")
	t.Setenv("LT_WS_URL", "")
	t.Setenv("LT_CONTROL_PORT", "")
	t.Setenv("LT_STUN_URLS", "")
	t.Setenv("LT_TURN_URLS", "")
	t.Setenv("LT_STALE_OFFER_SECONDS", "")
	t.Setenv("LT_LOG_LEVEL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.UserID != 12 || cfg.ControlPort != DefaultControlPort || cfg.LogLevel != "info" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.WSURL != "wss://api.livetouch.chat/ws" {
		t.Fatalf("ws url = %q", cfg.WSURL)
	}
	if cfg.StaleOffer != 0 {
		t.Fatalf("stale offer = %v", cfg.StaleOffer)
	}
	ice := cfg.ICESettings()
	if len(ice.StunServers) != 1 || ice.StunServers[0].URLs[0] != DefaultSTUNURL || len(ice.TurnServers) != 0 {
		t.Fatalf("ice = %+v", ice)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LT_USER_ID", "3")
	t.Setenv("LT_API_URL", "http://localhost:8080/")
	t.Setenv("LT_WS_URL", "")
	t.Setenv("LT_TURN_URLS", "turn:relay:3478?transport=udp, turn:relay:3478?transport=tcp")
	t.Setenv("LT_TURN_USERNAME", "u")
	t.Setenv("LT_TURN_CREDENTIAL", "p")
	t.Setenv("LT_STALE_OFFER_SECONDS", "15")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != "http://localhost:8080" || cfg.WSURL != "ws://localhost:8080/ws" {
		t.Fatalf("urls = %q %q", cfg.APIURL, cfg.WSURL)
	}
	if cfg.StaleOffer != 15*time.Second {
		t.Fatalf("stale offer = %v", cfg.StaleOffer)
	}
	turn := cfg.ICESettings().TurnServers
	if len(turn) != 1 || len(turn[0].URLs) != 2 || turn[0].Username != "u" {
		t.Fatalf("turn = %+v", turn)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("LT_USER_ID", "")
	t.Setenv("LT_STALE_OFFER_SECONDS", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing user id accepted")
	}

	t.Setenv("LT_USER_ID", "abc")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("non-numeric user id accepted")
	}

	t.Setenv("LT_USER_ID", "1")
	t.Setenv("LT_STALE_OFFER_SECONDS", "-1")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("negative stale offer accepted")
	}
}
