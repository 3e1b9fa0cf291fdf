// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/livetouch/callcore/internal/signaling"
)

const (
	DefaultAPIURL      = "https://api.livetouch.chat"
	DefaultControlPort = "23000"
	DefaultSTUNURL     = "stun:stun.l.google.com:19302"
)

type Config struct {
	UserID       int64
	APIURL       string
	WSURL        string
	AccessToken  string
	RefreshToken string

	ControlPort  string
	ControlToken string

	STUNURLs       []string
	TURNURLs       []string
	TURNUsername   string
	TURNCredential string

	// StaleOffer drops incoming offers older than this; zero disables it.
	StaleOffer time.Duration

	LogLevel       string
	SkipCertVerify bool
}

// LoadConfig reads the environment. Required values are checked by
// Validate, after command-line overrides have been applied.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		APIURL:         os.Getenv("LT_API_URL"),
		WSURL:          os.Getenv("LT_WS_URL"),
		AccessToken:    os.Getenv("LT_ACCESS_TOKEN"),
		RefreshToken:   os.Getenv("LT_REFRESH_TOKEN"),
		ControlPort:    os.Getenv("LT_CONTROL_PORT"),
		ControlToken:   os.Getenv("LT_CONTROL_TOKEN"),
		STUNURLs:       splitList(os.Getenv("LT_STUN_URLS")),
		TURNURLs:       splitList(os.Getenv("LT_TURN_URLS")),
		TURNUsername:   os.Getenv("LT_TURN_USERNAME"),
		TURNCredential: os.Getenv("LT_TURN_CREDENTIAL"),
		LogLevel:       os.Getenv("LT_LOG_LEVEL"),
	}

	if v := os.Getenv("LT_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("LT_USER_ID must be an integer: %w", err)
		}
		cfg.UserID = id
	}

	if v := os.Getenv("LT_STALE_OFFER_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("LT_STALE_OFFER_SECONDS must be a non-negative integer, got %q", v)
		}
		cfg.StaleOffer = time.Duration(secs) * time.Second
	}

	skipCert := os.Getenv("SKIP_CERT_VERIFY")
	cfg.SkipCertVerify = skipCert == "true" || skipCert == "1"

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.ControlPort == "" {
		cfg.ControlPort = DefaultControlPort
	}
	if len(cfg.STUNURLs) == 0 {
		cfg.STUNURLs = []string{DefaultSTUNURL}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks required values and derives the signaling URL from the
// API URL when it was not given.
func (c *Config) Validate() error {
	if c.UserID <= 0 {
		return fmt.Errorf("LT_USER_ID environment variable is required")
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.WSURL == "" {
		c.WSURL = signaling.SanitizeWebSocketURL(c.APIURL)
	}
	if len(c.TURNURLs) > 0 && (c.TURNUsername == "" || c.TURNCredential == "") {
		return fmt.Errorf("LT_TURN_USERNAME and LT_TURN_CREDENTIAL are required with LT_TURN_URLS")
	}
	return nil
}

func (c *Config) ICESettings() signaling.ICESettings {
	s := signaling.ICESettings{
		StunServers: []signaling.StunServer{{URLs: c.STUNURLs}},
	}
	if len(c.TURNURLs) > 0 {
		s.TurnServers = []signaling.TurnServer{{
			URLs:       c.TURNURLs,
			Username:   c.TURNUsername,
			Credential: c.TURNCredential,
		}}
	}
	return s
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
