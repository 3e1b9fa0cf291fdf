// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/livetouch/callcore/internal/constants"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrForbidden      = errors.New("forbidden")
)

type StatusError struct {
	Method string
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d", e.Method, e.Path, e.Status)
}

type Profile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Client talks to the REST backend with bearer credentials. A 401 or 403
// triggers one token refresh and one retry of the request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewClient(cfg *Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SkipCertVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL: cfg.APIURL,
		httpClient: &http.Client{
			Timeout:   constants.HTTPTimeout,
			Transport: transport,
		},
		logger:       slog.With("component", "api_client"),
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}
}

func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Profile fetches the public profile of userID.
func (c *Client) Profile(ctx context.Context, userID int64) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/auth/%d/profile", userID), nil, &p); err != nil {
		return nil, fmt.Errorf("fetching profile %d: %w", userID, err)
	}
	return &p, nil
}

// UnreadChats returns the ids of chats with unread messages.
func (c *Client) UnreadChats(ctx context.Context) ([]int64, error) {
	var resp struct {
		Unread []int64 `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats/unread", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching unread chats: %w", err)
	}
	return resp.Unread, nil
}

type errorReport struct {
	Message      string         `json:"message"`
	FunctionName string         `json:"functionName"`
	Error        errorDetail    `json:"error"`
	Timestamp    string         `json:"timestamp"`
	Context      map[string]any `json:"context,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
}

// LogError posts an error to the backend error log.
func (c *Client) LogError(ctx context.Context, message, fn string, cause error, extra map[string]any) error {
	detail := errorDetail{Message: "no error"}
	if cause != nil {
		detail.Message = cause.Error()
	}
	report := errorReport{
		Message:      message,
		FunctionName: "GO " + fn,
		Error:        detail,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Context:      extra,
	}
	if err := c.do(ctx, http.MethodPost, "/errors/log", report, nil); err != nil {
		return fmt.Errorf("posting error log: %w", err)
	}
	return nil
}

// Report sends a call error to the error log. Failures are only logged.
func (c *Client) Report(ctx context.Context, fn string, err error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ErrorReportTimeout)
	defer cancel()

	if logErr := c.LogError(ctx, "call error", fn, err, map[string]any{"component": "call"}); logErr != nil {
		c.logger.Warn("failed to report error", "function", fn, "error", logErr)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling body: %w", err)
		}
	}

	respBody, err := c.send(ctx, method, path, payload)
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			return fmt.Errorf("%w (refresh: %w)", err, refreshErr)
		}
		respBody, err = c.send(ctx, method, path, payload)
	}
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Warn("request failed", "method", method, "path", path, "status", resp.StatusCode, "body", string(respBody))
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	}
	return respBody, nil
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"token": refreshToken})
	if err != nil {
		return fmt.Errorf("marshaling refresh body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.mu.Lock()
		c.accessToken = ""
		c.refreshToken = ""
		c.mu.Unlock()
		c.logger.Warn("session expired, credentials cleared", "status", resp.StatusCode)
		return &StatusError{Method: http.MethodPost, Path: "/auth/refresh", Status: resp.StatusCode}
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("parsing refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh response without access token")
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.mu.Unlock()
	c.logger.Info("access token refreshed")
	return nil
}
