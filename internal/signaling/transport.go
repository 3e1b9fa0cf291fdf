// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livetouch/callcore/internal/constants"
)

var (
	ErrNotOpen     = errors.New("signaling connection is not open")
	ErrMalformed   = errors.New("malformed signal")
	ErrUnknownType = errors.New("unknown frame type")
)

type TransportConfig struct {
	URL                string
	UserID             int64
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	InsecureSkipVerify bool
}

// Transport owns the single signaling socket. It reconnects with bounded
// exponential backoff until Close is called and delivery is at-most-once:
// frames sent while the socket is not open are dropped.
type Transport struct {
	mu      sync.Mutex
	cfg     TransportConfig
	dialer  websocket.Dialer
	conn    *websocket.Conn
	state   ConnectionState
	attempt int
	cancel  context.CancelFunc
	done    chan struct{}

	handlersMu  sync.RWMutex
	handlers    map[uint64]func(Message)
	nextHandler uint64

	logger *slog.Logger
}

func NewTransport(cfg TransportConfig) *Transport {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = constants.ReconnectBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = constants.ReconnectMaxDelay
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: constants.WSHandshakeTimeout,
	}
	if cfg.InsecureSkipVerify && strings.HasPrefix(cfg.URL, "wss://") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Transport{
		cfg:      cfg,
		dialer:   dialer,
		handlers: make(map[uint64]func(Message)),
		logger:   slog.With("component", "signal_transport", "user_id", cfg.UserID),
	}
}

// Backoff returns the delay before reconnect attempt n:
// min(maxDelay, base * 2^n).
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		if d >= maxDelay {
			return maxDelay
		}
		d *= 2
	}
	return min(d, maxDelay)
}

// Connect starts the connection loop. It returns immediately; readiness is
// observable through Ready and State.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.logger.Debug("already connecting, skipping")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, t.done)
}

// Close marks the closure as user-initiated: the socket is closed and any
// pending reconnect is cancelled before Close returns.
func (t *Transport) Close() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	if t.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.logger.Info("signaling transport closed")
}

func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Ready() bool {
	return t.State() == Open
}

// Attempt returns the number of consecutive failed connections.
func (t *Transport) Attempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}

// OnMessage subscribes fn to every decoded inbound frame. Handlers run on
// the read goroutine and must not block.
func (t *Transport) OnMessage(fn func(Message)) (cancel func()) {
	t.handlersMu.Lock()
	t.nextHandler++
	id := t.nextHandler
	t.handlers[id] = fn
	t.handlersMu.Unlock()

	return func() {
		t.handlersMu.Lock()
		delete(t.handlers, id)
		t.handlersMu.Unlock()
	}
}

// Send writes msg if the socket is open and returns ErrNotOpen otherwise.
func (t *Transport) Send(msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Open || t.conn == nil {
		t.logger.Debug("dropping outbound signal, socket not open", "type", msg.Type, "state", t.state.String())
		return ErrNotOpen
	}
	if err := t.writeLocked(msg); err != nil {
		t.logger.Error("failed to send message", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

func (t *Transport) writeLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (t *Transport) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t.logger.Debug("signaling loop started")
	defer t.logger.Debug("signaling loop stopped")

	for {
		t.setState(Connecting)
		err := t.dialAndServe(ctx)
		t.setState(Disconnected)

		if ctx.Err() != nil {
			return
		}

		t.mu.Lock()
		t.attempt++
		attempt := t.attempt
		t.mu.Unlock()

		delay := Backoff(attempt, t.cfg.BaseDelay, t.cfg.MaxDelay)
		t.logger.Warn("signaling connection lost, scheduling reconnect",
			"error", err,
			"attempt", attempt,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) dialAndServe(ctx context.Context) error {
	t.logger.Debug("dialing signaling server", "url", t.cfg.URL)
	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	t.mu.Lock()
	if ctx.Err() != nil {
		t.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	t.conn = conn
	t.state = Open
	t.attempt = 0
	// the server re-associates the socket with the user on every open
	err = t.writeLocked(initMessage{UserID: t.cfg.UserID, Type: TypeInit})
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		conn.Close()
	}()

	if err != nil {
		return fmt.Errorf("send init: %w", err)
	}
	t.logger.Info("signaling connection open")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}

		msg, err := DecodeMessage(data)
		if errors.Is(err, ErrUnknownType) {
			t.logger.Debug("skipping frame", "error", err)
			continue
		}
		if err != nil {
			t.logger.Warn("discarding malformed frame", "error", err)
			continue
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg Message) {
	t.handlersMu.RLock()
	handlers := make([]func(Message), 0, len(t.handlers))
	for _, fn := range t.handlers {
		handlers = append(handlers, fn)
	}
	t.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(msg)
	}
}

func (t *Transport) setState(s ConnectionState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

var httpToWS = regexp.MustCompile(`^http://`)
var httpsToWSS = regexp.MustCompile(`^https://`)

// SanitizeWebSocketURL turns an API base URL into the signaling endpoint.
func SanitizeWebSocketURL(raw string) string {
	raw = httpToWS.ReplaceAllString(raw, "ws://")
	raw = httpsToWSS.ReplaceAllString(raw, "wss://")
	raw = strings.TrimRight(raw, "/")
	if !strings.HasSuffix(raw, "/ws") {
		raw += "/ws"
	}
	return raw
}
