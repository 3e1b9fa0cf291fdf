// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livetouch/callcore/internal/api"
	"github.com/livetouch/callcore/internal/call"
	"github.com/livetouch/callcore/internal/constants"
	"github.com/livetouch/callcore/internal/media"
	"github.com/livetouch/callcore/internal/signaling"
	"github.com/livetouch/callcore/internal/unread"
	"github.com/pion/webrtc/v4"
)

var ErrInvalidPeer = errors.New("invalid chat or peer id")

// Transport is the process-wide signaling socket.
type Transport interface {
	call.Transport
	Connect(ctx context.Context)
	Close()
	OnMessage(fn func(signaling.Message)) (cancel func())
	State() signaling.ConnectionState
}

type ProfileFetcher interface {
	Profile(ctx context.Context, userID int64) (*api.Profile, error)
}

type Options struct {
	SelfID            int64
	Transport         Transport
	Queue             *signaling.Queue
	Media             media.Source
	Constraints       media.Constraints
	NewPeerConnection call.PeerConnectionFactory
	ICE               webrtc.Configuration
	Profiles          ProfileFetcher
	Reporter          call.ErrorReporter
	Unread            *unread.Tracker
	Remote            call.RemoteSink
	Player            call.Player
	// StaleOffer drops incoming offers older than this; zero disables it.
	StaleOffer time.Duration
}

// CallView is what the UI layer renders for the call screen.
type CallView struct {
	Active  bool           `json:"active"`
	Session *call.Snapshot `json:"session,omitempty"`
	Cue     call.Cue       `json:"cue"`
	CueFile string         `json:"cueFile,omitempty"`
	Caller  *api.Profile   `json:"caller,omitempty"`
}

type TransportStatus struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
}

// Application owns the transport, the signal queue and at most one live
// call session.
type Application struct {
	opts   Options
	ring   *call.RingController
	logger *slog.Logger

	mu      sync.Mutex
	session *call.Session
	caller  *api.Profile
	last    *call.Snapshot

	wake        chan struct{}
	runCtx      context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	lookups     sync.WaitGroup
	unsubscribe func()
}

// New wires the production dependencies from configuration.
func New(cfg *api.Config, client *api.Client) (*Application, error) {
	devices, err := media.NewDeviceSource()
	if err != nil {
		return nil, fmt.Errorf("initializing media devices: %w", err)
	}
	factory, err := call.NewPeerConnectionFactory(devices)
	if err != nil {
		return nil, fmt.Errorf("initializing webrtc: %w", err)
	}

	transport := signaling.NewTransport(signaling.TransportConfig{
		URL:                cfg.WSURL,
		UserID:             cfg.UserID,
		InsecureSkipVerify: cfg.SkipCertVerify,
	})

	return NewApplication(Options{
		SelfID:    cfg.UserID,
		Transport: transport,
		Queue:     signaling.NewQueue(),
		Media:     devices,
		Constraints: media.Constraints{
			Audio:  true,
			Video:  true,
			Width:  constants.LocalVideoWidth,
			Height: constants.LocalVideoHeight,
		},
		NewPeerConnection: factory,
		ICE:               cfg.ICESettings().Configuration(),
		Profiles:          client,
		Reporter:          client,
		Unread:            unread.NewTracker(cfg.UserID, client),
		Remote:            media.NewReceiver(),
		StaleOffer:        cfg.StaleOffer,
	}), nil
}

func NewApplication(opts Options) *Application {
	app := &Application{
		opts:   opts,
		ring:   call.NewRingController(opts.Player),
		logger: slog.With("component", "application", "user_id", opts.SelfID),
		wake:   make(chan struct{}, 1),
	}
	app.logger.Info("application service initialized")
	return app
}

// Start connects the transport and begins watching for incoming calls.
func (app *Application) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	app.runCtx = runCtx
	app.cancel = cancel
	app.done = make(chan struct{})

	app.unsubscribe = app.opts.Transport.OnMessage(app.handleMessage)
	app.opts.Transport.Connect(runCtx)

	go app.watchIncoming(runCtx)

	if app.opts.Unread != nil {
		go func() {
			if err := app.opts.Unread.Refresh(runCtx); err != nil {
				app.logger.Warn("failed to load unread chats", "error", err)
				if app.opts.Reporter != nil {
					app.opts.Reporter.Report(runCtx, "loadUnread", err)
				}
			}
		}()
	}
}

func (app *Application) handleMessage(msg signaling.Message) {
	if msg.Type == signaling.TypeMessageNew {
		if app.opts.Unread != nil {
			app.opts.Unread.HandleMessage(msg)
		}
		return
	}
	if !msg.IsCallSignal() {
		return
	}

	// routing and the flush in sessionEnded are serialized on app.mu, so
	// nothing for a finished call is queued after its cleanup
	app.mu.Lock()
	defer app.mu.Unlock()

	switch {
	case app.session != nil && app.session.ChatID() == msg.ChatID:
		app.opts.Queue.Push(msg)
	case msg.Type == signaling.TypeCallEnded:
		removed := app.opts.Queue.RemoveIf(signaling.ChatFilter(msg.ChatID))
		app.logger.Info("call ended before it was answered", "chat_id", msg.ChatID, "sender", msg.Sender, "flushed_signals", removed)
	case msg.Type == signaling.TypeOffer:
		app.opts.Queue.Push(msg)
	case app.opts.Queue.Contains(offerFor(msg.Sender, msg.ChatID)):
		app.opts.Queue.Push(msg)
	default:
		app.logger.Debug("dropping signal for a call that is not live", "type", msg.Type, "chat_id", msg.ChatID, "sender", msg.Sender)
	}
}

func offerFor(sender, chatID int64) func(signaling.Message) bool {
	return func(m signaling.Message) bool {
		return m.Type == signaling.TypeOffer && m.From(sender, chatID)
	}
}

func (app *Application) watchIncoming(ctx context.Context) {
	defer close(app.done)

	notify, unsubscribe := app.opts.Queue.Subscribe()
	defer unsubscribe()

	app.scanIncoming()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-app.wake:
		}
		app.scanIncoming()
	}
}

func isOffer(m signaling.Message) bool {
	return m.Type == signaling.TypeOffer
}

// scanIncoming turns the oldest queued offer into a ringing session when
// no call is live.
func (app *Application) scanIncoming() {
	app.mu.Lock()
	defer app.mu.Unlock()

	for app.session == nil {
		offer, ok := app.opts.Queue.Consume(isOffer)
		if !ok {
			return
		}
		if app.isStale(offer) {
			app.logger.Info("ignoring stale offer", "chat_id", offer.ChatID, "sender", offer.Sender, "timestamp", offer.Timestamp)
			continue
		}

		sess := call.NewIncoming(app.sessionConfig(offer.ChatID, offer.Sender), offer)
		app.session = sess
		app.caller = nil
		app.logger.Info("incoming call", "chat_id", offer.ChatID, "sender", offer.Sender, "call_id", sess.ID())
		app.lookups.Add(1)
		go app.lookupCaller(sess)
	}
}

func (app *Application) isStale(offer signaling.Message) bool {
	if app.opts.StaleOffer <= 0 || offer.Timestamp <= 0 {
		return false
	}
	return time.Since(time.UnixMilli(offer.Timestamp)) > app.opts.StaleOffer
}

func (app *Application) lookupCaller(sess *call.Session) {
	defer app.lookups.Done()
	if app.opts.Profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(app.runCtx, constants.ProfileLookupTimeout)
	defer cancel()

	profile, err := app.opts.Profiles.Profile(ctx, sess.PeerID())
	if err != nil {
		app.logger.Warn("caller profile lookup failed", "peer_id", sess.PeerID(), "error", err)
		return
	}

	app.mu.Lock()
	if app.session == sess {
		app.caller = profile
	}
	app.mu.Unlock()
}

func (app *Application) sessionConfig(chatID, peerID int64) call.Config {
	return call.Config{
		SelfID:            app.opts.SelfID,
		PeerID:            peerID,
		ChatID:            chatID,
		Transport:         app.opts.Transport,
		Queue:             app.opts.Queue,
		Media:             app.opts.Media,
		Constraints:       app.opts.Constraints,
		NewPeerConnection: app.opts.NewPeerConnection,
		ICE:               app.opts.ICE,
		Observer:          app.ring,
		Reporter:          app.opts.Reporter,
		Remote:            app.opts.Remote,
		OnEnded:           app.sessionEnded,
	}
}

func (app *Application) sessionEnded(sess *call.Session) {
	app.mu.Lock()
	if app.session == sess {
		snap := sess.Snapshot()
		app.last = &snap
		app.session = nil
		app.caller = nil
		// signals routed to the session after its own cleanup
		if n := app.opts.Queue.RemoveIf(signaling.ChatFilter(sess.ChatID())); n > 0 {
			app.logger.Debug("flushed late signals", "chat_id", sess.ChatID(), "count", n)
		}
	}
	app.mu.Unlock()

	// offers that arrived during the call are now eligible
	select {
	case app.wake <- struct{}{}:
	default:
	}
}

func (app *Application) current() *call.Session {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.session
}

// StartCall places a call to peerID in chatID.
func (app *Application) StartCall(ctx context.Context, chatID, peerID int64) (call.Snapshot, error) {
	if chatID <= 0 || peerID <= 0 || peerID == app.opts.SelfID {
		return call.Snapshot{}, ErrInvalidPeer
	}

	app.mu.Lock()
	if app.session != nil {
		app.mu.Unlock()
		return call.Snapshot{}, call.ErrBusy
	}
	sess := call.NewOutgoing(app.sessionConfig(chatID, peerID))
	app.session = sess
	app.caller = nil
	app.mu.Unlock()

	app.logger.Info("starting call", "chat_id", chatID, "peer_id", peerID, "call_id", sess.ID())
	if err := sess.Start(ctx); err != nil {
		if sess.State() == call.Idle {
			// never reached the session goroutine
			sess.Close()
		}
		return sess.Snapshot(), fmt.Errorf("starting call: %w", err)
	}
	return sess.Snapshot(), nil
}

func (app *Application) AcceptCall(ctx context.Context) (call.Snapshot, error) {
	sess := app.current()
	if sess == nil {
		return call.Snapshot{}, call.ErrNoSession
	}
	if err := sess.Accept(ctx); err != nil {
		return sess.Snapshot(), fmt.Errorf("accepting call: %w", err)
	}
	return sess.Snapshot(), nil
}

func (app *Application) DeclineCall(ctx context.Context) error {
	sess := app.current()
	if sess == nil {
		return call.ErrNoSession
	}
	if err := sess.Decline(ctx); err != nil {
		return fmt.Errorf("declining call: %w", err)
	}
	return nil
}

func (app *Application) HangUp(ctx context.Context) error {
	sess := app.current()
	if sess == nil {
		return call.ErrNoSession
	}
	if err := sess.HangUp(ctx); err != nil && !errors.Is(err, call.ErrEnded) {
		return fmt.Errorf("hanging up: %w", err)
	}
	return nil
}

func (app *Application) CallState() CallView {
	cue := app.ring.Current()
	view := CallView{Cue: cue, CueFile: cue.File()}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.session != nil {
		snap := app.session.Snapshot()
		view.Active = true
		view.Session = &snap
		view.Caller = app.caller
	} else if app.last != nil {
		last := *app.last
		view.Session = &last
	}
	return view
}

func (app *Application) Signals() []signaling.Message {
	return app.opts.Queue.Snapshot()
}

func (app *Application) TransportStatus() TransportStatus {
	state := app.opts.Transport.State()
	return TransportStatus{State: state.String(), Ready: state == signaling.Open}
}

func (app *Application) UnreadChats() []int64 {
	if app.opts.Unread == nil {
		return []int64{}
	}
	return app.opts.Unread.Snapshot()
}

func (app *Application) MarkRead(chatID int64) bool {
	if app.opts.Unread == nil {
		return false
	}
	return app.opts.Unread.Remove(chatID)
}

// Shutdown releases the live session without notifying the peer, then
// closes the transport.
func (app *Application) Shutdown() {
	if sess := app.current(); sess != nil {
		sess.Close()
	}

	if app.cancel != nil {
		app.cancel()
		<-app.done
		app.lookups.Wait()
	}
	if app.unsubscribe != nil {
		app.unsubscribe()
	}
	app.opts.Transport.Close()
	app.logger.Info("application shutdown complete")
}
