// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livetouch/callcore/internal/media"
	"github.com/livetouch/callcore/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Transport is the outbound half of the signaling transport.
type Transport interface {
	Send(msg signaling.Message) error
	Ready() bool
}

type StateObserver interface {
	CallStateChanged(chatID int64, from, to State)
}

type ErrorReporter interface {
	Report(ctx context.Context, fn string, err error)
}

// RemoteSink receives remote tracks for display; it stops reading when ctx
// is done.
type RemoteSink interface {
	Attach(ctx context.Context, track *webrtc.TrackRemote)
}

type Config struct {
	SelfID int64
	PeerID int64
	ChatID int64

	Transport         Transport
	Queue             *signaling.Queue
	Media             media.Source
	Constraints       media.Constraints
	NewPeerConnection PeerConnectionFactory
	ICE               webrtc.Configuration

	Observer StateObserver
	Reporter ErrorReporter
	Remote   RemoteSink
	// OnEnded runs on the session goroutine once the session is Ended.
	OnEnded func(*Session)
}

// Snapshot is a point-in-time view of a session for the UI layer.
type Snapshot struct {
	CallID            string    `json:"callId"`
	ChatID            int64     `json:"chatId"`
	PeerID            int64     `json:"peerId"`
	Role              Role      `json:"role"`
	State             State     `json:"state"`
	StartedAt         time.Time `json:"startedAt"`
	RemoteTracks      int       `json:"remoteTracks"`
	PendingCandidates int       `json:"pendingCandidates"`
	LastError         string    `json:"lastError,omitempty"`
}

// Session is one call with one peer. All state is owned by a single
// goroutine; transport signals, peer connection callbacks and user commands
// are serialized onto it as events.
type Session struct {
	cfg    Config
	id     string
	role   Role
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	done   chan struct{}

	// owned by the session goroutine
	state             State
	pc                PeerConnection
	stream            *media.Stream
	offer             *webrtc.SessionDescription
	offerProcessed    bool
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	remoteTracks      int
	lastErr           error

	snapMu sync.RWMutex
	snap   Snapshot
}

func newSession(cfg Config, role Role) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &Session{
		cfg:    cfg,
		id:     id,
		role:   role,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(), 64),
		done:   make(chan struct{}),
		logger: slog.With(
			"component", "call_session",
			"call_id", id,
			"chat_id", cfg.ChatID,
			"peer_id", cfg.PeerID,
			"role", role.String(),
		),
	}
	s.snap = Snapshot{
		CallID:    id,
		ChatID:    cfg.ChatID,
		PeerID:    cfg.PeerID,
		Role:      role,
		State:     Idle,
		StartedAt: time.Now(),
	}
	return s
}

// NewOutgoing creates an idle caller session. Start places the call.
func NewOutgoing(cfg Config) *Session {
	s := newSession(cfg, Caller)
	go s.run()
	return s
}

// NewIncoming creates a callee session for offer, already Ringing.
func NewIncoming(cfg Config, offer signaling.Message) *Session {
	s := newSession(cfg, Callee)
	sdp := *offer.Offer
	s.offer = &sdp
	s.setState(Ringing)
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }
func (s *Session) ChatID() int64 { return s.cfg.ChatID }
func (s *Session) PeerID() int64 { return s.cfg.PeerID }
func (s *Session) Role() Role { return s.role }
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.State
}

func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Start acquires local media, creates the peer connection and sends the
// offer. Any failure before the offer is sent ends the session without
// signaling the peer.
func (s *Session) Start(ctx context.Context) error {
	return s.exec(ctx, func() error { return s.start(ctx) })
}

// Accept answers the buffered offer of a ringing session.
func (s *Session) Accept(ctx context.Context) error {
	return s.exec(ctx, func() error { return s.accept(ctx) })
}

// Decline rejects a ringing session.
func (s *Session) Decline(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.role != Callee || s.state != Ringing {
			return fmt.Errorf("decline in %s: %w", s.state, ErrInvalidState)
		}
		s.terminate(true, "declined")
		return nil
	})
}

// HangUp ends the call from this side and tells the peer.
func (s *Session) HangUp(ctx context.Context) error {
	return s.exec(ctx, func() error {
		s.terminate(true, "hangup")
		return nil
	})
}

// Close releases media and the peer connection without telling the peer.
func (s *Session) Close() {
	err := s.exec(context.Background(), func() error {
		s.terminate(false, "closed")
		return nil
	})
	if err != nil && !errors.Is(err, ErrEnded) {
		s.logger.Warn("close failed", "error", err)
	}
}

// exec runs fn on the session goroutine. ctx bounds only the wait for fn to
// be picked up; once queued, fn's own result is returned.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case s.events <- func() { errCh <- fn() }:
	case <-s.done:
		return ErrEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrEnded
		}
	}
}

// post queues fn from a callback goroutine. Events posted after the session
// ended are dropped.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.done)

	notify, unsubscribe := s.cfg.Queue.Subscribe()
	defer unsubscribe()

	s.drain()
	for s.state != Ended {
		select {
		case fn := <-s.events:
			fn()
		case <-notify:
			s.drain()
		}
	}
	s.logger.Debug("session loop stopped")
}

func (s *Session) matches(m signaling.Message) bool {
	return m.IsCallSignal() && m.From(s.cfg.PeerID, s.cfg.ChatID)
}

func (s *Session) drain() {
	for s.state != Ended {
		msg, ok := s.cfg.Queue.Consume(s.matches)
		if !ok {
			return
		}
		s.handleSignal(msg)
	}
}

func (s *Session) handleSignal(msg signaling.Message) {
	s.logger.Debug("signal received", "type", msg.Type, "state", s.state.String())

	switch msg.Type {
	case signaling.TypeOffer:
		s.handleOffer(msg)
	case signaling.TypeAnswer:
		s.handleAnswer(msg)
	case signaling.TypeICECandidate:
		s.handleRemoteCandidate(*msg.Candidate)
	case signaling.TypeCallEnded:
		s.terminate(false, "remote hangup")
	}
}

func (s *Session) start(ctx context.Context) error {
	if s.role != Caller || s.state != Idle {
		return fmt.Errorf("start in %s: %w", s.state, ErrInvalidState)
	}

	stream, err := s.cfg.Media.GetUserMedia(ctx, s.cfg.Constraints)
	if err != nil {
		s.report("startCall", err)
		s.terminate(false, "media acquisition failed")
		return fmt.Errorf("acquire local media: %w", err)
	}
	if err := ctx.Err(); err != nil {
		// abandoned before the offer went out; the peer never heard of it
		s.stream = stream
		s.terminate(false, "start cancelled")
		return fmt.Errorf("start call: %w", err)
	}
	if err := s.setupPeer(stream); err != nil {
		s.report("startCall", err)
		s.terminate(false, "peer setup failed")
		return err
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.report("createOffer", err)
		s.terminate(false, "create offer failed")
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.report("setLocalDescription", err)
		s.terminate(false, "set local description failed")
		return fmt.Errorf("set local description: %w", err)
	}

	s.send(signaling.Message{
		Type:      signaling.TypeOffer,
		Offer:     &offer,
		Timestamp: time.Now().UnixMilli(),
	})
	s.setState(Dialing)
	return nil
}

func (s *Session) accept(ctx context.Context) error {
	if s.role != Callee || s.state != Ringing {
		return fmt.Errorf("accept in %s: %w", s.state, ErrInvalidState)
	}

	stream, err := s.cfg.Media.GetUserMedia(ctx, s.cfg.Constraints)
	if err != nil {
		s.report("acceptCall", err)
		s.terminate(true, "media acquisition failed")
		return fmt.Errorf("acquire local media: %w", err)
	}
	if err := s.setupPeer(stream); err != nil {
		s.report("acceptCall", err)
		s.terminate(true, "peer setup failed")
		return err
	}

	s.setState(Negotiating)
	return s.applyOffer()
}

// setupPeer takes ownership of stream. On error the caller terminates the
// session, which releases both.
func (s *Session) setupPeer(stream *media.Stream) error {
	s.stream = stream

	pc, err := s.cfg.NewPeerConnection(s.cfg.ICE)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		s.post(func() { s.sendCandidate(candidate) })
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.post(func() { s.handleTrack(track) })
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.post(func() { s.handleConnectionState(state) })
	})

	for _, track := range stream.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
	}
	return nil
}

// applyOffer answers the initial offer at most once.
func (s *Session) applyOffer() error {
	if s.offerProcessed {
		s.logger.Debug("initial offer already processed")
		return nil
	}
	s.offerProcessed = true

	if err := s.pc.SetRemoteDescription(*s.offer); err != nil {
		return s.negotiationError("setRemoteDescription", err)
	}
	s.remoteSet = true

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return s.negotiationError("createAnswer", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return s.negotiationError("setLocalDescription", err)
	}

	s.send(signaling.Message{Type: signaling.TypeAnswer, Answer: &answer})
	s.flushCandidates()
	return nil
}

func (s *Session) handleOffer(msg signaling.Message) {
	if s.role == Caller {
		s.logger.Warn("dropping offer from peer while calling it")
		return
	}
	// the initial offer is fixed at construction; anything later is a
	// redelivery
	s.logger.Debug("ignoring duplicate offer", "timestamp", msg.Timestamp, "processed", s.offerProcessed)
}

func (s *Session) handleAnswer(msg signaling.Message) {
	if s.role != Caller || s.state != Dialing {
		s.logger.Debug("ignoring answer", "state", s.state.String())
		return
	}

	if err := s.pc.SetRemoteDescription(*msg.Answer); err != nil {
		_ = s.negotiationError("setRemoteDescription", err)
		return
	}
	s.remoteSet = true
	s.flushCandidates()
	s.setState(Negotiating)
}

func (s *Session) handleRemoteCandidate(c webrtc.ICECandidateInit) {
	if s.pc == nil || !s.remoteSet {
		s.pendingCandidates = append(s.pendingCandidates, c)
		s.updateSnapshot()
		s.logger.Debug("buffered remote candidate", "pending", len(s.pendingCandidates))
		return
	}
	s.applyCandidate(c)
}

func (s *Session) flushCandidates() {
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	for _, c := range pending {
		s.applyCandidate(c)
	}
	if len(pending) > 0 {
		s.logger.Debug("replayed buffered candidates", "count", len(pending))
		s.updateSnapshot()
	}
}

func (s *Session) applyCandidate(c webrtc.ICECandidateInit) {
	if err := s.pc.AddICECandidate(c); err != nil {
		_ = s.negotiationError("addIceCandidate", err)
	}
}

func (s *Session) sendCandidate(c webrtc.ICECandidateInit) {
	if s.state == Ended {
		return
	}
	s.send(signaling.Message{Type: signaling.TypeICECandidate, Candidate: &c})
}

func (s *Session) handleTrack(track *webrtc.TrackRemote) {
	if s.state == Ended {
		return
	}
	s.remoteTracks++
	if track != nil {
		s.logger.Info("remote track received", "kind", track.Kind().String(), "track_id", track.ID())
		if s.cfg.Remote != nil {
			s.cfg.Remote.Attach(s.ctx, track)
		}
	}
	if s.state == Negotiating {
		s.setState(Connected)
		return
	}
	s.updateSnapshot()
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Info("peer connection state changed", "state", state.String())
	if state == webrtc.PeerConnectionStateFailed && s.state != Ended {
		_ = s.negotiationError("iceConnection", errors.New("peer connection failed"))
	}
}

// negotiationError records err without changing state. The user can still
// hang up.
func (s *Session) negotiationError(fn string, err error) error {
	err = fmt.Errorf("%s: %w", fn, err)
	s.logger.Error("negotiation error", "error", err)
	s.lastErr = err
	s.report(fn, err)
	s.updateSnapshot()
	return err
}

// terminate is the single exit path. notifyPeer is set only when the end
// originates locally, so a peer hang-up is never echoed back.
func (s *Session) terminate(notifyPeer bool, reason string) {
	if s.state == Ended {
		return
	}

	if notifyPeer && s.cfg.Transport.Ready() {
		s.send(signaling.Message{Type: signaling.TypeCallEnded})
	}
	if s.stream != nil {
		s.stream.Stop()
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.logger.Warn("failed to close peer connection", "error", err)
		}
	}
	removed := s.cfg.Queue.RemoveIf(signaling.ChatFilter(s.cfg.ChatID))
	s.pendingCandidates = nil

	s.logger.Info("call ended", "reason", reason, "flushed_signals", removed)
	s.setState(Ended)
	s.cancel()

	if s.cfg.OnEnded != nil {
		s.cfg.OnEnded(s)
	}
}

// send stamps the routing key and target on an outbound frame.
func (s *Session) send(msg signaling.Message) {
	msg.Sender = s.cfg.SelfID
	msg.ChatID = s.cfg.ChatID
	msg.Target = s.cfg.PeerID
	if err := s.cfg.Transport.Send(msg); err != nil {
		s.logger.Warn("signal not sent", "type", msg.Type, "error", err)
	}
}

func (s *Session) report(fn string, err error) {
	if s.cfg.Reporter == nil {
		return
	}
	go s.cfg.Reporter.Report(context.Background(), fn, err)
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.updateSnapshot()
	s.logger.Info("call state changed", "from", from.String(), "to", to.String())

	if s.cfg.Observer != nil {
		s.cfg.Observer.CallStateChanged(s.cfg.ChatID, from, to)
	}
}

func (s *Session) updateSnapshot() {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap.State = s.state
	s.snap.RemoteTracks = s.remoteTracks
	s.snap.PendingCandidates = len(s.pendingCandidates)
	s.snap.LastError = ""
	if s.lastErr != nil {
		s.snap.LastError = s.lastErr.Error()
	}
}
