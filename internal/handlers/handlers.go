// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/livetouch/callcore/internal/call"
	"github.com/livetouch/callcore/internal/service"
	"github.com/livetouch/callcore/internal/signaling"
)

// CallService is the surface of service.Application the control API uses.
type CallService interface {
	StartCall(ctx context.Context, chatID, peerID int64) (call.Snapshot, error)
	AcceptCall(ctx context.Context) (call.Snapshot, error)
	DeclineCall(ctx context.Context) error
	HangUp(ctx context.Context) error
	CallState() service.CallView
	Signals() []signaling.Message
	TransportStatus() service.TransportStatus
	UnreadChats() []int64
	MarkRead(chatID int64) bool
}

var _ CallService = (*service.Application)(nil)

type Handler struct {
	Service CallService
}

func NewHandler(svc CallService) *Handler {
	return &Handler{Service: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// statusFor maps call errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, call.ErrBusy), errors.Is(err, call.ErrInvalidState), errors.Is(err, call.ErrEnded):
		return http.StatusConflict
	case errors.Is(err, call.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidPeer):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.CallState())
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	snap, err := h.Service.StartCall(r.Context(), req.ChatID, req.PeerID)
	if err != nil {
		slog.Error("start call failed", "error", err, "chat_id", req.ChatID, "peer_id", req.PeerID)
		writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.AcceptCall(r.Context())
	if err != nil {
		slog.Error("accept call failed", "error", err)
		writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeclineCall(r.Context()); err != nil {
		slog.Error("decline call failed", "error", err)
		writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Call declined."})
}

func (h *Handler) HangUp(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HangUp(r.Context()); err != nil {
		slog.Error("hang up failed", "error", err)
		writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Call ended."})
}

func (h *Handler) GetSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Signals())
}

func (h *Handler) GetTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.TransportStatus())
}

func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UnreadResponse{Unread: h.Service.UnreadChats()})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.PathValue("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}
	h.Service.MarkRead(chatID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /heartbeat", h.Heartbeat)

	mux.HandleFunc("GET /api/v1/call", h.GetCall)
	mux.HandleFunc("POST /api/v1/call/start", h.StartCall)
	mux.HandleFunc("POST /api/v1/call/accept", h.AcceptCall)
	mux.HandleFunc("POST /api/v1/call/decline", h.DeclineCall)
	mux.HandleFunc("POST /api/v1/call/hangup", h.HangUp)
	mux.HandleFunc("GET /api/v1/signals", h.GetSignals)
	mux.HandleFunc("GET /api/v1/transport", h.GetTransport)
	mux.HandleFunc("GET /api/v1/unread", h.GetUnread)
	mux.HandleFunc("DELETE /api/v1/unread/{chatId}", h.MarkRead)
}
