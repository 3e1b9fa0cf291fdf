// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

type StartCallRequest struct {
	ChatID int64 `json:"chatId"`
	PeerID int64 `json:"peerId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type UnreadResponse struct {
	Unread []int64 `json:"unread"`
}
