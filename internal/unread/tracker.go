// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package unread

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/livetouch/callcore/internal/signaling"
)

type Fetcher interface {
	UnreadChats(ctx context.Context) ([]int64, error)
}

// Tracker is the set of chats holding messages the user has not read.
type Tracker struct {
	selfID int64
	fetch  Fetcher

	mu    sync.RWMutex
	chats map[int64]struct{}

	logger *slog.Logger
}

func NewTracker(selfID int64, fetch Fetcher) *Tracker {
	return &Tracker{
		selfID: selfID,
		fetch:  fetch,
		chats:  make(map[int64]struct{}),
		logger: slog.With("component", "unread_tracker"),
	}
}

// Refresh replaces the set with the server's view.
func (t *Tracker) Refresh(ctx context.Context) error {
	ids, err := t.fetch.UnreadChats(ctx)
	if err != nil {
		return fmt.Errorf("refreshing unread chats: %w", err)
	}

	chats := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		chats[id] = struct{}{}
	}

	t.mu.Lock()
	t.chats = chats
	t.mu.Unlock()

	t.logger.Info("unread chats loaded", "count", len(chats))
	return nil
}

// HandleMessage marks the chat of a message_new frame unread unless the
// message is our own.
func (t *Tracker) HandleMessage(msg signaling.Message) {
	if msg.Type != signaling.TypeMessageNew || msg.NewSenderID == t.selfID {
		return
	}
	t.Add(msg.NewChatID)
}

func (t *Tracker) Add(chatID int64) {
	t.mu.Lock()
	t.chats[chatID] = struct{}{}
	t.mu.Unlock()
	t.logger.Debug("chat marked unread", "chat_id", chatID)
}

func (t *Tracker) Remove(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.chats[chatID]
	delete(t.chats, chatID)
	return ok
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	t.chats = make(map[int64]struct{})
	t.mu.Unlock()
}

// Snapshot returns the unread chat ids in ascending order.
func (t *Tracker) Snapshot() []int64 {
	t.mu.RLock()
	ids := make([]int64, 0, len(t.chats))
	for id := range t.chats {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.chats)
}
