// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"log/slog"
	"sync"
)

type queueEntry struct {
	seq uint64
	msg Message
}

// Queue buffers received call signals until a session consumes them.
// Entries are only ever appended or removed; a consumed entry is gone for
// every other reader.
type Queue struct {
	mu      sync.Mutex
	entries []queueEntry
	nextSeq uint64

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}

	logger *slog.Logger
}

func NewQueue() *Queue {
	return &Queue{
		subs:   make(map[chan struct{}]struct{}),
		logger: slog.With("component", "signal_queue"),
	}
}

// Push appends msg to the tail and wakes every subscriber.
func (q *Queue) Push(msg Message) {
	q.mu.Lock()
	q.nextSeq++
	q.entries = append(q.entries, queueEntry{seq: q.nextSeq, msg: msg})
	n := len(q.entries)
	q.mu.Unlock()

	q.logger.Debug("signal queued", "type", msg.Type, "sender", msg.Sender, "chat_id", msg.ChatID, "len", n)
	q.notify()
}

// Consume removes and returns the oldest entry satisfying pred.
func (q *Queue) Consume(pred func(Message) bool) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if !pred(e.msg) {
			continue
		}
		q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
		q.logger.Debug("signal consumed", "type", e.msg.Type, "sender", e.msg.Sender, "chat_id", e.msg.ChatID, "seq", e.seq)
		return e.msg, true
	}
	return Message{}, false
}

// RemoveIf drops every entry satisfying pred and returns how many went.
func (q *Queue) RemoveIf(pred func(Message) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0:0]
	removed := 0
	for _, e := range q.entries {
		if pred(e.msg) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

// Contains reports whether any entry satisfies pred without removing it.
func (q *Queue) Contains(pred func(Message) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if pred(e.msg) {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the queued messages in arrival order.
func (q *Queue) Snapshot() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.msg.Clone()
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Subscribe returns a channel that receives a wake-up after each Push.
// Wake-ups coalesce: a slow reader sees one pending notification, never a
// backlog, and is expected to drain the queue when it wakes.
func (q *Queue) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	q.subsMu.Lock()
	q.subs[ch] = struct{}{}
	q.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			q.subsMu.Lock()
			delete(q.subs, ch)
			q.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (q *Queue) notify() {
	q.subsMu.Lock()
	defer q.subsMu.Unlock()

	for ch := range q.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ChatFilter matches every message scoped to chatID.
func ChatFilter(chatID int64) func(Message) bool {
	return func(m Message) bool { return m.ChatID == chatID }
}
