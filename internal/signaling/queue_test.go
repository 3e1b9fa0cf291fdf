// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func candidate(s string) Message {
	return Message{
		Type:      TypeICECandidate,
		Sender:    7,
		ChatID:    42,
		Candidate: &webrtc.ICECandidateInit{Candidate: s},
	}
}

func TestConsumeRemovesOnlyFirstMatch(t *testing.T) {
	q := NewQueue()
	a := Message{Type: TypeCallEnded, Sender: 1, ChatID: 10}
	b := Message{Type: TypeCallEnded, Sender: 2, ChatID: 20}
	c := Message{Type: TypeCallEnded, Sender: 3, ChatID: 30}
	q.Push(a)
	q.Push(b)
	q.Push(c)

	isB := func(m Message) bool { return m.Sender == 2 }

	got, ok := q.Consume(isB)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Sender != 2 {
		t.Fatalf("consumed sender %d, want 2", got.Sender)
	}

	left := q.Snapshot()
	if len(left) != 2 || left[0].Sender != 1 || left[1].Sender != 3 {
		t.Fatalf("queue after consume = %+v, want [a c]", left)
	}

	if _, ok := q.Consume(isB); ok {
		t.Fatal("second consume with the same predicate must find nothing")
	}
	if q.Len() != 2 {
		t.Fatalf("failed consume changed the queue, len=%d", q.Len())
	}
}

func TestConsumeIsFIFOAmongMatches(t *testing.T) {
	q := NewQueue()
	for _, s := range []string{"c1", "c2", "c3"} {
		q.Push(candidate(s))
	}

	for _, want := range []string{"c1", "c2", "c3"} {
		got, ok := q.Consume(func(m Message) bool { return m.Type == TypeICECandidate })
		if !ok {
			t.Fatalf("expected %s", want)
		}
		if got.Candidate.Candidate != want {
			t.Fatalf("got %s, want %s", got.Candidate.Candidate, want)
		}
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	q := NewQueue()
	q.Push(candidate("original"))

	snap := q.Snapshot()
	snap[0].Candidate.Candidate = "mutated"
	snap[0].Sender = 99

	again := q.Snapshot()
	if len(again) != 1 {
		t.Fatalf("len = %d, want 1", len(again))
	}
	if again[0].Sender != 7 || again[0].Candidate.Candidate != "original" {
		t.Fatalf("snapshot mutation leaked into queue: %+v", again[0])
	}
}

func TestRemoveIfChat(t *testing.T) {
	q := NewQueue()
	q.Push(Message{Type: TypeOffer, Sender: 7, ChatID: 42})
	q.Push(Message{Type: TypeOffer, Sender: 8, ChatID: 43})
	q.Push(candidate("x"))

	if n := q.RemoveIf(ChatFilter(42)); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	left := q.Snapshot()
	if len(left) != 1 || left[0].ChatID != 43 {
		t.Fatalf("left = %+v", left)
	}
}

func TestContainsLeavesEntries(t *testing.T) {
	q := NewQueue()
	q.Push(candidate("x"))

	isOffer := func(m Message) bool { return m.Type == TypeOffer }
	if q.Contains(isOffer) {
		t.Fatal("found an offer in a queue without one")
	}
	if !q.Contains(ChatFilter(42)) {
		t.Fatal("candidate for chat 42 not found")
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d after Contains", q.Len())
	}
}

func TestSubscribeCoalescesWakeups(t *testing.T) {
	q := NewQueue()
	ch, cancel := q.Subscribe()
	defer cancel()

	q.Push(candidate("a"))
	q.Push(candidate("b"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no wake-up after push")
	}
	select {
	case <-ch:
		t.Fatal("wake-ups should coalesce into one")
	default:
	}

	cancel()
	q.Push(candidate("c"))
	select {
	case <-ch:
		t.Fatal("cancelled subscriber was woken")
	default:
	}
}
