// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type SignalType string

const (
	TypeInit         SignalType = "init"
	TypeOffer        SignalType = "offer"
	TypeAnswer       SignalType = "answer"
	TypeICECandidate SignalType = "ice-candidate"
	TypeCallEnded    SignalType = "call-ended"
	TypeMessageNew   SignalType = "message_new"
)

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Open
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// Message is the JSON envelope exchanged with the signaling server. Call
// signals are routed by Sender and ChatID; Target names the intended peer
// on outbound frames.
type Message struct {
	Type      SignalType                 `json:"type"`
	Sender    int64                      `json:"sender,omitempty"`
	ChatID    int64                      `json:"chatId,omitempty"`
	Target    int64                      `json:"target,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Timestamp int64                      `json:"timestamp,omitempty"`

	// chat notifications (message_new)
	NewChatID   int64 `json:"chat_id,omitempty"`
	NewSenderID int64 `json:"sender_id,omitempty"`
}

type initMessage struct {
	UserID int64      `json:"userId"`
	Type   SignalType `json:"type"`
}

// IsCallSignal reports whether m belongs to the call-negotiation protocol.
func (m Message) IsCallSignal() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeCallEnded:
		return true
	}
	return false
}

// From reports whether m was sent by peer for chatID.
func (m Message) From(peer, chatID int64) bool {
	return m.Sender == peer && m.ChatID == chatID
}

// Clone returns a deep copy so callers can mutate it without touching the
// queued original.
func (m Message) Clone() Message {
	out := m
	if m.Offer != nil {
		o := *m.Offer
		out.Offer = &o
	}
	if m.Answer != nil {
		a := *m.Answer
		out.Answer = &a
	}
	if m.Candidate != nil {
		c := *m.Candidate
		if c.SDPMid != nil {
			mid := *c.SDPMid
			c.SDPMid = &mid
		}
		if c.SDPMLineIndex != nil {
			idx := *c.SDPMLineIndex
			c.SDPMLineIndex = &idx
		}
		if c.UsernameFragment != nil {
			uf := *c.UsernameFragment
			c.UsernameFragment = &uf
		}
		out.Candidate = &c
	}
	return out
}

// Validate checks that a call signal carries its routing key and the payload
// its variant requires.
func (m Message) Validate() error {
	switch m.Type {
	case TypeMessageNew:
		if m.NewChatID == 0 {
			return fmt.Errorf("%w: message_new without chat_id", ErrMalformed)
		}
		return nil
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeCallEnded:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	if m.Sender == 0 || m.ChatID == 0 {
		return fmt.Errorf("%w: %s without sender/chatId", ErrMalformed, m.Type)
	}

	switch m.Type {
	case TypeOffer:
		if m.Offer == nil || m.Offer.SDP == "" {
			return fmt.Errorf("%w: offer without sdp", ErrMalformed)
		}
	case TypeAnswer:
		if m.Answer == nil || m.Answer.SDP == "" {
			return fmt.Errorf("%w: answer without sdp", ErrMalformed)
		}
	case TypeICECandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrMalformed)
		}
	}
	return nil
}

// DecodeMessage parses one inbound frame.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
