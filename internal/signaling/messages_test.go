// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{"offer", `{"type":"offer","sender":1,"chatId":42,"target":7,"offer":{"type":"offer","sdp":"v=0"},"timestamp":1700000000000}`, false},
		{"answer", `{"type":"answer","sender":7,"chatId":42,"answer":{"type":"answer","sdp":"v=0"}}`, false},
		{"candidate", `{"type":"ice-candidate","sender":7,"chatId":42,"candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`, false},
		{"call ended", `{"type":"call-ended","sender":7,"chatId":42}`, false},
		{"message new", `{"type":"message_new","chat_id":5,"sender_id":3}`, false},
		{"not json", `{"type":`, true},
		{"missing sender", `{"type":"call-ended","chatId":42}`, true},
		{"missing chat", `{"type":"call-ended","sender":7}`, true},
		{"offer without sdp", `{"type":"offer","sender":1,"chatId":42}`, true},
		{"answer without sdp", `{"type":"answer","sender":1,"chatId":42,"answer":{"type":"answer"}}`, true},
		{"candidate without payload", `{"type":"ice-candidate","sender":1,"chatId":42}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeSkipsUnknownTypes(t *testing.T) {
	for _, frame := range []string{
		`{"type":"typing","chatId":2,"userId":3}`,
		`{"type":"presence","online":true}`,
	} {
		_, err := DecodeMessage([]byte(frame))
		if !errors.Is(err, ErrUnknownType) {
			t.Fatalf("%s: err = %v, want ErrUnknownType", frame, err)
		}
		if errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: unknown type reported as malformed", frame)
		}
	}
}

func TestDecodeOfferPayload(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"offer","sender":1,"chatId":42,"offer":{"type":"offer","sdp":"v=0\r\n"},"timestamp":17}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Offer.Type != webrtc.SDPTypeOffer || msg.Offer.SDP != "v=0\r\n" {
		t.Fatalf("offer = %+v", msg.Offer)
	}
	if msg.Timestamp != 17 {
		t.Fatalf("timestamp = %d", msg.Timestamp)
	}
	if !msg.From(1, 42) || msg.From(7, 42) {
		t.Fatal("routing key mismatch")
	}
}

func TestICESettingsConfiguration(t *testing.T) {
	s := ICESettings{
		StunServers: []StunServer{{URLs: []string{"stun:stun.l.google.com:19302"}}, {}},
		TurnServers: []TurnServer{{
			URLs:       []string{"turn:relay.example:3478?transport=udp", "turn:relay.example:3478?transport=tcp"},
			Username:   "u",
			Credential: "p",
		}},
	}
	cfg := s.Configuration()
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ice servers = %d, want 2", len(cfg.ICEServers))
	}
	turn := cfg.ICEServers[1]
	if len(turn.URLs) != 2 || turn.Username != "u" || turn.Credential != "p" {
		t.Fatalf("turn = %+v", turn)
	}
}
