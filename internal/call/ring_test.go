// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package call

import (
	"reflect"
	"testing"
)

type recordingPlayer struct {
	events []string
}

func (p *recordingPlayer) Play(c Cue) { p.events = append(p.events, "play "+c.String()) }
func (p *recordingPlayer) Stop() { p.events = append(p.events, "stop") }

func TestRingControllerCallerPath(t *testing.T) {
	p := &recordingPlayer{}
	r := NewRingController(p)

	r.CallStateChanged(42, Idle, Dialing)
	if r.Current() != CueRingback {
		t.Fatalf("cue = %s, want ringback", r.Current())
	}
	r.CallStateChanged(42, Dialing, Negotiating)
	r.CallStateChanged(42, Negotiating, Connected)
	r.CallStateChanged(42, Connected, Ended)

	want := []string{"play ringback", "stop"}
	if !reflect.DeepEqual(p.events, want) {
		t.Fatalf("events = %v, want %v", p.events, want)
	}
}

func TestRingControllerCalleePath(t *testing.T) {
	p := &recordingPlayer{}
	r := NewRingController(p)

	r.CallStateChanged(42, Idle, Ringing)
	if r.Current() != CueRingtone {
		t.Fatalf("cue = %s, want ringtone", r.Current())
	}
	r.CallStateChanged(42, Ringing, Ended)
	if r.Current() != CueNone {
		t.Fatalf("cue = %s after decline, want none", r.Current())
	}

	want := []string{"play ringtone", "stop"}
	if !reflect.DeepEqual(p.events, want) {
		t.Fatalf("events = %v, want %v", p.events, want)
	}
}

func TestRingControllerNeverDoubleTriggers(t *testing.T) {
	p := &recordingPlayer{}
	r := NewRingController(p)

	r.CallStateChanged(42, Idle, Ringing)
	r.CallStateChanged(42, Idle, Ringing)
	r.CallStateChanged(42, Negotiating, Connected)
	r.CallStateChanged(42, Connected, Ended)

	want := []string{"play ringtone", "stop"}
	if !reflect.DeepEqual(p.events, want) {
		t.Fatalf("events = %v, want %v", p.events, want)
	}
}

func TestRingControllerWithoutPlayer(t *testing.T) {
	r := NewRingController(nil)
	r.CallStateChanged(1, Idle, Dialing)
	if r.Current().File() != "/sounds/dialing.mp3" {
		t.Fatalf("file = %q", r.Current().File())
	}
	r.CallStateChanged(1, Dialing, Ended)
	if r.Current() != CueNone {
		t.Fatal("cue not cleared")
	}
}
