// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package call

import (
	"log/slog"
	"sync"
)

type Cue int

const (
	CueNone Cue = iota
	CueRingtone
	CueRingback
)

func (c Cue) String() string {
	switch c {
	case CueRingtone:
		return "ringtone"
	case CueRingback:
		return "ringback"
	default:
		return "none"
	}
}

func (c Cue) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// File is the looping sound asset of the cue.
func (c Cue) File() string {
	switch c {
	case CueRingtone:
		return "/sounds/ringtone.mp3"
	case CueRingback:
		return "/sounds/dialing.mp3"
	default:
		return ""
	}
}

// Player renders cues. Play is only called for a cue that is not already
// playing and is always preceded by Stop of the previous one.
type Player interface {
	Play(c Cue)
	Stop()
}

// RingController derives ringtone and ringback from call state transitions
// alone. It is a StateObserver.
type RingController struct {
	mu      sync.Mutex
	current Cue
	player  Player
	logger  *slog.Logger
}

// NewRingController returns a controller driving player, which may be nil
// when the cue is only read through Current.
func NewRingController(player Player) *RingController {
	return &RingController{
		player: player,
		logger: slog.With("component", "ring_controller"),
	}
}

func cueFor(state State) Cue {
	switch state {
	case Dialing:
		return CueRingback
	case Ringing:
		return CueRingtone
	default:
		return CueNone
	}
}

func (r *RingController) CallStateChanged(chatID int64, from, to State) {
	want := cueFor(to)

	r.mu.Lock()
	defer r.mu.Unlock()

	if want == r.current {
		return
	}
	if r.current != CueNone && r.player != nil {
		r.player.Stop()
	}
	r.logger.Debug("cue changed", "chat_id", chatID, "from", r.current.String(), "to", want.String(), "state", to.String())
	r.current = want
	if want != CueNone && r.player != nil {
		r.player.Play(want)
	}
}

func (r *RingController) Current() Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
