// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
)

var ErrNoCaptureDevices = errors.New("no capture devices available")

// Constraints selects the local tracks to capture.
type Constraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

// Source acquires local capture tracks.
type Source interface {
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
}

// CodecRegistrar registers the codecs a Source produces with a media engine,
// so the peer connection can negotiate them.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// Stream is a set of local tracks acquired together and released together.
type Stream struct {
	tracks []webrtc.TrackLocal
	stop   func()
	once   sync.Once
}

// NewStream orders tracks audio first. stop is invoked at most once.
func NewStream(tracks []webrtc.TrackLocal, stop func()) *Stream {
	ordered := make([]webrtc.TrackLocal, len(tracks))
	copy(ordered, tracks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind() == webrtc.RTPCodecTypeAudio && ordered[j].Kind() != webrtc.RTPCodecTypeAudio
	})
	return &Stream{tracks: ordered, stop: stop}
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Stop releases every track. Safe to call more than once.
func (s *Stream) Stop() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}
