// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hraban/opus"
	"github.com/livetouch/callcore/internal/constants"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	PlaybackSampleRate = 48000
	playbackChannels   = 1
)

// PCMAudio is one decoded Opus frame of remote audio.
type PCMAudio struct {
	TrackID    string
	Samples    []int16
	SampleRate int
}

// VideoPacket is one RTP packet of remote video, left encoded for the
// display layer.
type VideoPacket struct {
	TrackID string
	Packet  *rtp.Packet
}

// Receiver publishes remote media for the display layer. Consumers that
// fall behind lose frames; the readers never block on them.
type Receiver struct {
	Audio chan PCMAudio
	Video chan VideoPacket

	logger *slog.Logger
}

func NewReceiver() *Receiver {
	return &Receiver{
		Audio:  make(chan PCMAudio, constants.RemoteAudioBuffer),
		Video:  make(chan VideoPacket, constants.RemoteVideoBuffer),
		logger: slog.With("component", "media_receiver"),
	}
}

// Attach starts reading track until ctx is done or the track ends.
func (r *Receiver) Attach(ctx context.Context, track *webrtc.TrackRemote) {
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		go r.readAudioTrack(ctx, track)
	case webrtc.RTPCodecTypeVideo:
		go r.readVideoTrack(ctx, track)
	default:
		r.logger.Warn("ignoring remote track of unknown kind", "track_id", track.ID())
	}
}

func (r *Receiver) readAudioTrack(ctx context.Context, track *webrtc.TrackRemote) {
	trackID := track.ID()
	logger := r.logger.With("track_id", trackID)
	logger.Info("audio track reader started",
		"codec", track.Codec().MimeType,
		"sample_rate", track.Codec().ClockRate,
		"channels", track.Codec().Channels,
	)
	defer logger.Info("audio track reader stopped")

	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		logger.Warn("remote audio is not opus, not decoding")
		return
	}

	dec, err := opus.NewDecoder(PlaybackSampleRate, playbackChannels)
	if err != nil {
		logger.Error("failed to create opus decoder", "error", err)
		return
	}

	pcmBuf := make([]int16, 5760) // 120ms at 48kHz
	rtpBuf := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return
		}

		n, _, readErr := track.Read(rtpBuf)
		if readErr != nil {
			if ctx.Err() == nil {
				logger.Debug("track read error", "error", readErr)
			}
			return
		}
		if n == 0 {
			continue
		}

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(rtpBuf[:n]); err != nil || len(packet.Payload) == 0 {
			continue
		}

		decoded, err := dec.Decode(packet.Payload, pcmBuf)
		if err != nil {
			logger.Debug("opus decode error", "error", err)
			continue
		}
		if decoded == 0 {
			continue
		}

		samples := make([]int16, decoded)
		copy(samples, pcmBuf[:decoded])

		select {
		case r.Audio <- PCMAudio{TrackID: trackID, Samples: samples, SampleRate: PlaybackSampleRate}:
		default:
		}
	}
}

func (r *Receiver) readVideoTrack(ctx context.Context, track *webrtc.TrackRemote) {
	trackID := track.ID()
	logger := r.logger.With("track_id", trackID)
	logger.Info("video track reader started", "codec", track.Codec().MimeType)
	defer logger.Info("video track reader stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		packet, _, err := track.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("track read error", "error", err)
			}
			return
		}

		select {
		case r.Video <- VideoPacket{TrackID: trackID, Packet: packet}:
		default:
		}
	}
}
