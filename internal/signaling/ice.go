// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import "github.com/pion/webrtc/v4"

type ICESettings struct {
	StunServers []StunServer `json:"stunservers"`
	TurnServers []TurnServer `json:"turnservers"`
}

type StunServer struct {
	URLs []string `json:"urls"`
}

type TurnServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

func (s ICESettings) Configuration() webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	for _, stun := range s.StunServers {
		if len(stun.URLs) == 0 {
			continue
		}
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun.URLs})
	}
	for _, turn := range s.TurnServers {
		if len(turn.URLs) == 0 {
			continue
		}
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn.URLs,
			Username:   turn.Username,
			Credential: turn.Credential,
		})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}
