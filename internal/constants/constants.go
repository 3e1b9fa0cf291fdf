// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package constants

import "time"

const (
	ReconnectBaseDelay   = 1 * time.Second
	ReconnectMaxDelay    = 10 * time.Second
	WSHandshakeTimeout   = 30 * time.Second
	WSWriteTimeout       = 10 * time.Second
	HTTPTimeout          = 10 * time.Second
	ErrorReportTimeout   = 5 * time.Second
	ProfileLookupTimeout = 5 * time.Second
	ShutdownTimeout      = 30 * time.Second
	ICEDisconnectedAfter = 30 * time.Second
	ICEFailedAfter       = 120 * time.Second
	ICEKeepAlive         = 2 * time.Second
	LocalVideoWidth      = 640
	LocalVideoHeight     = 480
	RemoteAudioBuffer    = 100
	RemoteVideoBuffer    = 256
)
