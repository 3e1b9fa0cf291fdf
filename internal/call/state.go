// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package call

import (
	"errors"
	"fmt"
)

var (
	ErrBusy         = errors.New("a call is already in progress")
	ErrNoSession    = errors.New("no call in progress")
	ErrInvalidState = errors.New("operation not valid in current call state")
	ErrEnded        = errors.New("call has ended")
)

type State int

const (
	Idle State = iota
	Dialing
	Ringing
	Negotiating
	Connected
	Ended
)

var stateNames = map[State]string{
	Idle:        "idle",
	Dialing:     "dialing",
	Ringing:     "ringing",
	Negotiating: "negotiating",
	Connected:   "connected",
	Ended:       "ended",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Role int

const (
	Caller Role = iota
	Callee
)

func (r Role) String() string {
	if r == Callee {
		return "callee"
	}
	return "caller"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
