//----------------------------------------------------------------------
// This file is part of provnode.
// Copyright (C) 2024-present Bernd Fix   >Y<
//
// provnode is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// provnode is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package provnode

import (
	"fmt"
	"sync/atomic"
	"time"
)

// status codes (number of LED blinks)
const (
	StatUNK    = iota // unknown status (init)
	StatOK            // online
	StatDEV           // device failure
	StatPROV          // waiting for provisioning
	StatCONN          // joining network
	StatDISC          // link lost, reconnecting
	StatSTORE         // credential store failure
	StatRESET         // credentials erased, restarting
	StatSENSOR        // sensor failure
	StatMQTT          // telemetry not available
	StatLISTEN        // failed to create listener
	StatPORT          // invalid port specified
	StatEXCP          // exception (panic) occured
)

// StatusOf maps a connection state to its status code.
func StatusOf(s ConnState) int {
	switch s {
	case StateAwaitingProvisioning:
		return StatPROV
	case StateConnecting:
		return StatCONN
	case StateConnected:
		return StatOK
	case StateDisconnected:
		return StatDISC
	}
	return StatUNK
}

// Status handler.
// Blink the current status code on the device LED.
type Status struct {
	dev    Device       // reference to device
	curr   atomic.Int32 // current state
	base   atomic.Int32 // state to return to after repeats
	repeat atomic.Int32 // current repeat counter
}

// NewStatus creates a new status display
func NewStatus(dev Device) (state *Status) {
	state = new(Status)
	state.dev = dev
	state.curr.Store(StatUNK)
	state.base.Store(StatUNK)
	go func() {
		// blink LED <state>; <repeat> times
		for {
			time.Sleep(5 * time.Second)
			num := state.curr.Load()
			for num > 5 {
				dev.LED(true)
				time.Sleep(1000 * time.Millisecond)
				dev.LED(false)
				time.Sleep(300 * time.Millisecond)
				num -= 5
			}
			for range num {
				dev.LED(true)
				time.Sleep(150 * time.Millisecond)
				dev.LED(false)
				time.Sleep(150 * time.Millisecond)
			}
			if state.repeat.Add(-1) == 0 {
				state.curr.Store(state.base.Load())
			}
		}
	}()
	return
}

// Set status and repeat <num> times (0 = until changed).
func (state *Status) Set(flag, num int) {
	if state != nil {
		state.curr.Store(int32(flag))
		state.repeat.Store(int32(num))
	}
}

// Track follows connection state changes; a transient code set with
// repeats falls back to the last tracked state.
func (state *Status) Track(_, s ConnState) {
	if state == nil {
		return
	}
	code := int32(StatusOf(s))
	state.base.Store(code)
	if state.repeat.Load() <= 0 {
		state.curr.Store(code)
	}
}

// Get current state and repeat counter
func (state *Status) Get() (int, int) {
	return int(state.curr.Load()), int(state.repeat.Load())
}

// Trap critical failures (panic)
func (state *Status) Trap(t time.Duration) {
	s, _ := state.Get()
	if r := recover(); r != nil {
		fmt.Printf("EXCP: %v\n", r)
		if s == StatOK {
			state.Set(StatEXCP, 0)
		}
	} else if s == StatOK {
		state.Set(StatUNK, 0)
	}
	time.Sleep(t)
}
