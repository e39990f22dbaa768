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
	"context"
	"sync/atomic"
	"time"
)

// DefaultHoldThreshold is the time the reset button has to be held.
const DefaultHoldThreshold = 5 * time.Second

// HoldMonitor turns edges of an active-low button into a single
// "long-press" event per qualifying hold.
//
// Edge reads the clock and re-arms a timer, both of which may take locks,
// so it must not run in interrupt context; a pin interrupt records the
// level in an EdgeLatch instead. The callback runs from the timer and may
// block.
type HoldMonitor struct {
	threshold time.Duration
	clk       Clock
	onHold    func()

	pressed atomic.Bool  // button currently down
	since   atomic.Int64 // press time (unix nanos)
	fired   atomic.Bool  // callback already invoked for this hold

	timer Timer
}

// NewHoldMonitor creates a monitor that calls onHold once the button has
// been held for threshold. A nil clock uses the system clock.
func NewHoldMonitor(threshold time.Duration, clk Clock, onHold func()) *HoldMonitor {
	if clk == nil {
		clk = SystemClock()
	}
	if threshold <= 0 {
		threshold = DefaultHoldThreshold
	}
	m := &HoldMonitor{
		threshold: threshold,
		clk:       clk,
		onHold:    onHold,
	}
	m.timer = clk.AfterFunc(threshold, m.expired)
	m.timer.Stop()
	return m
}

// Edge handles a level change of the button pin (level is the sampled
// pin state; low means pressed).
func (m *HoldMonitor) Edge(level bool) {
	if !level {
		if m.pressed.Swap(true) {
			return // repeated falling edge, hold already timed
		}
		m.since.Store(m.clk.Now().UnixNano())
		m.fired.Store(false)
		m.timer.Reset(m.threshold)
		return
	}
	m.pressed.Store(false)
	m.timer.Stop()
}

// Pressed returns true while the button is held.
func (m *HoldMonitor) Pressed() bool {
	return m.pressed.Load()
}

// expired is the timer callback. A firing that raced with a release (or
// belongs to an earlier press) is discarded.
func (m *HoldMonitor) expired() {
	if !m.pressed.Load() {
		return
	}
	held := m.clk.Now().UnixNano() - m.since.Load()
	if time.Duration(held) < m.threshold {
		return
	}
	if m.fired.Swap(true) {
		return
	}
	if m.onHold != nil {
		m.onHold()
	}
}

// DefaultEdgePoll is the interval for forwarding latched edges.
const DefaultEdgePoll = 10 * time.Millisecond

// EdgeLatch passes pin levels from an interrupt handler to a goroutine.
// Set only touches atomics and is safe in interrupt context; edges that
// happen between two polls collapse into the latest level.
type EdgeLatch struct {
	seq   atomic.Uint32
	level atomic.Bool
}

// Set records a sampled pin level.
func (l *EdgeLatch) Set(level bool) {
	l.level.Store(level)
	l.seq.Add(1)
}

// Run forwards latched levels to the monitor until ctx ends.
func (l *EdgeLatch) Run(ctx context.Context, clk Clock, every time.Duration, mon *HoldMonitor) {
	if clk == nil {
		clk = SystemClock()
	}
	if every <= 0 {
		every = DefaultEdgePoll
	}
	var last uint32
	for sleepCtx(ctx, clk, every) {
		last = l.forward(last, mon)
	}
}

// forward hands the current level to the monitor if it changed since
// sequence number last and returns the new sequence number.
func (l *EdgeLatch) forward(last uint32, mon *HoldMonitor) uint32 {
	seq := l.seq.Load()
	if seq == last {
		return last
	}
	mon.Edge(l.level.Load())
	return seq
}
