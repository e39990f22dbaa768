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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLinkLoss(t *testing.T) {
	clk := newFakeClock()
	var up atomic.Bool
	up.Store(true)
	lost := new(atomic.Int32)
	stop := watchLink(clk, time.Second, up.Load, func() { lost.Add(1) })
	defer stop()

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool { return clk.Pending() == 1 }, waitFor, tick)
		clk.Advance(time.Second)
	}
	assert.Zero(t, lost.Load())

	require.Eventually(t, func() bool { return clk.Pending() == 1 }, waitFor, tick)
	up.Store(false)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return lost.Load() == 1 }, waitFor, tick)

	// one report, then the watcher is gone
	assert.Never(t, func() bool { return clk.Pending() > 0 }, 50*time.Millisecond, tick)
	clk.Advance(time.Minute)
	assert.Equal(t, int32(1), lost.Load())
}

func TestWatchLinkStop(t *testing.T) {
	clk := newFakeClock()
	lost := new(atomic.Int32)
	stop := watchLink(clk, 0, func() bool { return false }, func() { lost.Add(1) })
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, waitFor, tick)
	stop()
	assert.Zero(t, clk.Pending())

	clk.Advance(DefaultLinkPoll)
	assert.Zero(t, lost.Load())
}
