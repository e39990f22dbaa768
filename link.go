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
	"time"
)

// DefaultLinkPoll is the interval of association checks while joined.
const DefaultLinkPoll = 500 * time.Millisecond

// watchLink polls up every interval while a station is associated and
// calls lost once the link is gone. The returned function stops the
// watcher; lost is never called after it returned.
func watchLink(clk Clock, every time.Duration, up func() bool, lost func()) (stop func()) {
	if every <= 0 {
		every = DefaultLinkPoll
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sleepCtx(ctx, clk, every) {
			if up() {
				continue
			}
			if ctx.Err() == nil {
				lost()
			}
			return
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
