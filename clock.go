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

import "time"

// Timer is a cancellable single-shot timer (*time.Timer satisfies it).
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock abstracts time so hold detection and retries can be tested
// without waiting for wall time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Sleep(d time.Duration)
}

// realClock uses the time package.
type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realClock) Sleep(d time.Duration)                     { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return realClock{}
}
