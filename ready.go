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
	"log/slog"
	"net/netip"
	"time"
)

// ReadinessSnapshot holds the driver-level facts sampled by the gate.
type ReadinessSnapshot struct {
	Interfaces int
	Addr       netip.Addr
}

// Ready returns true if an interface with a non-zero address exists.
func (s ReadinessSnapshot) Ready() bool {
	return s.Interfaces > 0 && hasAddr(s.Addr)
}

// hasAddr is true for a valid, non-zero address.
func hasAddr(a netip.Addr) bool {
	return a.IsValid() && !a.IsUnspecified()
}

// Gate answers "can I use the network now" by polling driver state. It
// is independent of the connectivity event loop, so a blocked caller
// never delays (or misses) an event.
type Gate struct {
	net NetInfo
	clk Clock
	log *slog.Logger
}

// NewGate creates a readiness gate over the given network facts.
func NewGate(net NetInfo, clk Clock, log *slog.Logger) *Gate {
	if clk == nil {
		clk = SystemClock()
	}
	return &Gate{
		net: net,
		clk: clk,
		log: orDiscard(log).With(slog.String("component", "ready")),
	}
}

// Snapshot samples the current facts.
func (g *Gate) Snapshot() ReadinessSnapshot {
	return ReadinessSnapshot{
		Interfaces: g.net.Interfaces(),
		Addr:       g.net.Addr(),
	}
}

// WaitUntilReady polls first for an interface, then for an assigned
// address; each check gets its own budget of maxAttempts polls spaced by
// interval. It returns false when a budget is used up (or ctx ends).
func (g *Gate) WaitUntilReady(ctx context.Context, maxAttempts int, interval time.Duration) bool {
	return g.Wait(ctx, maxAttempts, maxAttempts, interval)
}

// Wait is WaitUntilReady with separate budgets for both checks.
func (g *Gate) Wait(ctx context.Context, ifAttempts, addrAttempts int, interval time.Duration) bool {
	if !g.poll(ctx, ifAttempts, interval, func() bool {
		return g.net.Interfaces() > 0
	}) {
		g.log.Warn("ready:no-interface", slog.Int("attempts", ifAttempts))
		return false
	}
	var addr netip.Addr
	if !g.poll(ctx, addrAttempts, interval, func() bool {
		addr = g.net.Addr()
		return hasAddr(addr)
	}) {
		g.log.Warn("ready:no-address", slog.Int("attempts", addrAttempts))
		return false
	}
	g.log.Info("ready:ok", slog.String("addr", addr.String()))
	return true
}

// poll check at most n times.
func (g *Gate) poll(ctx context.Context, n int, interval time.Duration, check func() bool) bool {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return false
		}
		if check() {
			return true
		}
		if i+1 < n && !sleepCtx(ctx, g.clk, interval) {
			return false
		}
	}
	return false
}
