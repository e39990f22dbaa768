//go:build rp2350

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

package main

import (
	"context"
	"log/slog"
	"machine"
	"strconv"
	"time"

	"github.com/bfix/provnode"
)

// node settings (set via -ldflags "-X main.Host=...")
var (
	Host = "provnode"
	Port = "564"
)

// run sensor node
func main() {
	time.Sleep(2 * time.Second)
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := provnode.DefaultConfig()
	cfg.Hostname = Host
	dev := provnode.InitDevice(cfg.Hostname, logger)
	state := provnode.NewStatus(dev)
	defer state.Trap(30 * time.Second)

	port, err := strconv.ParseUint(Port, 10, 16)
	if err != nil {
		state.Set(provnode.StatPORT, 0)
		return
	}
	cfg.NinePort = uint16(port)

	flash, first := provnode.FlashStore()
	node, err := provnode.NewNode(provnode.NodeOptions{
		Config:     cfg,
		Device:     dev,
		Flash:      flash,
		FirstBlock: first,
		Frames:     new(provnode.SerialSource),
		Status:     state,
		Logger:     logger,
	})
	if err != nil {
		state.Set(provnode.StatDEV, 0)
		return
	}
	ctx := context.Background()
	if err = provnode.WatchButton(ctx, machine.Pin(cfg.ButtonPin), node.Button); err != nil {
		logger.Error("button:setup", slog.String("err", err.Error()))
	}

	// serve the namespace once the network is up
	go func() {
		budget := cfg.ReadyBudget()
		for !node.Gate.Wait(ctx, budget.InterfaceAttempts, budget.AddrAttempts, budget.Interval) {
			logger.Debug("9p:waiting-for-network")
		}
		lst, err := dev.Listen(cfg.NinePort)
		if err != nil {
			state.Set(provnode.StatLISTEN, 3)
			return
		}
		logger.Info("9p:serving", slog.Int("port", int(cfg.NinePort)))
		node.NS.ServeListener(lst)
	}()

	if err = node.Run(ctx); err != nil {
		logger.Error("node:run", slog.String("err", err.Error()))
		state.Set(provnode.StatDEV, 0)
	}

	// srv tcp!<host>!9fs node
	// mount /srv/node /n/node
	// cat /n/node/net/state
}
