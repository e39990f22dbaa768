//go:build !rp2350

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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bfix/provnode"
	"github.com/spf13/pflag"
)

// simulate a sensor node on the host
func main() {
	var (
		cfgPath   string
		storePath string
		broker    string
		noMQTT    bool
		port      uint16
		joinDelay time.Duration
		logLevel  string
		hostNet   string
	)
	pflag.StringVarP(&cfgPath, "config", "c", "provnode.yaml", "configuration file")
	pflag.StringVar(&storePath, "store", "", "flash image for credentials")
	pflag.StringVar(&broker, "broker", "", "MQTT broker URL")
	pflag.BoolVar(&noMQTT, "no-mqtt", false, "log telemetry instead of publishing")
	pflag.Uint16VarP(&port, "port", "p", 0, "9p port")
	pflag.DurationVar(&joinDelay, "join-delay", time.Second, "simulated join latency")
	pflag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pflag.StringVar(&hostNet, "host-net", "", "gate on a host interface instead of the simulated station")
	pflag.Parse()

	cfg, err := provnode.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if broker != "" {
		cfg.Telemetry.Broker = broker
	}
	if port != 0 {
		cfg.NinePort = port
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	con, err := newConsole()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(con.Stderr(), &slog.HandlerOptions{Level: cfg.Level()}))

	dev := provnode.InitDevice()
	dev.JoinDelay = joinDelay
	dev.Logger = logger
	state := provnode.NewStatus(dev)
	defer state.Trap(time.Second)

	flash, err := provnode.OpenFileBlockDevice(cfg.Store.Path, cfg.Store.Blocks, cfg.Store.BlockSize)
	if err != nil {
		logger.Error("store:open", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer flash.Close()

	opts := provnode.NodeOptions{
		Config: cfg,
		Device: dev,
		Flash:  flash,
		Frames: provnode.NewUDPSource(cfg.Provision.Port),
		Sensor: provnode.NewSimSensor(),
		Status: state,
		Logger: logger,
	}
	if pflag.CommandLine.Changed("host-net") {
		opts.Net = provnode.HostNet{Name: hostNet}
		logger.Info("gate:host-net", slog.String("ifname", hostNet))
	}
	node, err := provnode.NewNode(opts)
	if err != nil {
		logger.Error("node:create", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go online(ctx, cfg, node, dev, noMQTT, logger)
	go func() {
		if err := node.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("node:run", slog.String("err", err.Error()))
			cancel()
		}
	}()
	con.Run(ctx, cancel, node, dev, cfg)
}

// online starts the network dependents once the readiness gate passes.
func online(ctx context.Context, cfg *provnode.Config, node *provnode.Node, dev *provnode.LinuxDevice, noMQTT bool, logger *slog.Logger) {
	budget := cfg.ReadyBudget()
	for !node.Gate.Wait(ctx, budget.InterfaceAttempts, budget.AddrAttempts, budget.Interval) {
		if ctx.Err() != nil {
			return
		}
	}
	pub := provnode.StartTelemetry(ctx, node.Gate, budget, func() (provnode.Publisher, error) {
		if noMQTT {
			return &provnode.LogPublisher{Logger: logger}, nil
		}
		return provnode.NewMQTTPublisher(provnode.MQTTConfig{
			Broker:       cfg.Telemetry.Broker,
			ClientID:     node.ID(),
			CommandTopic: cfg.Telemetry.CommandTopic,
		}, logger)
	}, logger)
	if pub != nil {
		node.Sensor.SetPublisher(pub)
	}

	lst, err := dev.Listen(cfg.NinePort)
	if err != nil {
		logger.Error("9p:listen", slog.String("err", err.Error()))
		return
	}
	if srv, err := provnode.Announce(node.ID(), cfg.Hostname, cfg.NinePort); err != nil {
		logger.Warn("mdns:announce", slog.String("err", err.Error()))
	} else {
		defer srv.Shutdown()
	}
	go func() {
		<-ctx.Done()
		lst.Close()
	}()
	logger.Info("9p:serving", slog.Int("port", int(cfg.NinePort)))
	node.NS.ServeListener(lst)
}
