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
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Error messages
var (
	errNoDevice = errors.New("no device")
	errNoFrames = errors.New("no provisioning frame source")
)

// NodeDevice is everything the node needs from the hardware.
type NodeDevice interface {
	Device
	Driver
	NetInfo
	Restarter
}

// NodeOptions to assemble a node
type NodeOptions struct {
	Config     *Config
	Device     NodeDevice
	Flash      BlockDevice // credential medium
	FirstBlock int64       // first of two erase blocks used by the store
	Frames     FrameSource // provisioning transport
	Sensor     Sensor      // optional
	Net        NetInfo     // readiness facts (default: the device)
	Status     *Status     // optional LED reporter
	Clock      Clock
	Logger     *slog.Logger
}

// Node wires the components of a sensor node.
type Node struct {
	Store  *Store
	Button *HoldMonitor
	Prov   *Provisioner
	Conn   *Connectivity
	Gate   *Gate
	Sensor *SensorLoop
	NS     *Namespace

	cfg    *Config
	dev    NodeDevice
	status *Status
	log    *slog.Logger
}

// NodeID derives a stable identifier from the station MAC.
func NodeID(mac [6]byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, mac[:]).String()
}

// ID of the node, derived from the station MAC. The radio only knows
// its address once it is in station mode, so the ID is stable from the
// first state change on.
func (n *Node) ID() string {
	return NodeID(n.dev.HardwareAddr())
}

// NewNode assembles a node; nothing runs until Run is called.
func NewNode(opts NodeOptions) (*Node, error) {
	if opts.Device == nil {
		return nil, errNoDevice
	}
	if opts.Frames == nil {
		return nil, errNoFrames
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clk := opts.Clock
	if clk == nil {
		clk = SystemClock()
	}
	log := orDiscard(opts.Logger)

	n := &Node{
		Store:  NewStore(opts.Flash, opts.FirstBlock),
		cfg:    cfg,
		dev:    opts.Device,
		status: opts.Status,
		log:    log,
	}
	n.Conn = NewConnectivity(ConnectivityConfig{
		Driver:        opts.Device,
		Store:         n.Store,
		Restart:       opts.Device.Restart,
		RetryInterval: cfg.RetryInterval,
		Clock:         clk,
		Logger:        log,
		OnState:       n.status.Track,
		OnStoreError: func(error) {
			n.status.Set(StatSTORE, 3)
		},
	})
	n.Prov = NewProvisioner(opts.Frames, ProvisionerConfig{
		MAC:         opts.Device.HardwareAddr,
		AckCount:    cfg.Provision.AckCount,
		AckInterval: cfg.Provision.AckInterval,
		Clock:       clk,
		Logger:      log,
	}, n.Conn.PostProvisioning)
	n.Conn.UseProvisioner(n.Prov)
	n.Button = NewHoldMonitor(cfg.HoldThreshold, clk, n.forget)
	var facts NetInfo = opts.Device
	if opts.Net != nil {
		facts = opts.Net
	}
	n.Gate = NewGate(facts, clk, log)
	if opts.Sensor != nil {
		n.Sensor = NewSensorLoop(opts.Sensor, cfg.Telemetry.Topic, cfg.Telemetry.Period, clk, log)
	}
	n.NS = n.namespace()
	return n, nil
}

// Run the node until ctx is done (or a reset restarts it).
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("node:start", slog.String("host", n.cfg.Hostname))
	if n.Sensor != nil {
		go n.Sensor.Run(ctx)
	}
	return n.Conn.Run(ctx)
}

// forget is called when the reset button was held long enough.
func (n *Node) forget() {
	n.log.Warn("button:long-press", slog.Duration("threshold", n.cfg.HoldThreshold))
	n.status.Set(StatRESET, 0)
	n.Conn.Reset()
}

// namespace exposes the node state over 9p.
func (n *Node) namespace() *Namespace {
	ns := NewNamespace("sys", "sys")
	ns.NewFile("/id", 0444, NewValueFile(n.ID))
	ns.NewFile("/hostname", 0444, NewTextFile(n.cfg.Hostname+"\n"))
	ns.NewDir("/net", 0555)
	ns.NewFile("/net/state", 0444, NewValueFile(func() string {
		return n.Conn.State().String()
	}))
	ns.NewFile("/net/addr", 0444, NewValueFile(func() string {
		if a := n.dev.Addr(); a.IsValid() {
			return a.String()
		}
		return "none"
	}))
	ns.NewFile("/net/ssid", 0444, NewValueFile(func() string {
		c, err := n.Store.Load()
		if err != nil || c == nil {
			return ""
		}
		return c.Identity()
	}))
	if n.Sensor != nil {
		ns.NewDir("/sensor", 0555)
		ns.NewFile("/sensor/reading", 0444, NewFuncFile(func() ([]byte, error) {
			m, at := n.Sensor.Last()
			if at.IsZero() {
				return nil, nil
			}
			return append(m.JSON(), '\n'), nil
		}))
		ns.NewFile("/sensor/time", 0444, NewValueFile(func() string {
			_, at := n.Sensor.Last()
			return at.UTC().Format(time.RFC3339)
		}))
	}
	return ns
}
