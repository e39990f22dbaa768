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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState of the station.
type ConnState int32

// connection states
const (
	StateUninitialized ConnState = iota
	StateAwaitingProvisioning
	StateConnecting
	StateConnected
	StateDisconnected
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateAwaitingProvisioning:
		return "AWAITING_PROVISIONING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}

// Error messages
var (
	ErrHalted = errors.New("connectivity halted for reset")
)

//----------------------------------------------------------------------

// CredentialStore persists exactly one set of credentials.
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(c *Credentials) error
	EraseAll() error
}

// ProvisioningControl starts and stops the provisioning listener.
type ProvisioningControl interface {
	Start() error
	Stop()
}

// eventKind of inbound queue entries
type eventKind int

const (
	evDriver eventKind = iota
	evProvisioning
	evRetry
)

// event in the inbound queue
type event struct {
	kind eventKind
	drv  DriverEvent
	prov ProvisioningEvent
}

// ConnectivityConfig wires the state machine to its collaborators.
type ConnectivityConfig struct {
	Driver        Driver
	Store         CredentialStore
	Restart       func()        // reboot after the store was erased
	RetryInterval time.Duration // reconnect pacing while disconnected (0 = off)
	QueueSize     int
	Clock         Clock
	Logger        *slog.Logger

	// hooks (called from the event loop)
	OnState      func(old, new ConnState)
	OnStoreError func(err error)
}

// Connectivity is the provisioning and connection state machine. All
// transitions happen on the goroutine running Run, one queued event at
// a time in arrival order. Producers only enqueue.
type Connectivity struct {
	cfg  ConnectivityConfig
	prov ProvisioningControl
	log  *slog.Logger

	events chan event
	quit   chan struct{}

	mu        sync.Mutex // held while an event is handled
	state     ConnState
	connected bool
	retry     Timer

	current atomic.Int32
	online  atomic.Bool
	halted  atomic.Bool
}

// NewConnectivity creates the state machine in state Uninitialized.
func NewConnectivity(cfg ConnectivityConfig) *Connectivity {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Connectivity{
		cfg:    cfg,
		log:    orDiscard(cfg.Logger).With(slog.String("component", "wifi")),
		events: make(chan event, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
}

// UseProvisioner sets the provisioning listener (before Run).
func (c *Connectivity) UseProvisioner(p ProvisioningControl) {
	c.prov = p
}

// State returns the current connection state.
func (c *Connectivity) State() ConnState {
	return ConnState(c.current.Load())
}

// Online returns the connected flag of the state machine.
func (c *Connectivity) Online() bool {
	return c.online.Load()
}

// Halted returns true once a reset has begun.
func (c *Connectivity) Halted() bool {
	return c.halted.Load()
}

// Run the event loop until ctx is done. It puts the driver into station
// mode and starts the interface; everything else is event driven.
func (c *Connectivity) Run(ctx context.Context) error {
	defer close(c.quit)
	drv := c.cfg.Driver
	if err := drv.SetStationMode(); err != nil {
		return fmt.Errorf("station mode: %w", err)
	}
	if err := drv.Start(c.PostDriver); err != nil {
		return fmt.Errorf("interface start: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopRetry()
			c.mu.Unlock()
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// PostDriver enqueues a driver event.
func (c *Connectivity) PostDriver(ev DriverEvent) {
	c.post(context.Background(), event{kind: evDriver, drv: ev})
}

// PostProvisioning enqueues a provisioning event.
func (c *Connectivity) PostProvisioning(ctx context.Context, ev ProvisioningEvent) {
	c.post(ctx, event{kind: evProvisioning, prov: ev})
}

// post blocks until the event is queued, ctx ends or the loop is gone.
func (c *Connectivity) post(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	case <-c.quit:
	}
}

// Reset forgets the network: erase the store, then restart. It is
// terminal; no event is handled once it begins. A failing erase still
// restarts the node.
func (c *Connectivity) Reset() error {
	if c.halted.Swap(true) {
		return ErrHalted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRetry()
	c.log.Warn("wifi:reset", slog.String("state", c.state.String()))
	err := c.cfg.Store.EraseAll()
	if err != nil {
		c.log.Error("store:erase", slog.String("err", err.Error()))
	} else {
		c.log.Info("store:erased")
	}
	if c.cfg.Restart != nil {
		c.cfg.Restart()
	}
	return err
}

//----------------------------------------------------------------------

// handle a single event.
func (c *Connectivity) handle(ev event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halted.Load() {
		return
	}
	switch ev.kind {
	case evDriver:
		c.handleDriver(ev.drv)
	case evProvisioning:
		c.handleProvisioning(ev.prov)
	case evRetry:
		if c.state == StateDisconnected {
			c.reconnect()
			c.setState(StateConnecting)
		}
	}
}

func (c *Connectivity) handleDriver(ev DriverEvent) {
	switch ev {
	case EvInterfaceStarted:
		if c.state != StateUninitialized {
			c.log.Debug("wifi:ignored", slog.String("event", ev.String()), slog.String("state", c.state.String()))
			return
		}
		creds, err := c.cfg.Store.Load()
		if err != nil {
			c.log.Error("store:load", slog.String("err", err.Error()))
			c.storeError(err)
			creds = nil
		}
		if creds == nil {
			c.enterProvisioning()
			return
		}
		c.log.Info("wifi:saved-credentials", slog.String("ssid", creds.Identity()))
		if err = c.cfg.Driver.ApplyConfig(creds); err != nil {
			c.log.Error("wifi:config", slog.String("err", err.Error()))
		}
		c.reconnect()
		c.setState(StateConnecting)

	case EvIPAcquired:
		if c.state != StateConnecting && c.state != StateDisconnected {
			c.log.Debug("wifi:ignored", slog.String("event", ev.String()), slog.String("state", c.state.String()))
			return
		}
		c.stopRetry()
		c.connected = true
		c.online.Store(true)
		c.setState(StateConnected)

	case EvDisconnected:
		switch c.state {
		case StateConnecting:
			c.reconnect()
		case StateConnected:
			c.connected = false
			c.online.Store(false)
			c.reconnect()
			c.setState(StateDisconnected)
			c.armRetry()
		case StateDisconnected:
			c.stopRetry()
			c.reconnect()
			c.setState(StateConnecting)
		default:
			c.log.Debug("wifi:ignored", slog.String("event", ev.String()), slog.String("state", c.state.String()))
		}
	}
}

func (c *Connectivity) handleProvisioning(ev ProvisioningEvent) {
	switch ev.Kind {
	case ProvScanStarted:
		c.log.Info("provision:scan-started")
	case ProvChannelFound:
		c.log.Info("provision:channel-found")
	case ProvCredentialsReceived:
		if c.state != StateAwaitingProvisioning || ev.Creds == nil {
			c.log.Warn("provision:unexpected-credentials", slog.String("state", c.state.String()))
			return
		}
		if err := c.cfg.Store.Save(ev.Creds); err != nil {
			// keep waiting for a new session rather than connect with
			// credentials that would be lost on the next boot
			c.log.Error("store:save", slog.String("err", err.Error()))
			c.storeError(err)
			if c.prov != nil {
				c.prov.Stop()
				if err = c.prov.Start(); err != nil {
					c.log.Error("provision:start", slog.String("err", err.Error()))
				}
			}
			return
		}
		drv := c.cfg.Driver
		if err := drv.Disconnect(); err != nil {
			c.log.Debug("wifi:disconnect", slog.String("err", err.Error()))
		}
		if err := drv.ApplyConfig(ev.Creds); err != nil {
			c.log.Error("wifi:config", slog.String("err", err.Error()))
		}
		c.reconnect()
		c.setState(StateConnecting)
	case ProvAckSent:
		c.log.Info("provision:done")
		if c.prov != nil {
			c.prov.Stop()
		}
	}
}

// enterProvisioning starts the listener.
func (c *Connectivity) enterProvisioning() {
	c.setState(StateAwaitingProvisioning)
	if c.prov == nil {
		c.log.Error("provision:unavailable")
		return
	}
	if err := c.prov.Start(); err != nil {
		c.log.Error("provision:start", slog.String("err", err.Error()))
	}
}

// reconnect issues a connect command to the driver.
func (c *Connectivity) reconnect() {
	if err := c.cfg.Driver.Connect(); err != nil {
		c.log.Warn("wifi:connect", slog.String("err", err.Error()))
	}
}

func (c *Connectivity) armRetry() {
	if c.cfg.RetryInterval <= 0 {
		return
	}
	c.stopRetry()
	c.retry = c.cfg.Clock.AfterFunc(c.cfg.RetryInterval, func() {
		c.post(context.Background(), event{kind: evRetry})
	})
}

func (c *Connectivity) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Connectivity) setState(s ConnState) {
	old := c.state
	if old == s {
		return
	}
	c.state = s
	c.current.Store(int32(s))
	c.log.Info("wifi:state", slog.String("from", old.String()), slog.String("to", s.String()))
	if c.cfg.OnState != nil {
		c.cfg.OnState(old, s)
	}
}

func (c *Connectivity) storeError(err error) {
	if c.cfg.OnStoreError != nil {
		c.cfg.OnStoreError(err)
	}
}
