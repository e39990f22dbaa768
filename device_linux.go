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

package provnode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Error messages
var (
	errNotStation = errors.New("radio not in station mode")
	errNotStarted = errors.New("interface not started")
)

// LinuxDevice simulates a WiFi station on a Linux host (for testing
// purposes). Joins succeed after JoinDelay if the access point is
// reachable and the credentials match (when Expect is set). While
// joined, the link is checked every LinkPoll.
type LinuxDevice struct {
	JoinDelay time.Duration
	LinkPoll  time.Duration
	Logger    *slog.Logger

	mu        sync.Mutex
	notify    func(DriverEvent)
	station   bool
	started   bool
	creds     *Credentials
	expect    *Credentials
	reachable bool
	joining   bool
	assoc     bool
	addr      netip.Addr
	mac       [6]byte
	leases    byte
	linkGen   uint32
	unwatch   func()
}

// InitDevice creates the simulated device.
func InitDevice() *LinuxDevice {
	dev := &LinuxDevice{
		JoinDelay: time.Second,
		LinkPoll:  DefaultLinkPoll,
		reachable: true,
	}
	rand.Read(dev.mac[:])
	dev.mac[0] = dev.mac[0]&0xfe | 0x02 // locally administered, unicast
	return dev
}

// LED on or off (not applicable)
func (dev *LinuxDevice) LED(on bool) {}

// Restart re-executes the running binary.
func (dev *LinuxDevice) Restart() {
	exe, err := os.Executable()
	if err == nil {
		err = unix.Exec(exe, os.Args, os.Environ())
	}
	fmt.Fprintf(os.Stderr, "restart failed: %v\n", err)
	os.Exit(3)
}

// Listen returns a TCP listener on the given port.
func (dev *LinuxDevice) Listen(port uint16) (net.Listener, error) {
	cfg := new(net.ListenConfig)
	return cfg.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
}

//----------------------------------------------------------------------
// Driver implementation

// SetStationMode of the simulated radio
func (dev *LinuxDevice) SetStationMode() error {
	dev.mu.Lock()
	dev.station = true
	dev.mu.Unlock()
	return nil
}

// Start the interface.
func (dev *LinuxDevice) Start(notify func(DriverEvent)) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.station {
		return errNotStation
	}
	dev.notify = notify
	dev.started = true
	go notify(EvInterfaceStarted)
	return nil
}

// ApplyConfig for the next join.
func (dev *LinuxDevice) ApplyConfig(c *Credentials) error {
	dev.mu.Lock()
	dev.creds = c
	dev.mu.Unlock()
	return nil
}

// Connect starts a join attempt; the outcome is reported as an event.
func (dev *LinuxDevice) Connect() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.started {
		return errNotStarted
	}
	if dev.joining || dev.assoc {
		return nil
	}
	dev.joining = true
	go dev.join()
	return nil
}

// join simulates association and DHCP.
func (dev *LinuxDevice) join() {
	time.Sleep(dev.JoinDelay)
	dev.mu.Lock()
	dev.joining = false
	ok := dev.creds != nil && dev.reachable &&
		(dev.expect == nil || dev.expect.Equal(dev.creds))
	stale := dev.unwatch
	if stale != nil {
		dev.linkGen++
		dev.unwatch = nil
	}
	if ok {
		dev.assoc = true
		dev.leases++
		dev.addr = netip.AddrFrom4([4]byte{10, 42, 0, 10 + dev.leases%200})
		dev.linkGen++
		gen := dev.linkGen
		dev.unwatch = watchLink(SystemClock(), dev.LinkPoll, dev.linkUp, func() {
			dev.linkLost(gen)
		})
	}
	notify := dev.notify
	dev.mu.Unlock()
	if stale != nil {
		stale()
	}

	if ok {
		orDiscard(dev.Logger).Info("sim:joined", slog.String("addr", dev.Addr().String()))
		notify(EvIPAcquired)
	} else {
		notify(EvDisconnected)
	}
}

// Disconnect drops the association silently.
func (dev *LinuxDevice) Disconnect() error {
	dev.mu.Lock()
	dev.linkGen++
	dev.assoc = false
	dev.addr = netip.Addr{}
	stop := dev.unwatch
	dev.unwatch = nil
	dev.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

// linkUp is true while associated with a reachable access point.
func (dev *LinuxDevice) linkUp() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.assoc && dev.reachable
}

// linkLost reports the end of association gen (once).
func (dev *LinuxDevice) linkLost(gen uint32) {
	dev.mu.Lock()
	if gen != dev.linkGen {
		dev.mu.Unlock()
		return
	}
	dev.linkGen++
	dev.assoc = false
	dev.addr = netip.Addr{}
	dev.unwatch = nil
	notify := dev.notify
	dev.mu.Unlock()
	orDiscard(dev.Logger).Info("sim:link-lost")
	go notify(EvDisconnected)
}

// HardwareAddr of the simulated station
func (dev *LinuxDevice) HardwareAddr() [6]byte {
	return dev.mac
}

//----------------------------------------------------------------------
// NetInfo implementation

// Interfaces returns 1 once the interface is started.
func (dev *LinuxDevice) Interfaces() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.started {
		return 1
	}
	return 0
}

// Addr returns the leased address (if associated).
func (dev *LinuxDevice) Addr() netip.Addr {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.addr
}

//----------------------------------------------------------------------
// simulation controls

// SetReachable switches the simulated access point on or off. Taking
// it away ends a current association (reported by the link watcher).
func (dev *LinuxDevice) SetReachable(on bool) {
	dev.mu.Lock()
	dev.reachable = on
	dev.mu.Unlock()
}

// Expect makes joins fail unless the applied credentials match.
func (dev *LinuxDevice) Expect(c *Credentials) {
	dev.mu.Lock()
	dev.expect = c
	dev.mu.Unlock()
}

// DropLink loses the association; the link watcher reports it.
func (dev *LinuxDevice) DropLink() {
	dev.mu.Lock()
	dev.assoc = false
	dev.mu.Unlock()
}
