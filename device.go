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
	"net"
	"net/netip"
)

// Device is a hardware abstraction
type Device interface {
	// LED on or off (if applicable)
	LED(on bool)
}

//----------------------------------------------------------------------

// DriverEvent is reported by the wireless driver.
type DriverEvent int

// driver events
const (
	EvInterfaceStarted DriverEvent = iota // station interface is up
	EvDisconnected                        // association lost (or failed)
	EvIPAcquired                          // address assigned via DHCP
)

// String returns a human-readable event name.
func (ev DriverEvent) String() string {
	switch ev {
	case EvInterfaceStarted:
		return "interface-started"
	case EvDisconnected:
		return "disconnected"
	case EvIPAcquired:
		return "ip-acquired"
	}
	return "unknown"
}

// Driver is the wireless station driver controlled by the connectivity
// state machine. Events must be delivered from the driver's own
// goroutines, never from within a call to one of its methods.
type Driver interface {
	// SetStationMode prepares the radio for station operation.
	SetStationMode() error
	// Start brings up the interface; notify receives all driver events.
	Start(notify func(DriverEvent)) error
	// ApplyConfig sets the credentials used by the next Connect.
	ApplyConfig(c *Credentials) error
	// Connect starts an association attempt.
	Connect() error
	// Disconnect drops the current association (if any).
	Disconnect() error
	// HardwareAddr returns the station MAC.
	HardwareAddr() [6]byte
}

// NetInfo exposes driver-level facts used by the readiness gate.
type NetInfo interface {
	// Interfaces returns the number of network interfaces.
	Interfaces() int
	// Addr returns the assigned address (invalid if none).
	Addr() netip.Addr
}

// Restarter reboots the node.
type Restarter interface {
	Restart()
}

// PortListener opens TCP listeners for serving the namespace.
type PortListener interface {
	Listen(port uint16) (net.Listener, error)
}
