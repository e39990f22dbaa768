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
	"fmt"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service of the namespace
const (
	ServiceType9P = "_9p._tcp"
	mdnsDomain    = "local."
)

// Announce advertises the 9p namespace of the node. Call Shutdown on
// the returned server when the network goes away.
func Announce(nodeID, hostname string, port uint16) (*zeroconf.Server, error) {
	txt := []string{
		"id=" + nodeID,
		"host=" + hostname,
	}
	srv, err := zeroconf.Register(hostname, ServiceType9P, mdnsDomain, int(port), txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return srv, nil
}
