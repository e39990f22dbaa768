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
	"net"
	"net/netip"
)

// HostNet reports the facts of a host network interface (all non-
// loopback interfaces if Name is empty).
type HostNet struct {
	Name string
}

// Interfaces returns the number of matching interfaces that are up.
func (h HostNet) Interfaces() (n int) {
	for _, ifc := range h.list() {
		if ifc.Flags&net.FlagUp != 0 {
			n++
		}
	}
	return
}

// Addr returns the first IPv4 address of a matching interface.
func (h HostNet) Addr() netip.Addr {
	for _, ifc := range h.list() {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			pfx, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			if ip := pfx.Addr(); ip.Is4() && !ip.IsLoopback() {
				return ip
			}
		}
	}
	return netip.Addr{}
}

func (h HostNet) list() []net.Interface {
	if h.Name != "" {
		ifc, err := net.InterfaceByName(h.Name)
		if err != nil {
			return nil
		}
		return []net.Interface{*ifc}
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.Interface
	for _, ifc := range all {
		if ifc.Flags&net.FlagLoopback == 0 {
			out = append(out, ifc)
		}
	}
	return out
}
