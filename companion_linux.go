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
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Provision plays the companion role: it repeats the frames for the
// credentials towards target (host:port, usually a broadcast address)
// until a node confirms the session or ctx ends. It returns the MAC of
// the confirming node.
func Provision(ctx context.Context, target string, c *Credentials, session byte) (mac [6]byte, err error) {
	frames, err := EncodeProvisioning(c, session, DefaultChunkSize)
	if err != nil {
		return
	}
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return
	}
	lc := net.ListenConfig{Control: broadcastControl}
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return
	}
	defer conn.Close()

	buf := make([]byte, 64)
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		for _, f := range frames {
			if _, err = conn.WriteTo(f, dst); err != nil {
				return
			}
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		for {
			n, _, rerr := conn.ReadFrom(buf)
			if rerr != nil {
				if !errors.Is(rerr, os.ErrDeadlineExceeded) {
					err = rerr
					return
				}
				break
			}
			sid, addr, perr := ParseAck(buf[:n])
			if perr == nil && sid == session {
				return addr, nil
			}
		}
	}
}

// broadcastControl enables sending to broadcast addresses.
func broadcastControl(_, _ string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
