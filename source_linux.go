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
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// DefaultProvisionPort is the UDP port provisioning frames are sent to.
const DefaultProvisionPort = 18266

// UDPSource receives provisioning frames as UDP broadcasts and answers
// the sender of the last frame.
type UDPSource struct {
	port int

	mu   sync.Mutex
	conn net.PacketConn
	peer net.Addr
}

// NewUDPSource listens on the given port once opened.
func NewUDPSource(port int) *UDPSource {
	if port <= 0 {
		port = DefaultProvisionPort
	}
	return &UDPSource{port: port}
}

// Open the socket.
func (s *UDPSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// ReadFrame returns the next datagram.
func (s *UDPSource) ReadFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrSourceClosed
	}
	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrSourceClosed
			}
			return nil, err
		}
		s.mu.Lock()
		s.peer = addr
		s.mu.Unlock()
		return buf[:n], nil
	}
}

// SendAck to the companion.
func (s *UDPSource) SendAck(ack []byte) error {
	s.mu.Lock()
	conn, peer := s.conn, s.peer
	s.mu.Unlock()
	if conn == nil {
		return ErrSourceClosed
	}
	if peer == nil {
		return errors.New("no provisioning peer")
	}
	_, err := conn.WriteTo(ack, peer)
	return err
}

// Close the socket.
func (s *UDPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn, s.peer = nil, nil
	return err
}
