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
	"errors"
	"net"
)

// credential limits (802.11 SSID and WPA2 passphrase)
const (
	MaxIdentityLen = 32
	MaxSecretLen   = 64
)

// Error messages
var (
	ErrNoIdentity   = errors.New("empty network identity")
	ErrIdentityLen  = errors.New("network identity too long")
	ErrSecretLen    = errors.New("network secret too long")
	ErrNoCredential = errors.New("no credentials")
)

// Credentials of a wireless network. A value is never modified after
// construction; new provisioning always yields a new value.
type Credentials struct {
	identity string
	secret   string
	bssid    *[6]byte
}

// NewCredentials validates and returns network credentials. The fixed
// station address is optional (nil).
func NewCredentials(identity, secret string, bssid *[6]byte) (*Credentials, error) {
	switch {
	case len(identity) == 0:
		return nil, ErrNoIdentity
	case len(identity) > MaxIdentityLen:
		return nil, ErrIdentityLen
	case len(secret) > MaxSecretLen:
		return nil, ErrSecretLen
	}
	c := &Credentials{
		identity: identity,
		secret:   secret,
	}
	if bssid != nil {
		addr := *bssid
		c.bssid = &addr
	}
	return c, nil
}

// Identity (SSID) of the network
func (c *Credentials) Identity() string { return c.identity }

// Secret (passphrase) of the network
func (c *Credentials) Secret() string { return c.secret }

// BSSID returns the fixed station address and true if one is set.
func (c *Credentials) BSSID() (addr [6]byte, ok bool) {
	if c.bssid == nil {
		return
	}
	return *c.bssid, true
}

// Equal returns true if both credentials are identical.
func (c *Credentials) Equal(o *Credentials) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.identity != o.identity || c.secret != o.secret {
		return false
	}
	a, okA := c.BSSID()
	b, okB := o.BSSID()
	return okA == okB && a == b
}

// String never reveals the secret.
func (c *Credentials) String() string {
	s := c.identity
	if addr, ok := c.BSSID(); ok {
		s += "@" + net.HardwareAddr(addr[:]).String()
	}
	return s
}
