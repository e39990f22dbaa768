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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		ssid, pw string
		err      error
	}{
		{"net", "secret", nil},
		{"net", "", nil},
		{strings.Repeat("s", MaxIdentityLen), strings.Repeat("p", MaxSecretLen), nil},
		{"", "secret", ErrNoIdentity},
		{strings.Repeat("s", MaxIdentityLen+1), "", ErrIdentityLen},
		{"net", strings.Repeat("p", MaxSecretLen+1), ErrSecretLen},
	}
	for _, tt := range tests {
		_, err := NewCredentials(tt.ssid, tt.pw, nil)
		assert.ErrorIs(t, err, tt.err, "ssid=%q", tt.ssid)
	}
}

func TestCredentialsBSSID(t *testing.T) {
	addr := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	c, err := NewCredentials("net", "secret", &addr)
	require.NoError(t, err)

	// later changes of the caller's array are not visible
	addr[0] = 0
	got, ok := c.BSSID()
	require.True(t, ok)
	assert.Equal(t, byte(0xde), got[0])
	assert.Equal(t, "net@de:ad:be:ef:00:01", c.String())

	plain := mustCreds(t, "net", "secret")
	assert.False(t, c.Equal(plain))
	assert.True(t, plain.Equal(mustCreds(t, "net", "secret")))
	assert.NotContains(t, plain.String(), "secret")
}

func TestCredentialsEqualNil(t *testing.T) {
	var a, b *Credentials
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(mustCreds(t, "net", "")))
}
