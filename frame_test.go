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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect frames through an assembler; returns the decoded credentials.
func assemble(t *testing.T, frames [][]byte) *Credentials {
	t.Helper()
	var asm assembler
	for _, b := range frames {
		f, err := parseFrame(b)
		require.NoError(t, err)
		if body, ok := asm.add(f); ok {
			c, err := decodePayload(body)
			require.NoError(t, err)
			return c
		}
	}
	t.Fatal("session incomplete")
	return nil
}

func TestFrameSession(t *testing.T) {
	addr := [6]byte{1, 2, 3, 4, 5, 6}
	want, err := NewCredentials("CoffeeShop-5G", "correct horse battery staple", &addr)
	require.NoError(t, err)

	frames, err := EncodeProvisioning(want, 42, 8)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)
	for i, f := range frames {
		assert.Equal(t, []byte{'P', 'V', frameVersion, 42, byte(i), byte(len(frames))}, f[:frameHdrSize])
	}
	assert.True(t, want.Equal(assemble(t, frames)))
}

func TestFrameOutOfOrder(t *testing.T) {
	want := mustCreds(t, "HomeNet", "hunter22")
	frames, err := EncodeProvisioning(want, 7, 4)
	require.NoError(t, err)

	// reversed, with every frame repeated
	var mixed [][]byte
	for i := len(frames) - 1; i >= 0; i-- {
		mixed = append(mixed, frames[i], frames[i])
	}
	assert.True(t, want.Equal(assemble(t, mixed)))
}

func TestFrameSessionSwitch(t *testing.T) {
	old := mustCreds(t, "OldNet", "old-password")
	cur := mustCreds(t, "NewNet", "new-password")
	a, err := EncodeProvisioning(old, 1, 8)
	require.NoError(t, err)
	b, err := EncodeProvisioning(cur, 2, 8)
	require.NoError(t, err)

	// a partial old session is dropped when the new one starts
	frames := append([][]byte{a[0]}, b...)
	assert.True(t, cur.Equal(assemble(t, frames)))
}

func TestFrameMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"short", []byte{'P', 'V', 1}, ErrFrameShort},
		{"magic", []byte{'X', 'V', 1, 0, 0, 1, 0}, ErrFrameMagic},
		{"version", []byte{'P', 'V', 9, 0, 0, 1, 0}, ErrFrameVersion},
		{"no chunks", []byte{'P', 'V', 1, 0, 0, 0}, ErrFrameIndex},
		{"index", []byte{'P', 'V', 1, 0, 3, 3, 0}, ErrFrameIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFrame(tt.data)
			assert.ErrorIs(t, err, tt.err)
			var perr *ProvisioningError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestPayloadTampered(t *testing.T) {
	frames, err := EncodeProvisioning(mustCreds(t, "HomeNet", "hunter22"), 3, 64)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	f, err := parseFrame(frames[0])
	require.NoError(t, err)

	body := append([]byte(nil), f.chunk...)
	body[2] ^= 0x01
	_, err = decodePayload(body)
	assert.ErrorIs(t, err, ErrPayloadTag)

	_, err = decodePayload(body[:4])
	assert.ErrorIs(t, err, ErrPayload)
}

func TestAck(t *testing.T) {
	mac := [6]byte{0x02, 0, 0, 0xaa, 0xbb, 0xcc}
	b := encodeAck(9, mac)
	require.Len(t, b, ackSize)
	session, got, err := ParseAck(b)
	require.NoError(t, err)
	assert.Equal(t, byte(9), session)
	assert.Equal(t, mac, got)

	_, _, err = ParseAck(b[:5])
	assert.ErrorIs(t, err, ErrAck)
	_, _, err = ParseAck(append([]byte{'P', 'V'}, b[2:]...))
	assert.ErrorIs(t, err, ErrAck)
}
