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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlockDevicePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	dev, err := OpenFileBlockDevice(path, 4, 4096)
	require.NoError(t, err)
	require.NoError(t, NewStore(dev, 2).Save(mustCreds(t, "HomeNet", "hunter22")))
	require.NoError(t, dev.Close())

	dev, err = OpenFileBlockDevice(path, 4, 4096)
	require.NoError(t, err)
	defer dev.Close()
	c, err := NewStore(dev, 2).Load()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "HomeNet", c.Identity())
}

func TestFileBlockDeviceErased(t *testing.T) {
	dev, err := OpenFileBlockDevice(filepath.Join(t.TempDir(), "flash.img"), 2, 4096)
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, int64(8192), dev.Size())

	b := make([]byte, 16)
	_, err = dev.ReadAt(b, 4090)
	require.NoError(t, err)
	for _, v := range b {
		assert.Equal(t, byte(erasedByte), v)
	}
}

func TestFileBlockDeviceSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o600))
	_, err := OpenFileBlockDevice(path, 2, 4096)
	assert.Error(t, err)
}

func TestMemBlockDevice(t *testing.T) {
	dev := NewMemBlockDevice(2, 256)
	_, err := dev.WriteAt([]byte{0x0f}, 10)
	require.NoError(t, err)
	// programming only clears bits
	_, err = dev.WriteAt([]byte{0xf3}, 10)
	require.NoError(t, err)
	b := make([]byte, 1)
	_, err = dev.ReadAt(b, 10)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), b[0])

	require.NoError(t, dev.EraseBlocks(0, 1))
	_, err = dev.ReadAt(b, 10)
	require.NoError(t, err)
	assert.Equal(t, byte(erasedByte), b[0])

	_, err = dev.ReadAt(b, 512)
	assert.ErrorIs(t, err, errOutOfRange)
	assert.ErrorIs(t, dev.EraseBlocks(1, 2), errOutOfRange)
}
