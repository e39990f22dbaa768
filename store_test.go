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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDevice fails selected operations of a memory device.
type flakyDevice struct {
	*MemBlockDevice
	failWrite bool
	failErase bool
}

func (d *flakyDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.failWrite {
		return 0, errInjected
	}
	return d.MemBlockDevice.WriteAt(p, off)
}

func (d *flakyDevice) EraseBlocks(start, length int64) error {
	if d.failErase {
		return errInjected
	}
	return d.MemBlockDevice.EraseBlocks(start, length)
}

func TestStoreEmpty(t *testing.T) {
	s := NewStore(NewMemBlockDevice(2, 4096), 0)
	c, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(NewMemBlockDevice(4, 4096), 2)
	want := mustCreds(t, "HomeNet", "hunter22")
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.Equal(t, "HomeNet", got.Identity())
	assert.Equal(t, "hunter22", got.Secret())
}

func TestStoreOverwrite(t *testing.T) {
	s := NewStore(NewMemBlockDevice(2, 4096), 0)
	for _, ssid := range []string{"first", "second", "third"} {
		require.NoError(t, s.Save(mustCreds(t, ssid, "pw-"+ssid)))
		got, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, ssid, got.Identity())
		assert.Equal(t, "pw-"+ssid, got.Secret())
	}
}

func TestStoreEmptySecret(t *testing.T) {
	s := NewStore(NewMemBlockDevice(2, 4096), 0)
	require.NoError(t, s.Save(mustCreds(t, "open-net", "")))
	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "", got.Secret())
}

func TestStoreEraseAll(t *testing.T) {
	s := NewStore(NewMemBlockDevice(2, 4096), 0)

	// erasing an empty store is fine
	require.NoError(t, s.EraseAll())

	require.NoError(t, s.Save(mustCreds(t, "HomeNet", "hunter22")))
	require.NoError(t, s.Save(mustCreds(t, "HomeNet", "hunter23")))
	require.NoError(t, s.EraseAll())
	c, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, c)

	// and again
	require.NoError(t, s.EraseAll())
}

func TestStoreTornWrite(t *testing.T) {
	dev := NewMemBlockDevice(2, 4096)
	s := NewStore(dev, 0)
	require.NoError(t, s.Save(mustCreds(t, "old", "old-secret")))
	require.NoError(t, s.Save(mustCreds(t, "new", "new-secret")))

	// the second save went to slot 1; damage its payload
	b := make([]byte, 1)
	_, err := dev.ReadAt(b, 4096+recHdrSize+3)
	require.NoError(t, err)
	dev.data[4096+recHdrSize+3] = b[0] ^ 0x5a

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old", got.Identity())

	// the next save replaces the damaged slot
	require.NoError(t, s.Save(mustCreds(t, "newer", "x")))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Identity())
}

func TestStoreMissingEntry(t *testing.T) {
	dev := NewMemBlockDevice(2, 4096)
	data, err := encodeRecord(7, &credRecord{
		Namespace: StoreNamespace,
		Entries:   map[string]string{keySSID: "only-ssid"},
	})
	require.NoError(t, err)
	_, err = dev.WriteAt(data, 0)
	require.NoError(t, err)

	c, err := NewStore(dev, 0).Load()
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestStoreUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		dev   BlockDevice
		first int64
	}{
		{"no device", nil, 0},
		{"small blocks", NewMemBlockDevice(4, 64), 0},
		{"outside", NewMemBlockDevice(2, 4096), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.dev, tt.first)
			_, err := s.Load()
			assert.ErrorIs(t, err, ErrStoreUnavailable)
			assert.ErrorIs(t, s.Save(mustCreds(t, "net", "pw")), ErrStoreUnavailable)
			assert.ErrorIs(t, s.EraseAll(), ErrStoreUnavailable)
		})
	}
}

func TestStoreIOFailure(t *testing.T) {
	dev := &flakyDevice{MemBlockDevice: NewMemBlockDevice(2, 4096)}
	s := NewStore(dev, 0)
	require.NoError(t, s.Save(mustCreds(t, "kept", "pw")))

	dev.failWrite = true
	err := s.Save(mustCreds(t, "lost", "pw"))
	require.ErrorIs(t, err, ErrStoreIO)
	assert.True(t, errors.Is(err, errInjected))
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "save", serr.Op)

	// the previous record survives a failed save
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Identity())

	dev.failErase = true
	assert.ErrorIs(t, s.EraseAll(), ErrStoreIO)
}

func TestStoreSaveNil(t *testing.T) {
	s := NewStore(NewMemBlockDevice(2, 4096), 0)
	err := s.Save(nil)
	assert.ErrorIs(t, err, ErrNoCredential)

	// a caller error, not a medium failure
	var serr *StoreError
	assert.False(t, errors.As(err, &serr))
	assert.NotErrorIs(t, err, ErrStoreIO)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	// nothing was written
	c, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, c)
}
