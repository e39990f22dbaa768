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
	"sync"
)

// Error messages
var (
	errOutOfRange = errors.New("access outside block device")
)

// erased flash cells read as all ones
const erasedByte = 0xff

// MemBlockDevice is a RAM-backed block device (simulation and tests).
type MemBlockDevice struct {
	mu   sync.Mutex
	data []byte
	blk  int64
}

// NewMemBlockDevice with the given number of erase blocks.
func NewMemBlockDevice(blocks int, blockSize int64) *MemBlockDevice {
	d := &MemBlockDevice{
		data: make([]byte, int64(blocks)*blockSize),
		blk:  blockSize,
	}
	for i := range d.data {
		d.data[i] = erasedByte
	}
	return d
}

// ReadAt reads len(p) bytes at offset.
func (d *MemBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, errOutOfRange
	}
	return copy(p, d.data[off:]), nil
}

// WriteAt programs len(p) bytes at offset. Like flash, bits can only be
// cleared; writing over unerased cells ANDs the values.
func (d *MemBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, errOutOfRange
	}
	for i, b := range p {
		d.data[off+int64(i)] &= b
	}
	return len(p), nil
}

// Size of the device in bytes
func (d *MemBlockDevice) Size() int64 {
	return int64(len(d.data))
}

// EraseBlockSize in bytes
func (d *MemBlockDevice) EraseBlockSize() int64 {
	return d.blk
}

// EraseBlocks resets length blocks starting at block index start.
func (d *MemBlockDevice) EraseBlocks(start, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	from, to := start*d.blk, (start+length)*d.blk
	if start < 0 || length < 0 || to > int64(len(d.data)) {
		return errOutOfRange
	}
	for i := from; i < to; i++ {
		d.data[i] = erasedByte
	}
	return nil
}
