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
	"bytes"
	"fmt"
	"os"
)

// FileBlockDevice keeps a flash image in a file on the host.
type FileBlockDevice struct {
	f    *os.File
	size int64
	blk  int64
}

// OpenFileBlockDevice opens (or creates) an image of the given number of
// erase blocks. A new image starts out erased.
func OpenFileBlockDevice(path string, blocks int, blockSize int64) (*FileBlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	d := &FileBlockDevice{
		f:    f,
		size: int64(blocks) * blockSize,
		blk:  blockSize,
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch {
	case fi.Size() == 0:
		if err = d.EraseBlocks(0, int64(blocks)); err != nil {
			f.Close()
			return nil, err
		}
	case fi.Size() != d.size:
		f.Close()
		return nil, fmt.Errorf("image %s: size %d, want %d", path, fi.Size(), d.size)
	}
	return d, nil
}

// ReadAt reads from the image.
func (d *FileBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, errOutOfRange
	}
	return d.f.ReadAt(p, off)
}

// WriteAt writes to the image and flushes it to disk.
func (d *FileBlockDevice) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, errOutOfRange
	}
	if n, err = d.f.WriteAt(p, off); err != nil {
		return
	}
	err = d.f.Sync()
	return
}

// Size of the image in bytes
func (d *FileBlockDevice) Size() int64 {
	return d.size
}

// EraseBlockSize in bytes
func (d *FileBlockDevice) EraseBlockSize() int64 {
	return d.blk
}

// EraseBlocks fills the given blocks with the erased value.
func (d *FileBlockDevice) EraseBlocks(start, length int64) error {
	if start < 0 || length < 0 || (start+length)*d.blk > d.size {
		return errOutOfRange
	}
	if length == 0 {
		return nil
	}
	blank := bytes.Repeat([]byte{erasedByte}, int(d.blk))
	for i := start; i < start+length; i++ {
		if _, err := d.f.WriteAt(blank, i*d.blk); err != nil {
			return err
		}
	}
	return d.f.Sync()
}

// Close the image file.
func (d *FileBlockDevice) Close() error {
	return d.f.Close()
}
