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
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// persisted layout
const (
	StoreNamespace = "wifi_creds" // namespace of the credential entries
	keySSID        = "ssid"
	keyPassword    = "password"

	recMagic   = "PNS1"
	recHdrSize = 10 // magic + generation + length
	recTagSize = 8  // truncated blake3
	recMinBlk  = 256
)

//----------------------------------------------------------------------

// StoreErrorKind classifies store failures.
type StoreErrorKind int

// store error kinds
const (
	StoreUnavailable StoreErrorKind = iota + 1 // medium not ready
	StoreIOFailure                             // read/write/erase failed
)

// Error messages
var (
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrStoreIO          = errors.New("credential store i/o failure")
)

// StoreError is returned by store operations that fail at the medium. It
// matches ErrStoreUnavailable or ErrStoreIO with errors.Is. Caller errors
// (Save(nil)) are reported as plain sentinels.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	kind := ErrStoreIO
	if e.Kind == StoreUnavailable {
		kind = ErrStoreUnavailable
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrStoreUnavailable:
		return e.Kind == StoreUnavailable
	case ErrStoreIO:
		return e.Kind == StoreIOFailure
	}
	return false
}

func unavailable(op string, err error) error {
	return &StoreError{Kind: StoreUnavailable, Op: op, Err: err}
}

func ioFailure(op string, err error) error {
	return &StoreError{Kind: StoreIOFailure, Op: op, Err: err}
}

//----------------------------------------------------------------------

// BlockDevice is an erasable storage medium. The method set matches
// the TinyGo machine.Flash device; EraseBlocks takes block indices.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// credRecord is the CBOR payload of a slot.
type credRecord struct {
	Namespace string            `cbor:"1,keyasint"`
	Entries   map[string]string `cbor:"2,keyasint"`
}

var recEncMode cbor.EncMode

func init() {
	var err error
	if recEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
}

//----------------------------------------------------------------------

// Store persists the network credentials in two erase-block slots.
// Every save writes a complete record with a higher generation into
// the slot not holding the newest record, so a record is either fully
// visible or not at all.
type Store struct {
	mu    sync.Mutex
	dev   BlockDevice
	first int64 // index of the first slot block
}

// NewStore uses the blocks first and first+1 of the device.
func NewStore(dev BlockDevice, first int64) *Store {
	return &Store{
		dev:   dev,
		first: first,
	}
}

// Load returns the stored credentials or nil if either entry is missing
// or nothing was ever written.
func (s *Store) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("load"); err != nil {
		return nil, err
	}
	rec, _, _, err := s.newest()
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Namespace != StoreNamespace {
		return nil, nil
	}
	ssid, ok1 := rec.Entries[keySSID]
	passwd, ok2 := rec.Entries[keyPassword]
	if !ok1 || !ok2 {
		return nil, nil
	}
	c, err := NewCredentials(ssid, passwd, nil)
	if err != nil {
		return nil, ioFailure("load", err)
	}
	return c, nil
}

// Save overwrites both entries in a single commit. A nil credential is
// rejected with ErrNoCredential without touching the medium.
func (s *Store) Save(c *Credentials) error {
	if c == nil {
		return ErrNoCredential
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("save"); err != nil {
		return err
	}
	rec, slot, gen, err := s.newest()
	if err != nil {
		return err
	}
	target := int64(0)
	if rec != nil {
		target = 1 - slot
		gen++
	}
	data, err := encodeRecord(gen, &credRecord{
		Namespace: StoreNamespace,
		Entries: map[string]string{
			keySSID:     c.Identity(),
			keyPassword: c.Secret(),
		},
	})
	if err != nil {
		return ioFailure("save", err)
	}
	blk := s.dev.EraseBlockSize()
	if int64(len(data)) > blk {
		return ioFailure("save", errors.New("record exceeds erase block"))
	}
	if err = s.dev.EraseBlocks(s.first+target, 1); err != nil {
		return ioFailure("save", err)
	}
	if _, err = s.dev.WriteAt(data, (s.first+target)*blk); err != nil {
		return ioFailure("save", err)
	}
	return nil
}

// EraseAll removes both entries. Erasing an empty store is not an error.
func (s *Store) EraseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("erase"); err != nil {
		return err
	}
	if err := s.dev.EraseBlocks(s.first, 2); err != nil {
		return ioFailure("erase", err)
	}
	return nil
}

// check that the medium can hold both slots.
func (s *Store) check(op string) error {
	if s.dev == nil {
		return unavailable(op, errors.New("no block device"))
	}
	blk := s.dev.EraseBlockSize()
	if blk < recMinBlk {
		return unavailable(op, fmt.Errorf("erase block too small (%d)", blk))
	}
	if s.first < 0 || (s.first+2)*blk > s.dev.Size() {
		return unavailable(op, errors.New("slots outside device"))
	}
	return nil
}

// newest returns the valid record with the highest generation (nil if
// both slots are empty or corrupt).
func (s *Store) newest() (rec *credRecord, slot int64, gen uint32, err error) {
	for i := int64(0); i < 2; i++ {
		r, g, e := s.readSlot(i)
		if e != nil {
			return nil, 0, 0, e
		}
		if r != nil && (rec == nil || g > gen) {
			rec, slot, gen = r, i, g
		}
	}
	return
}

// readSlot decodes a slot; a slot without a valid record yields nil.
func (s *Store) readSlot(i int64) (*credRecord, uint32, error) {
	blk := s.dev.EraseBlockSize()
	off := (s.first + i) * blk
	hdr := make([]byte, recHdrSize)
	if _, err := s.dev.ReadAt(hdr, off); err != nil {
		return nil, 0, ioFailure("read", err)
	}
	if string(hdr[:4]) != recMagic {
		return nil, 0, nil
	}
	gen := binary.BigEndian.Uint32(hdr[4:8])
	size := int64(binary.BigEndian.Uint16(hdr[8:10]))
	if size > blk-recHdrSize-recTagSize {
		return nil, 0, nil
	}
	body := make([]byte, size+recTagSize)
	if _, err := s.dev.ReadAt(body, off+recHdrSize); err != nil {
		return nil, 0, ioFailure("read", err)
	}
	payload, tag := body[:size], body[size:]
	if !bytes.Equal(tag, recordTag(hdr, payload)) {
		return nil, 0, nil
	}
	rec := new(credRecord)
	if err := cbor.Unmarshal(payload, rec); err != nil {
		return nil, 0, nil
	}
	return rec, gen, nil
}

// encodeRecord serializes a slot record.
func encodeRecord(gen uint32, rec *credRecord) ([]byte, error) {
	payload, err := recEncMode.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xffff {
		return nil, errors.New("record too large")
	}
	buf := make([]byte, recHdrSize, recHdrSize+len(payload)+recTagSize)
	copy(buf, recMagic)
	binary.BigEndian.PutUint32(buf[4:8], gen)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(payload)))
	buf = append(buf, payload...)
	return append(buf, recordTag(buf[:recHdrSize], payload)...), nil
}

// recordTag authenticates header and payload against torn writes.
func recordTag(hdr, payload []byte) []byte {
	h := blake3.New()
	h.Write(hdr)
	h.Write(payload)
	return h.Sum(nil)[:recTagSize]
}
