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
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Provisioning frames are broadcast repeatedly by the companion app:
//
//	'P' 'V' | version | session | index | total | chunk...
//
// The chunks of a session concatenate to a CBOR payload followed by a
// truncated blake3 tag. The node answers with
//
//	'P' 'A' | session | station MAC (6 bytes)
const (
	frameVersion     = 1
	frameHdrSize     = 6
	payloadTagSize   = 8
	ackSize          = 9
	DefaultChunkSize = 32
)

// Error messages
var (
	ErrFrameShort   = errors.New("frame too short")
	ErrFrameMagic   = errors.New("not a provisioning frame")
	ErrFrameVersion = errors.New("unsupported frame version")
	ErrFrameIndex   = errors.New("frame index out of range")
	ErrPayloadTag   = errors.New("payload tag mismatch")
	ErrPayload      = errors.New("malformed payload")
	ErrAck          = errors.New("malformed acknowledgement")
)

// ProvisioningError reports a frame or payload that was discarded.
type ProvisioningError struct {
	Err error
}

func (e *ProvisioningError) Error() string { return "provisioning: " + e.Err.Error() }
func (e *ProvisioningError) Unwrap() error { return e.Err }

func provErr(err error) error {
	return &ProvisioningError{Err: err}
}

// provPayload is the CBOR body of a provisioning session.
type provPayload struct {
	SSID     string `cbor:"1,keyasint"`
	Password string `cbor:"2,keyasint"`
	BSSID    []byte `cbor:"3,keyasint,omitempty"`
}

//----------------------------------------------------------------------

// frame is a parsed provisioning packet.
type frame struct {
	session byte
	index   byte
	total   byte
	chunk   []byte
}

// parseFrame checks the header of a raw packet.
func parseFrame(b []byte) (*frame, error) {
	if len(b) < frameHdrSize {
		return nil, provErr(ErrFrameShort)
	}
	if b[0] != 'P' || b[1] != 'V' {
		return nil, provErr(ErrFrameMagic)
	}
	if b[2] != frameVersion {
		return nil, provErr(ErrFrameVersion)
	}
	f := &frame{
		session: b[3],
		index:   b[4],
		total:   b[5],
		chunk:   b[frameHdrSize:],
	}
	if f.total == 0 || f.index >= f.total {
		return nil, provErr(ErrFrameIndex)
	}
	return f, nil
}

// EncodeProvisioning returns the frames a companion broadcasts to
// provision a node with the given credentials.
func EncodeProvisioning(c *Credentials, session byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	pl := provPayload{
		SSID:     c.Identity(),
		Password: c.Secret(),
	}
	if addr, ok := c.BSSID(); ok {
		pl.BSSID = addr[:]
	}
	body, err := recEncMode.Marshal(pl)
	if err != nil {
		return nil, err
	}
	tag := blake3.Sum256(body)
	body = append(body, tag[:payloadTagSize]...)

	n := (len(body) + chunkSize - 1) / chunkSize
	if n > 255 {
		return nil, ErrPayload
	}
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		end := min((i+1)*chunkSize, len(body))
		f := []byte{'P', 'V', frameVersion, session, byte(i), byte(n)}
		frames = append(frames, append(f, body[i*chunkSize:end]...))
	}
	return frames, nil
}

// decodePayload verifies and decodes a reassembled session payload.
func decodePayload(body []byte) (*Credentials, error) {
	if len(body) <= payloadTagSize {
		return nil, provErr(ErrPayload)
	}
	data, tag := body[:len(body)-payloadTagSize], body[len(body)-payloadTagSize:]
	sum := blake3.Sum256(data)
	if !bytes.Equal(tag, sum[:payloadTagSize]) {
		return nil, provErr(ErrPayloadTag)
	}
	var pl provPayload
	if err := cbor.Unmarshal(data, &pl); err != nil {
		return nil, provErr(ErrPayload)
	}
	var bssid *[6]byte
	switch len(pl.BSSID) {
	case 0:
	case 6:
		bssid = (*[6]byte)(pl.BSSID)
	default:
		return nil, provErr(ErrPayload)
	}
	c, err := NewCredentials(pl.SSID, pl.Password, bssid)
	if err != nil {
		return nil, provErr(err)
	}
	return c, nil
}

//----------------------------------------------------------------------

// assembler collects the chunks of one session. A frame of a different
// session (or shape) discards the partial state.
type assembler struct {
	active  bool
	session byte
	chunks  [][]byte
	have    int
}

// add a frame; returns the payload once all chunks are present.
func (a *assembler) add(f *frame) ([]byte, bool) {
	if !a.active || f.session != a.session || int(f.total) != len(a.chunks) {
		a.active = true
		a.session = f.session
		a.chunks = make([][]byte, f.total)
		a.have = 0
	}
	if a.chunks[f.index] == nil {
		a.chunks[f.index] = bytes.Clone(f.chunk)
		a.have++
	}
	if a.have < len(a.chunks) {
		return nil, false
	}
	body := bytes.Join(a.chunks, nil)
	a.reset()
	return body, true
}

// reset drops any partial session.
func (a *assembler) reset() {
	a.active = false
	a.chunks = nil
	a.have = 0
}

//----------------------------------------------------------------------

// encodeAck builds the confirmation sent back to the companion.
func encodeAck(session byte, mac [6]byte) []byte {
	return append([]byte{'P', 'A', session}, mac[:]...)
}

// ParseAck decodes a node confirmation (companion side).
func ParseAck(b []byte) (session byte, mac [6]byte, err error) {
	if len(b) != ackSize || b[0] != 'P' || b[1] != 'A' {
		err = ErrAck
		return
	}
	session = b[2]
	copy(mac[:], b[3:])
	return
}
