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

import "errors"

// errReadOnly is reported for writes to node state files.
var errReadOnly = errors.New("read-only state file")

// File is the content behind a namespace entry. The 9p handler calls
// Read for every read request and serves slices of the result; all node
// files are read-only.
type File interface {
	Read() ([]byte, error)
	Write([]byte) error
}

// readOnly refuses all writes.
type readOnly struct{}

func (readOnly) Write([]byte) error { return errReadOnly }

// emptyFile stands in for entries created without content.
type emptyFile struct{ readOnly }

func (emptyFile) Read() ([]byte, error) { return nil, nil }

//----------------------------------------------------------------------

// TextFile holds content fixed at boot (hostname, firmware facts).
type TextFile struct {
	readOnly
	text string
}

// NewTextFile returns a file with fixed content.
func NewTextFile(text string) *TextFile {
	return &TextFile{text: text}
}

func (f *TextFile) Read() ([]byte, error) {
	return []byte(f.text), nil
}

// FuncFile renders live node state on every read.
type FuncFile struct {
	readOnly
	render func() ([]byte, error)
}

// NewFuncFile returns a file rendered by fcn.
func NewFuncFile(fcn func() ([]byte, error)) *FuncFile {
	return &FuncFile{render: fcn}
}

// NewValueFile renders a single value as a text line.
func NewValueFile(fcn func() string) *FuncFile {
	return NewFuncFile(func() ([]byte, error) {
		return []byte(fcn() + "\n"), nil
	})
}

func (f *FuncFile) Read() ([]byte, error) {
	return f.render()
}
