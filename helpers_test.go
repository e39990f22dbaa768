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
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

//----------------------------------------------------------------------
// fake clock: time stands still until Advance (or, in auto mode, every
// timer fires right away after moving the clock to its deadline).

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	auto   bool
	slept  []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func newAutoClock() *fakeClock {
	c := newFakeClock()
	c.auto = true
	return c
}

type fakeTimer struct {
	clk      *fakeClock
	deadline time.Time
	f        func()
	active   bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, f: f}
	if c.auto {
		c.now = c.now.Add(d)
		c.slept = append(c.slept, d)
		go f()
		return t
	}
	t.deadline = c.now.Add(d)
	t.active = true
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
}

// Advance moves the clock and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if t.active && !t.deadline.After(c.now) {
			t.active = false
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.f()
	}
}

// Sleeps returns the number of waits requested in auto mode.
func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slept)
}

// Pending returns the number of armed timers.
func (c *fakeClock) Pending() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if t.active {
			n++
		}
	}
	return
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.clk.auto {
		return false
	}
	was := t.active
	t.active = true
	t.deadline = t.clk.now.Add(d)
	return was
}

//----------------------------------------------------------------------
// fake radio driver

type fakeDriver struct {
	mu          sync.Mutex
	notify      func(DriverEvent)
	started     bool
	applied     []*Credentials
	connects    int
	disconnects int
	stationErr  error
}

func (d *fakeDriver) SetStationMode() error {
	return d.stationErr
}

func (d *fakeDriver) Start(notify func(DriverEvent)) error {
	d.mu.Lock()
	d.notify = notify
	d.started = true
	d.mu.Unlock()
	notify(EvInterfaceStarted)
	return nil
}

func (d *fakeDriver) ApplyConfig(c *Credentials) error {
	d.mu.Lock()
	d.applied = append(d.applied, c)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Connect() error {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.mu.Lock()
	d.disconnects++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) HardwareAddr() [6]byte {
	return [6]byte{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}
}

// emit a driver event as the radio would.
func (d *fakeDriver) emit(ev DriverEvent) {
	d.mu.Lock()
	notify := d.notify
	d.mu.Unlock()
	notify(ev)
}

func (d *fakeDriver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *fakeDriver) Applied() []*Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Credentials(nil), d.applied...)
}

//----------------------------------------------------------------------
// in-memory credential store with fault injection

var errInjected = errors.New("injected failure")

type fakeStore struct {
	mu       sync.Mutex
	creds    *Credentials
	loadErr  error
	saveErr  error
	eraseErr error
	saves    int
	erases   int
}

func (s *fakeStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.loadErr
}

func (s *fakeStore) Save(c *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.creds = c
	return nil
}

func (s *fakeStore) EraseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erases++
	if s.eraseErr != nil {
		return s.eraseErr
	}
	s.creds = nil
	return nil
}

func (s *fakeStore) Stored() *Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *fakeStore) Counts() (saves, erases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.erases
}

//----------------------------------------------------------------------
// provisioning control that only counts

type fakeProv struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (p *fakeProv) Start() error {
	p.mu.Lock()
	p.starts++
	p.mu.Unlock()
	return nil
}

func (p *fakeProv) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakeProv) Counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

//----------------------------------------------------------------------
// frame source fed from a channel

type chanSource struct {
	frames chan []byte

	mu     sync.Mutex
	acks   [][]byte
	opens  int
	closes int
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan []byte, 64)}
}

func (s *chanSource) Open() error {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return nil
}

func (s *chanSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b, ok := <-s.frames:
		if !ok {
			return nil, ErrSourceClosed
		}
		return b, nil
	}
}

func (s *chanSource) SendAck(ack []byte) error {
	s.mu.Lock()
	s.acks = append(s.acks, ack)
	s.mu.Unlock()
	return nil
}

func (s *chanSource) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *chanSource) Acks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.acks...)
}

func (s *chanSource) Counts() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

// send all frames of a provisioning session.
func (s *chanSource) send(t *testing.T, c *Credentials, session byte) {
	t.Helper()
	frames, err := EncodeProvisioning(c, session, 8)
	require.NoError(t, err)
	for _, f := range frames {
		s.frames <- f
	}
}

//----------------------------------------------------------------------

func mustCreds(t *testing.T, ssid, passwd string) *Credentials {
	t.Helper()
	c, err := NewCredentials(ssid, passwd, nil)
	require.NoError(t, err)
	return c
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
