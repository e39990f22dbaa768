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
	"io"
	"log/slog"
	"sync"
	"time"
)

// ProvEventKind tags a provisioning event.
type ProvEventKind int

// provisioning events
const (
	ProvScanStarted         ProvEventKind = iota // listening for frames
	ProvChannelFound                             // first valid frame seen
	ProvCredentialsReceived                      // payload decoded
	ProvAckSent                                  // confirmations sent
)

// String returns a human-readable event name.
func (k ProvEventKind) String() string {
	switch k {
	case ProvScanStarted:
		return "scan-started"
	case ProvChannelFound:
		return "channel-found"
	case ProvCredentialsReceived:
		return "credentials-received"
	case ProvAckSent:
		return "ack-sent"
	}
	return "unknown"
}

// ProvisioningEvent is emitted by the provisioner. Creds is only set
// for ProvCredentialsReceived.
type ProvisioningEvent struct {
	Kind  ProvEventKind
	Creds *Credentials
}

// FrameSource delivers raw provisioning frames and carries the
// acknowledgements back to the companion.
type FrameSource interface {
	Open() error
	// ReadFrame blocks until a frame arrives or ctx is done.
	ReadFrame(ctx context.Context) ([]byte, error)
	SendAck(ack []byte) error
	Close() error
}

// ErrSourceClosed is returned by a frame source after Close.
var ErrSourceClosed = errors.New("frame source closed")

//----------------------------------------------------------------------

// ProvisionerConfig for the provisioning listener
type ProvisionerConfig struct {
	MAC         func() [6]byte // station address sent in acknowledgements
	AckCount    int            // number of confirmations per session
	AckInterval time.Duration  // pause between confirmations
	Clock       Clock
	Logger      *slog.Logger
}

// Provisioner passively receives provisioning frames. At most one
// session runs at a time; the consumer decides when to stop it.
type Provisioner struct {
	src  FrameSource
	cfg  ProvisionerConfig
	emit func(context.Context, ProvisioningEvent)
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProvisioner creates a listener on src that reports to emit.
func NewProvisioner(src FrameSource, cfg ProvisionerConfig, emit func(context.Context, ProvisioningEvent)) *Provisioner {
	if cfg.AckCount <= 0 {
		cfg.AckCount = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Provisioner{
		src:  src,
		cfg:  cfg,
		emit: emit,
		log:  orDiscard(cfg.Logger).With(slog.String("component", "provision")),
	}
}

// Start a session. Starting a running listener is a no-op.
func (p *Provisioner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	if err := p.src.Open(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Stop the session and release the source. Stopping an idle listener
// is a no-op.
func (p *Provisioner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	if err := p.src.Close(); err != nil {
		p.log.Warn("provision:close", slog.String("err", err.Error()))
	}
	p.cancel = nil
}

// station address at ack time; the radio may learn it late.
func (p *Provisioner) station() (mac [6]byte) {
	if p.cfg.MAC != nil {
		mac = p.cfg.MAC()
	}
	return
}

// Running returns true between Start and Stop.
func (p *Provisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// run a single session.
func (p *Provisioner) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.emit(ctx, ProvisioningEvent{Kind: ProvScanStarted})

	var (
		asm       assembler
		locked    bool
		discarded int
	)
	for {
		b, err := p.src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) || errors.Is(err, io.EOF) {
				return
			}
			p.log.Debug("provision:read", slog.String("err", err.Error()))
			if !sleepCtx(ctx, p.cfg.Clock, 100*time.Millisecond) {
				return
			}
			continue
		}
		f, err := parseFrame(b)
		if err != nil {
			discarded++
			p.log.Debug("provision:discard", slog.String("err", err.Error()), slog.Int("count", discarded))
			continue
		}
		if !locked {
			locked = true
			p.emit(ctx, ProvisioningEvent{Kind: ProvChannelFound})
		}
		body, ok := asm.add(f)
		if !ok {
			continue
		}
		creds, err := decodePayload(body)
		if err != nil {
			discarded++
			p.log.Debug("provision:discard", slog.String("err", err.Error()), slog.Int("count", discarded))
			continue
		}
		p.log.Info("provision:received", slog.String("ssid", creds.Identity()))
		p.emit(ctx, ProvisioningEvent{Kind: ProvCredentialsReceived, Creds: creds})

		ack := encodeAck(f.session, p.station())
		for i := 0; i < p.cfg.AckCount; i++ {
			if err = p.src.SendAck(ack); err != nil {
				p.log.Warn("provision:ack", slog.String("err", err.Error()))
			}
			if i+1 < p.cfg.AckCount && !sleepCtx(ctx, p.cfg.Clock, p.cfg.AckInterval) {
				return
			}
		}
		p.emit(ctx, ProvisioningEvent{Kind: ProvAckSent})
		return
	}
}

//----------------------------------------------------------------------

// sleepCtx waits for d; returns false if ctx ended first.
func sleepCtx(ctx context.Context, clk Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	ch := make(chan struct{})
	t := clk.AfterFunc(d, func() { close(ch) })
	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-ch:
		return true
	}
}

// orDiscard returns a logger that drops everything if log is nil.
func orDiscard(log *slog.Logger) *slog.Logger {
	if log != nil {
		return log
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(127),
	}))
}
