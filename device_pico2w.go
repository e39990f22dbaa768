//go:build rp2350

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
	"encoding/base64"
	"errors"
	"log/slog"
	"machine"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"
)

const mtu = cyw43439.MTU

// driver timing
const (
	joinBackoff   = 2 * time.Second // pause after a failed join
	dhcpPoll      = time.Second / 2
	dhcpMaxPolls  = 15
	serialPoll    = 20 * time.Millisecond
	maxSerialLine = 512
)

// Error messages
var (
	errNoStack = errors.New("network stack not up")
	errNoCreds = errors.New("no credentials applied")
)

// Raspberry Pico2 W  [RP2350]
type Pico2WDevice struct {
	ref      *cyw43439.Device // reference to device
	log      *slog.Logger
	hostname string

	mu      sync.Mutex
	notify  func(DriverEvent)
	creds   *Credentials
	started bool
	joining bool
	stack   *stacks.PortStack
	dhcpc   *stacks.DHCPClient
	addr    netip.Addr
	mac     [6]byte
	linkGen uint32
	unwatch func()
}

// InitDevice accesses the on-board CYW43439.
func InitDevice(hostname string, log *slog.Logger) *Pico2WDevice {
	return &Pico2WDevice{
		ref:      cyw43439.NewPicoWDevice(),
		log:      orDiscard(log).With(slog.String("component", "cyw43439")),
		hostname: hostname,
	}
}

// LED on or off (if applicable)
func (dev *Pico2WDevice) LED(on bool) {
	dev.ref.GPIOSet(0, on)
}

// Restart the MCU.
func (dev *Pico2WDevice) Restart() {
	machine.CPUReset()
}

//----------------------------------------------------------------------
// Driver implementation

// SetStationMode initializes the WiFi chip.
func (dev *Pico2WDevice) SetStationMode() error {
	dev.log.Info("initializing pico W device...")
	if err := dev.initChip(); err != nil {
		return err
	}
	mac, err := dev.ref.HardwareAddr6()
	if err != nil {
		return err
	}
	dev.mu.Lock()
	dev.mac = mac
	dev.mu.Unlock()
	return nil
}

// Start reports the interface as up.
func (dev *Pico2WDevice) Start(notify func(DriverEvent)) error {
	dev.mu.Lock()
	dev.notify = notify
	dev.started = true
	dev.mu.Unlock()
	go notify(EvInterfaceStarted)
	return nil
}

// ApplyConfig for the next join.
func (dev *Pico2WDevice) ApplyConfig(c *Credentials) error {
	dev.mu.Lock()
	dev.creds = c
	dev.mu.Unlock()
	return nil
}

// Connect starts a join (only one at a time).
func (dev *Pico2WDevice) Connect() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.creds == nil {
		return errNoCreds
	}
	if dev.joining {
		return nil
	}
	dev.joining = true
	go dev.join(dev.creds)
	return nil
}

// Disconnect leaves the access point (if joined) and forgets the leased
// address. The driver has no leave request, so the chip is power-cycled
// and initialized again; the packet handler stays registered.
func (dev *Pico2WDevice) Disconnect() error {
	dev.mu.Lock()
	dev.linkGen++
	dev.addr = netip.Addr{}
	stop := dev.unwatch
	dev.unwatch = nil
	dev.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	dev.ref.Reset()
	return dev.initChip()
}

func (dev *Pico2WDevice) initChip() error {
	start := time.Now()
	if err := dev.ref.Init(cyw43439.DefaultWifiConfig()); err != nil {
		return err
	}
	dev.log.Info("cyw43439:Init", slog.Duration("duration", time.Since(start)))
	return nil
}

// watch the association of a completed join.
func (dev *Pico2WDevice) watch() {
	dev.mu.Lock()
	stale := dev.unwatch
	dev.linkGen++
	gen := dev.linkGen
	dev.unwatch = watchLink(SystemClock(), DefaultLinkPoll, dev.ref.IsLinkUp, func() {
		dev.linkLost(gen)
	})
	dev.mu.Unlock()
	if stale != nil {
		stale()
	}
}

// linkLost reports the end of association gen (once).
func (dev *Pico2WDevice) linkLost(gen uint32) {
	dev.mu.Lock()
	if gen != dev.linkGen {
		dev.mu.Unlock()
		return
	}
	dev.linkGen++
	dev.addr = netip.Addr{}
	dev.unwatch = nil
	notify := dev.notify
	dev.mu.Unlock()
	dev.log.Warn("wifi link lost")
	go notify(EvDisconnected)
}

// HardwareAddr of the station
func (dev *Pico2WDevice) HardwareAddr() [6]byte {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.mac
}

// join the network and run DHCP; the outcome is reported as an event.
func (dev *Pico2WDevice) join(c *Credentials) {
	ok := dev.joinWithDHCP(c)
	dev.mu.Lock()
	dev.joining = false
	notify := dev.notify
	dev.mu.Unlock()
	if ok {
		dev.watch()
		notify(EvIPAcquired)
		return
	}
	time.Sleep(joinBackoff)
	notify(EvDisconnected)
}

func (dev *Pico2WDevice) joinWithDHCP(c *Credentials) bool {
	log := dev.log
	if len(c.Secret()) == 0 {
		log.Info("joining open network:", slog.String("ssid", c.Identity()))
	} else {
		log.Info("joining WPA secure network", slog.String("ssid", c.Identity()), slog.Int("passlen", len(c.Secret())))
	}
	if err := dev.ref.JoinWPA2(c.Identity(), c.Secret()); err != nil {
		log.Error("wifi join failed", slog.String("err", err.Error()))
		return false
	}
	mac := dev.HardwareAddr()
	log.Info("wifi join success!", slog.String("mac", net.HardwareAddr(mac[:]).String()))

	dev.mu.Lock()
	if dev.stack == nil {
		dev.stack = stacks.NewPortStack(stacks.PortStackConfig{
			MAC:             mac,
			MaxOpenPortsUDP: 1,
			MaxOpenPortsTCP: 1,
			MTU:             mtu,
			Logger:          log,
		})
		dev.ref.RecvEthHandle(dev.stack.RecvEth)
		dev.dhcpc = stacks.NewDHCPClient(dev.stack, dhcp.DefaultClientPort)
		// Begin asynchronous packet handling.
		go nicLoop(dev.ref, dev.stack)
	}
	stack, dhcpc := dev.stack, dev.dhcpc
	dev.mu.Unlock()

	err := dhcpc.BeginRequest(stacks.DHCPRequestConfig{
		Xid:      uint32(time.Now().Nanosecond()),
		Hostname: dev.hostname,
	})
	if err != nil {
		log.Error("dhcp request failed", slog.String("err", err.Error()))
		return false
	}
	for i := 0; dhcpc.State() != dhcp.StateBound; i++ {
		if i >= dhcpMaxPolls {
			log.Error("no dhcp reply")
			return false
		}
		time.Sleep(dhcpPoll)
	}
	ip := dhcpc.Offer()
	log.Info("DHCP complete",
		slog.Uint64("cidrbits", uint64(dhcpc.CIDRBits())),
		slog.String("ourIP", ip.String()),
		slog.String("gateway", dhcpc.Gateway().String()),
		slog.Duration("lease", dhcpc.IPLeaseTime()),
	)
	stack.SetAddr(ip) // It's important to set the IP address after DHCP completes.
	dev.mu.Lock()
	dev.addr = ip
	dev.mu.Unlock()
	return true
}

//----------------------------------------------------------------------
// NetInfo implementation

// Interfaces returns 1 once the interface is started.
func (dev *Pico2WDevice) Interfaces() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.started {
		return 1
	}
	return 0
}

// Addr returns the leased address.
func (dev *Pico2WDevice) Addr() netip.Addr {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.addr
}

// Listen returns a TCP listener on the given port.
func (dev *Pico2WDevice) Listen(port uint16) (net.Listener, error) {
	dev.mu.Lock()
	stack := dev.stack
	dev.mu.Unlock()
	if stack == nil {
		return nil, errNoStack
	}
	listener, err := stacks.NewTCPListener(stack, stacks.TCPListenerConfig{
		MaxConnections: 3,
		ConnTxBufSize:  512,
		ConnRxBufSize:  512,
	})
	if err != nil {
		return nil, err
	}
	if err = listener.StartListening(port); err != nil {
		return nil, err
	}
	return listener, nil
}

//----------------------------------------------------------------------
// peripherals

// WatchButton feeds edges of an active-low button into the monitor until
// ctx ends. The interrupt handler only latches the level.
func WatchButton(ctx context.Context, pin machine.Pin, mon *HoldMonitor) error {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	latch := new(EdgeLatch)
	latch.Set(pin.Get())
	if err := pin.SetInterrupt(machine.PinRising|machine.PinFalling, func(p machine.Pin) {
		latch.Set(p.Get())
	}); err != nil {
		return err
	}
	go latch.Run(ctx, nil, DefaultEdgePoll, mon)
	return nil
}

// FlashStore returns the flash device and the first of the two last
// erase blocks for the credential store.
func FlashStore() (BlockDevice, int64) {
	blocks := machine.Flash.Size() / machine.Flash.EraseBlockSize()
	return machine.Flash, blocks - 2
}

// SerialSource reads provisioning frames as base64 lines from the USB
// console; acknowledgements are written back as "ACK <base64>".
type SerialSource struct {
	line []byte
	open bool
}

// Open the source.
func (s *SerialSource) Open() error {
	s.open = true
	s.line = s.line[:0]
	return nil
}

// ReadFrame returns the next decodable line.
func (s *SerialSource) ReadFrame(ctx context.Context) ([]byte, error) {
	for s.open {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if machine.Serial.Buffered() == 0 {
			time.Sleep(serialPoll)
			continue
		}
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != '\n' && b != '\r' {
			if len(s.line) < maxSerialLine {
				s.line = append(s.line, b)
			}
			continue
		}
		if len(s.line) == 0 {
			continue
		}
		frame, err := base64.StdEncoding.DecodeString(string(s.line))
		s.line = s.line[:0]
		if err != nil {
			continue
		}
		return frame, nil
	}
	return nil, ErrSourceClosed
}

// SendAck writes the confirmation to the console.
func (s *SerialSource) SendAck(ack []byte) error {
	_, err := machine.Serial.Write([]byte("ACK " + base64.StdEncoding.EncodeToString(ack) + "\n"))
	return err
}

// Close the source.
func (s *SerialSource) Close() error {
	s.open = false
	return nil
}

//----------------------------------------------------------------------

// nicLoop moves packets between the chip and the port stack.
func nicLoop(dev *cyw43439.Device, Stack *stacks.PortStack) {
	// Maximum number of packets to queue before sending them.
	const (
		queueSize                = 3
		maxRetriesBeforeDropping = 3
	)
	var queue [queueSize][mtu]byte
	var lenBuf [queueSize]int
	var retries [queueSize]int
	markSent := func(i int) {
		lenBuf[i] = 0
		retries[i] = 0
	}
	for {
		stallRx := true
		// Poll for incoming packets.
		gotPacket, err := dev.PollOne()
		if err != nil {
			println("poll error:", err.Error())
		}
		if gotPacket {
			stallRx = false
		}

		// Queue packets to be sent.
		for i := range queue {
			if retries[i] != 0 {
				continue // Packet currently queued for retransmission.
			}
			lenBuf[i], err = Stack.HandleEth(queue[i][:])
			if err != nil {
				println("stack error n(should be 0)=", lenBuf[i], "err=", err.Error())
				lenBuf[i] = 0
				continue
			}
			if lenBuf[i] == 0 {
				break
			}
		}
		if lenBuf == [queueSize]int{} {
			if stallRx {
				// Avoid busy waiting when both Rx and Tx stall.
				time.Sleep(51 * time.Millisecond)
			}
			continue
		}

		// Send queued packets.
		for i := range queue {
			n := lenBuf[i]
			if n <= 0 {
				continue
			}
			if err := dev.SendEth(queue[i][:n]); err != nil {
				// Queue packet for retransmission.
				retries[i]++
				if retries[i] > maxRetriesBeforeDropping {
					markSent(i)
					println("dropped outgoing packet:", err.Error())
				}
			} else {
				markSent(i)
			}
		}
	}
}
