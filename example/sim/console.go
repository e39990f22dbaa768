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

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bfix/provnode"
	"github.com/chzyer/readline"
)

// console drives the simulated hardware.
type console struct {
	rl *readline.Instance
}

func newConsole() (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "node> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &console{rl: rl}, nil
}

// Stderr coordinates log output with the prompt.
func (c *console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run the command loop.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc, node *provnode.Node, dev *provnode.LinuxDevice, cfg *provnode.Config) {
	defer c.rl.Close()
	out := c.rl.Stdout()
	c.help()
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			cancel()
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch strings.ToLower(args[0]) {
		case "help", "?":
			c.help()
		case "status", "s":
			fmt.Fprintf(out, "id:      %s\nstate:   %s\nonline:  %v\naddr:    %s\nbutton:  %v\n",
				node.ID(), node.Conn.State(), node.Conn.Online(), dev.Addr(), node.Button.Pressed())
			if creds, err := node.Store.Load(); err != nil {
				fmt.Fprintf(out, "store:   %v\n", err)
			} else if creds != nil {
				fmt.Fprintf(out, "ssid:    %s\n", creds.Identity())
			}
		case "press":
			node.Button.Edge(false)
		case "release":
			node.Button.Edge(true)
		case "drop":
			dev.DropLink()
		case "ap":
			dev.SetReachable(len(args) < 2 || args[1] != "off")
		case "expect", "provision":
			if len(args) < 2 {
				fmt.Fprintln(out, "usage:", args[0], "<ssid> [password]")
				continue
			}
			passwd := ""
			if len(args) > 2 {
				passwd = args[2]
			}
			creds, err := provnode.NewCredentials(args[1], passwd, nil)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if args[0] == "expect" {
				dev.Expect(creds)
				continue
			}
			go c.provision(ctx, creds, cfg.Provision.Port)
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Fprintln(out, "unknown command (try 'help')")
		}
	}
}

// provision plays the companion app against the local node.
func (c *console) provision(ctx context.Context, creds *provnode.Credentials, port int) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	target := net.JoinHostPort("255.255.255.255", strconv.Itoa(port))
	mac, err := provnode.Provision(ctx, target, creds, byte(rand.IntN(256)))
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "provisioning failed:", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "provisioned node", net.HardwareAddr(mac[:]))
}

func (c *console) help() {
	fmt.Fprint(c.rl.Stdout(), `commands:
  status                     show node state
  press | release            reset button edges (hold 5s to forget network)
  drop                       lose the current association
  ap on|off                  simulated access point reachability
  expect <ssid> [password]   only accept these credentials at join
  provision <ssid> [pass]    send credentials like the companion app
  quit
`)
}
