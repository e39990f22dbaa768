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
	"log/slog"
	"time"
)

// Config of a sensor node
type Config struct {
	Hostname      string        `yaml:"hostname"`
	HoldThreshold time.Duration `yaml:"hold_threshold"` // reset button
	ButtonPin     int           `yaml:"button_pin"`
	RetryInterval time.Duration `yaml:"retry_interval"` // reconnect pacing while disconnected

	Store struct {
		Path      string `yaml:"path"`       // flash image (host only)
		Blocks    int    `yaml:"blocks"`     // image size in erase blocks
		BlockSize int64  `yaml:"block_size"` // erase block size
	} `yaml:"store"`

	Provision struct {
		Port        int           `yaml:"port"`
		AckCount    int           `yaml:"ack_count"`
		AckInterval time.Duration `yaml:"ack_interval"`
	} `yaml:"provision"`

	Ready struct {
		InterfaceAttempts int           `yaml:"interface_attempts"`
		AddrAttempts      int           `yaml:"addr_attempts"`
		Interval          time.Duration `yaml:"interval"`
	} `yaml:"ready"`

	Telemetry struct {
		Broker       string        `yaml:"broker"`
		Topic        string        `yaml:"topic"`
		CommandTopic string        `yaml:"command_topic"`
		Period       time.Duration `yaml:"period"`
	} `yaml:"telemetry"`

	NinePort uint16 `yaml:"ninep_port"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the reference deployment settings.
func DefaultConfig() *Config {
	cfg := &Config{
		Hostname:      "provnode",
		HoldThreshold: DefaultHoldThreshold,
		ButtonPin:     5,
		RetryInterval: 10 * time.Second,
		NinePort:      564,
		LogLevel:      "info",
	}
	cfg.Store.Path = "provnode.img"
	cfg.Store.Blocks = 4
	cfg.Store.BlockSize = 4096
	cfg.Provision.Port = 18266
	cfg.Provision.AckCount = 5
	cfg.Provision.AckInterval = 100 * time.Millisecond
	cfg.Ready.InterfaceAttempts = DefaultReadyBudget.InterfaceAttempts
	cfg.Ready.AddrAttempts = DefaultReadyBudget.AddrAttempts
	cfg.Ready.Interval = DefaultReadyBudget.Interval
	cfg.Telemetry.Broker = "tcp://test.mosquitto.org:1883"
	cfg.Telemetry.Topic = DefaultTopic
	cfg.Telemetry.CommandTopic = DefaultCommandTopic
	cfg.Telemetry.Period = DefaultSamplePeriod
	return cfg
}

// ReadyBudget of the configuration
func (cfg *Config) ReadyBudget() ReadyBudget {
	return ReadyBudget{
		InterfaceAttempts: cfg.Ready.InterfaceAttempts,
		AddrAttempts:      cfg.Ready.AddrAttempts,
		Interval:          cfg.Ready.Interval,
	}
}

// Level returns the configured log level (info if unknown).
func (cfg *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
