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
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 5*time.Second, cfg.HoldThreshold)
	assert.Equal(t, DefaultReadyBudget, cfg.ReadyBudget())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestConfigOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hostname: kitchen
hold_threshold: 3s
log_level: debug
store:
  path: /var/lib/provnode/flash.img
provision:
  ack_count: 8
ready:
  addr_attempts: 60
telemetry:
  broker: tcp://broker.local:1883
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", cfg.Hostname)
	assert.Equal(t, 3*time.Second, cfg.HoldThreshold)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/var/lib/provnode/flash.img", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Provision.AckCount)
	assert.Equal(t, 60, cfg.ReadyBudget().AddrAttempts)
	assert.Equal(t, "tcp://broker.local:1883", cfg.Telemetry.Broker)

	// untouched settings keep their defaults
	assert.Equal(t, 20, cfg.Ready.InterfaceAttempts)
	assert.Equal(t, int64(4096), cfg.Store.BlockSize)
	assert.Equal(t, DefaultProvisionPort, cfg.Provision.Port)
}

func TestConfigBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hostname: [unterminated"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigLevelUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "chatty"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
