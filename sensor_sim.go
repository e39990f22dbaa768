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
	"math/rand/v2"
	"sync"
	"time"
)

// SimSensor produces plausible indoor readings (random walk).
type SimSensor struct {
	mu        sync.Mutex
	m         Measurements
	triggered bool
}

// NewSimSensor starts at typical room conditions.
func NewSimSensor() *SimSensor {
	return &SimSensor{
		m: Measurements{
			Temperature: 21.5,
			Humidity:    45,
			Pressure:    1013.25,
			Gas:         120000,
		},
	}
}

// TriggerMeasurement starts a forced measurement.
func (s *SimSensor) TriggerMeasurement() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = true
	return true
}

// ReadResults returns the reading of the last triggered measurement.
func (s *SimSensor) ReadResults() (Measurements, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.triggered {
		return Measurements{}, false
	}
	s.triggered = false
	s.m.Temperature += (rand.Float64() - 0.5) * 0.1
	s.m.Humidity += (rand.Float64() - 0.5) * 0.5
	s.m.Pressure += (rand.Float64() - 0.5) * 0.2
	s.m.Gas += (rand.Float64() - 0.5) * 500
	return s.m, true
}

// MeasurementDuration of a TPHG cycle with a 100ms heater profile
func (s *SimSensor) MeasurementDuration() time.Duration {
	return 150 * time.Millisecond
}
