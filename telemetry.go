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
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// telemetry defaults
const (
	DefaultTopic        = "/sensor/bme680"
	DefaultCommandTopic = "/zektopic/sensor/bme680/command"
	DefaultSamplePeriod = time.Second
)

// Measurements of the environmental sensor
type Measurements struct {
	Temperature float64 // °C
	Humidity    float64 // %
	Pressure    float64 // hPa
	Gas         float64 // Ohm
}

// JSON payload (two decimals per value)
func (m Measurements) JSON() []byte {
	buf := make([]byte, 0, 96)
	field := func(name string, v float64, last bool) {
		buf = append(buf, '"')
		buf = append(buf, name...)
		buf = append(buf, '"', ':')
		buf = strconv.AppendFloat(buf, v, 'f', 2, 64)
		if !last {
			buf = append(buf, ',')
		}
	}
	buf = append(buf, '{')
	field("temperature", m.Temperature, false)
	field("humidity", m.Humidity, false)
	field("pressure", m.Pressure, false)
	field("gas", m.Gas, true)
	return append(buf, '}')
}

// Sensor is an environmental sensor with forced measurements.
type Sensor interface {
	TriggerMeasurement() bool
	ReadResults() (Measurements, bool)
	MeasurementDuration() time.Duration
}

// Publisher sends telemetry; only usable after the readiness gate passed.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

//----------------------------------------------------------------------

// SensorLoop samples the sensor once per period and publishes the
// readings. The latest reading is kept for the namespace.
type SensorLoop struct {
	sensor Sensor
	topic  string
	period time.Duration
	clk    Clock
	log    *slog.Logger

	mu   sync.RWMutex
	pub  Publisher
	last Measurements
	at   time.Time
}

// NewSensorLoop creates a sampler publishing to topic.
func NewSensorLoop(sensor Sensor, topic string, period time.Duration, clk Clock, log *slog.Logger) *SensorLoop {
	if period <= 0 {
		period = DefaultSamplePeriod
	}
	if clk == nil {
		clk = SystemClock()
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &SensorLoop{
		sensor: sensor,
		topic:  topic,
		period: period,
		clk:    clk,
		log:    orDiscard(log).With(slog.String("component", "sensor")),
	}
}

// SetPublisher enables (or with nil disables) publishing.
func (s *SensorLoop) SetPublisher(pub Publisher) {
	s.mu.Lock()
	s.pub = pub
	s.mu.Unlock()
}

// Last returns the latest reading and its time (zero if none yet).
func (s *SensorLoop) Last() (Measurements, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.at
}

// Run samples until ctx is done.
func (s *SensorLoop) Run(ctx context.Context) {
	next := s.clk.Now()
	for {
		s.Sample(ctx)
		next = next.Add(s.period)
		wait := next.Sub(s.clk.Now())
		if wait < 0 {
			// overran the period; realign
			next = s.clk.Now()
			wait = 0
		}
		if !sleepCtx(ctx, s.clk, wait) {
			return
		}
	}
}

// Sample performs one measurement cycle. Returns true if a reading was
// taken.
func (s *SensorLoop) Sample(ctx context.Context) bool {
	if !s.sensor.TriggerMeasurement() {
		s.log.Warn("sensor:trigger-failed")
		return false
	}
	if !sleepCtx(ctx, s.clk, s.sensor.MeasurementDuration()) {
		return false
	}
	m, ok := s.sensor.ReadResults()
	if !ok {
		s.log.Warn("sensor:read-failed")
		return false
	}
	s.mu.Lock()
	s.last, s.at = m, s.clk.Now()
	pub := s.pub
	s.mu.Unlock()

	s.log.Info("sensor:reading",
		slog.Float64("temperature", m.Temperature),
		slog.Float64("humidity", m.Humidity),
		slog.Float64("pressure", m.Pressure),
		slog.Float64("gas", m.Gas),
	)
	if pub != nil {
		if err := pub.Publish(s.topic, m.JSON()); err != nil {
			s.log.Warn("sensor:publish", slog.String("err", err.Error()))
		}
	}
	return true
}

//----------------------------------------------------------------------

// LogPublisher writes telemetry to the log (no broker available).
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the payload.
func (p *LogPublisher) Publish(topic string, payload []byte) error {
	orDiscard(p.Logger).Info("telemetry:publish", slog.String("topic", topic), slog.String("payload", string(payload)))
	return nil
}

// ReadyBudget for the telemetry initializer
type ReadyBudget struct {
	InterfaceAttempts int
	AddrAttempts      int
	Interval          time.Duration
}

// DefaultReadyBudget waits up to 10s for an interface and 15s for an
// address.
var DefaultReadyBudget = ReadyBudget{
	InterfaceAttempts: 20,
	AddrAttempts:      30,
	Interval:          500 * time.Millisecond,
}

// StartTelemetry waits for the network via the readiness gate and then
// creates the publisher. If the network is not ready the feature is
// skipped for this run and nil is returned.
func StartTelemetry(ctx context.Context, gate *Gate, budget ReadyBudget, connect func() (Publisher, error), log *slog.Logger) Publisher {
	log = orDiscard(log).With(slog.String("component", "telemetry"))
	if !gate.Wait(ctx, budget.InterfaceAttempts, budget.AddrAttempts, budget.Interval) {
		log.Error("telemetry:network-not-ready", slog.String("action", "skipping publisher initialization"))
		return nil
	}
	pub, err := connect()
	if err != nil {
		log.Error("telemetry:init", slog.String("err", err.Error()))
		return nil
	}
	log.Info("telemetry:started")
	return pub
}
