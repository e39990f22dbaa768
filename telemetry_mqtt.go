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
	"errors"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT settings
const (
	mqttKeepAlive      = 60 * time.Second
	mqttConnectTimeout = 5 * time.Second
	mqttMaxReconnect   = 15 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQoS            = 1
)

// Error messages
var (
	errMQTTTimeout = errors.New("mqtt operation timed out")
)

// MQTTConfig for the telemetry publisher
type MQTTConfig struct {
	Broker       string // e.g. "tcp://test.mosquitto.org:1883"
	ClientID     string
	CommandTopic string // subscribed; messages are logged
}

// MQTTPublisher publishes telemetry to a broker. The client reconnects
// on its own after the initial connection succeeded.
type MQTTPublisher struct {
	client mqtt.Client
	log    *slog.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig, log *slog.Logger) (*MQTTPublisher, error) {
	p := &MQTTPublisher{
		log: orDiscard(log).With(slog.String("component", "mqtt")),
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(mqttKeepAlive).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(mqttMaxReconnect).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn("mqtt:disconnected", slog.String("err", err.Error()))
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			p.log.Info("mqtt:connected", slog.String("broker", cfg.Broker))
			if cfg.CommandTopic == "" {
				return
			}
			tok := c.Subscribe(cfg.CommandTopic, 0, p.command)
			go func() {
				if tok.WaitTimeout(mqttPublishTimeout) && tok.Error() == nil {
					p.log.Info("mqtt:subscribed", slog.String("topic", cfg.CommandTopic))
				}
			}()
		})
	p.client = mqtt.NewClient(opts)
	tok := p.client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, errMQTTTimeout
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return p, nil
}

// Publish a payload (QoS 1, not retained).
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	tok := p.client.Publish(topic, mqttQoS, false, payload)
	if !tok.WaitTimeout(mqttPublishTimeout) {
		return errMQTTTimeout
	}
	return tok.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// command messages are only logged.
func (p *MQTTPublisher) command(_ mqtt.Client, msg mqtt.Message) {
	p.log.Info("mqtt:command", slog.String("topic", msg.Topic()), slog.String("data", string(msg.Payload())))
}
