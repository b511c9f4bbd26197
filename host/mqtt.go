/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/scriptwire/wire"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives messages from a Broker.
type Handler func(topic string, payload []byte)

// Broker is what a Bridge needs from a message broker.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, h Handler) error
	Unsubscribe(topics ...string) error
}

// Bridge lets a loader publish and subscribe.
//
// Loader output of the form
//
//   TOKEN|pub|TOPIC|PAYLOAD
//   TOKEN|sub|TOPIC
//   TOKEN|unsub|TOPIC        (TOPIC "*" means all of them)
//
// is handled by the Bridge and goes no further.  Lines with other
// field counts pass through.  Messages for
// subscribed topics are delivered to the loader with the "msg"
// command.
type Bridge struct {
	Log zerolog.Logger

	c *Client
	b Broker

	sync.Mutex
	subs map[string]bool
}

// NewBridge installs a Bridge on the Client.
func NewBridge(c *Client, b Broker, log zerolog.Logger) *Bridge {
	br := &Bridge{
		Log:  log,
		c:    c,
		b:    b,
		subs: make(map[string]bool),
	}
	c.SetIntercept(br.intercept)
	return br
}

// Subscriptions lists the subscribed topics.
func (br *Bridge) Subscriptions() []string {
	br.Lock()
	defer br.Unlock()
	acc := make([]string, 0, len(br.subs))
	for topic := range br.subs {
		acc = append(acc, topic)
	}
	sort.Strings(acc)
	return acc
}

func (br *Bridge) intercept(p wire.Packet) bool {
	switch p.Kind() {
	case "pub":
		if len(p) != 4 {
			return false
		}
		if err := br.b.Publish(p.String(2), p[3]); err != nil {
			br.Log.Error().Err(err).Str("topic", p.String(2)).Msg("publish")
		}
		return true

	case "sub":
		if len(p) != 3 {
			return false
		}
		topic := p.String(2)
		br.Lock()
		br.subs[topic] = true
		br.Unlock()
		if err := br.b.Subscribe(topic, br.deliver); err != nil {
			br.Log.Error().Err(err).Str("topic", topic).Msg("subscribe")
		}
		return true

	case "unsub":
		if len(p) != 3 {
			return false
		}
		topics := []string{p.String(2)}
		br.Lock()
		if topics[0] == "*" {
			topics = topics[:0]
			for topic := range br.subs {
				topics = append(topics, topic)
			}
			br.subs = make(map[string]bool)
		} else {
			delete(br.subs, topics[0])
		}
		br.Unlock()
		if 0 < len(topics) {
			if err := br.b.Unsubscribe(topics...); err != nil {
				br.Log.Error().Err(err).Strs("topics", topics).Msg("unsubscribe")
			}
		}
		return true
	}
	return false
}

func (br *Bridge) deliver(topic string, payload []byte) {
	br.Log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("deliver")
	if err := br.c.Message(topic, payload); err != nil {
		br.Log.Warn().Err(err).Str("topic", topic).Msg("deliver")
	}
}

// MQTTBroker is a Broker backed by an MQTT connection.  It
// resubscribes after reconnecting.
type MQTTBroker struct {
	Timeout time.Duration
	QoS     byte
	Log     zerolog.Logger

	client mqtt.Client

	sync.Mutex
	subs map[string]Handler
}

// BrokerURL turns HOST or HOST:PORT into a broker URL.
func BrokerURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	if !strings.Contains(addr, ":") {
		addr += ":1883"
	}
	return "tcp://" + addr
}

// NewMQTTBroker connects to an MQTT broker at addr (see BrokerURL).
func NewMQTTBroker(addr string, log zerolog.Logger) (*MQTTBroker, error) {
	b := &MQTTBroker{
		Timeout: 10 * time.Second,
		Log:     log,
		subs:    make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(addr))
	opts.SetClientID("scriptwire-" + uuid.NewString()[:8])
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.AutoReconnect = true
	opts.CleanSession = true

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Str("broker", addr).Msg("MQTT connected")
		b.resubscribe()
	}

	b.client = mqtt.NewClient(opts)
	if t := b.client.Connect(); !t.WaitTimeout(b.Timeout) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", addr)
	} else if t.Error() != nil {
		return nil, t.Error()
	}
	return b, nil
}

func (b *MQTTBroker) wait(t mqtt.Token) error {
	if !t.WaitTimeout(b.Timeout) {
		return fmt.Errorf("MQTT operation timed out after %s", b.Timeout)
	}
	return t.Error()
}

func (b *MQTTBroker) Publish(topic string, payload []byte) error {
	return b.wait(b.client.Publish(topic, b.QoS, false, payload))
}

func (b *MQTTBroker) subscribe(topic string, h Handler) mqtt.Token {
	return b.client.Subscribe(topic, b.QoS, func(client mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
}

func (b *MQTTBroker) Subscribe(topic string, h Handler) error {
	b.Lock()
	b.subs[topic] = h
	b.Unlock()
	return b.wait(b.subscribe(topic, h))
}

func (b *MQTTBroker) Unsubscribe(topics ...string) error {
	b.Lock()
	for _, topic := range topics {
		delete(b.subs, topic)
	}
	b.Unlock()
	return b.wait(b.client.Unsubscribe(topics...))
}

func (b *MQTTBroker) resubscribe() {
	b.Lock()
	subs := make(map[string]Handler, len(b.subs))
	for topic, h := range b.subs {
		subs[topic] = h
	}
	b.Unlock()

	// Not waiting: this runs on the MQTT client's own goroutine.
	for topic, h := range subs {
		b.subscribe(topic, h)
	}
}

func (b *MQTTBroker) Close() {
	b.client.Disconnect(250)
}
