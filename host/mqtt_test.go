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
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload string
}

// fakeBroker records what a Bridge asks of it.
type fakeBroker struct {
	sync.Mutex
	pubs     []published
	handlers map[string]Handler
	unsubs   []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]Handler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.Lock()
	defer b.Unlock()
	b.pubs = append(b.pubs, published{topic, string(payload)})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, h Handler) error {
	b.Lock()
	defer b.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.Lock()
	defer b.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	b.unsubs = append(b.unsubs, topics...)
	return nil
}

func (b *fakeBroker) handler(topic string) Handler {
	b.Lock()
	defer b.Unlock()
	return b.handlers[topic]
}

func (b *fakeBroker) published() []published {
	b.Lock()
	defer b.Unlock()
	return append([]published(nil), b.pubs...)
}

func (b *fakeBroker) unsubscribed() []string {
	b.Lock()
	defer b.Unlock()
	acc := append([]string(nil), b.unsubs...)
	sort.Strings(acc)
	return acc
}

func TestBridgeRoundTrip(t *testing.T) {
	c := startDevice(t)
	ctx := testContext(t)
	b := newFakeBroker()
	br := NewBridge(c, b, zerolog.Nop())

	r, err := c.Eval(ctx, `
broker.subscribe("cmd/echo");
var MQ = {OnMessage: function(t, p) { broker.publish("out/" + t, p + "|ack"); }};
`)
	require.NoError(t, err)
	require.True(t, r.OK)
	assert.Equal(t, []string{"cmd/echo"}, br.Subscriptions())

	h := b.handler("cmd/echo")
	require.NotNil(t, h)
	h("cmd/echo", []byte("ping\npong"))

	assert.Eventually(t, func() bool {
		return len(b.published()) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, published{"out/cmd/echo", "ping\npong|ack"}, b.published()[0])
}

func TestBridgeUnsubscribe(t *testing.T) {
	c := startDevice(t)
	ctx := testContext(t)
	b := newFakeBroker()
	br := NewBridge(c, b, zerolog.Nop())

	r, err := c.Eval(ctx, `broker.subscribe("a"); broker.subscribe("b"); broker.subscribe("c"); broker.unsubscribe("b");`)
	require.NoError(t, err)
	require.True(t, r.OK)
	assert.Equal(t, []string{"a", "c"}, br.Subscriptions())
	assert.Equal(t, []string{"b"}, b.unsubscribed())

	r, err = c.Eval(ctx, `broker.unsubscribe("*")`)
	require.NoError(t, err)
	require.True(t, r.OK)
	assert.Empty(t, br.Subscriptions())
	assert.Equal(t, []string{"a", "b", "c"}, b.unsubscribed())
}

func TestBridgeLeavesOtherOutput(t *testing.T) {
	c := startDevice(t)
	ctx := testContext(t)
	NewBridge(c, newFakeBroker(), zerolog.Nop())

	r, err := c.Eval(ctx, `print("pub")`)
	require.NoError(t, err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "pub", r.Lines[0].Body())
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", BrokerURL("localhost"))
	assert.Equal(t, "tcp://10.0.0.1:1884", BrokerURL("10.0.0.1:1884"))
	assert.Equal(t, "ssl://broker:8883", BrokerURL("ssl://broker:8883"))
}
