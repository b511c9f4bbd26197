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

package goja

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

func protest(rt *goja.Runtime, x interface{}) {
	panic(rt.NewTypeError(x))
}

// install adds the standard globals to a fresh runtime.
//
//    print(...args): Write the args, tab-separated, as a line.
//    time.millis(): Milliseconds since reset, wrapping at 32 bits.
//    time.micros(): Microseconds since reset, wrapping at 32 bits.
//    time.rollovers(): How many times time.millis() has wrapped.
//    meminfo(): Print Go heap statistics.
//    get_mux_token(), set_mux_token(s): The output token.
//    broker.publish(topic, payload): Ask the host to publish.  Byte
//      strings, as handed to MQ.OnMessage, go out byte for byte.
//    broker.subscribe(topic), broker.unsubscribe(topic)
//
// Extended properties (enabled by the engine's Extended property):
//
//    cron.next(s): Return a string representing (RFC3339Nano) the
//      next time for the given crontab expression.
//    randstr(): generate a random string.
func (e *Engine) install(rt *goja.Runtime) {
	rt.Set("print", func(call goja.FunctionCall) goja.Value {
		ss := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			ss = append(ss, arg.String())
		}
		fmt.Fprintf(e.Out, "%s\n", strings.Join(ss, "\t"))
		return goja.Undefined()
	})

	elapsed := func() time.Duration {
		return e.Now().Sub(e.start)
	}

	clock := rt.NewObject()
	clock.Set("millis", func() int64 {
		return elapsed().Milliseconds() & 0xffffffff
	})
	clock.Set("micros", func() int64 {
		return elapsed().Microseconds() & 0xffffffff
	})
	clock.Set("rollovers", func() int64 {
		return elapsed().Milliseconds() >> 32
	})
	rt.Set("time", clock)

	rt.Set("meminfo", func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		fmt.Fprintf(e.Out, "meminfo,heap=%d,sys=%d,objects=%d,gc=%d\n",
			ms.HeapAlloc, ms.Sys, ms.HeapObjects, ms.NumGC)
	})

	rt.Set("get_mux_token", func() string {
		return e.Out.Token()
	})

	rt.Set("set_mux_token", func(token string) {
		e.Out.SetToken(token)
	})

	broker := rt.NewObject()
	broker.Set("publish", func(topic, payload string) {
		err := e.Out.Packet("pub", string(stringBytes(topic)), string(stringBytes(payload)))
		if err != nil {
			protest(rt, err.Error())
		}
	})
	broker.Set("subscribe", func(topic string) {
		if err := e.Out.Packet("sub", string(stringBytes(topic))); err != nil {
			protest(rt, err.Error())
		}
	})
	broker.Set("unsubscribe", func(topic string) {
		if err := e.Out.Packet("unsub", string(stringBytes(topic))); err != nil {
			protest(rt, err.Error())
		}
	})
	rt.Set("broker", broker)

	if !e.Extended {
		return
	}

	// cron.next parses the given string as a crontab expression
	// using github.com/gorhill/cronexpr.  Returns the next time as
	// a string formatted in time.RFC3339Nano (UTC).
	cron := rt.NewObject()
	cron.Set("next", func(expr string) string {
		c, err := cronexpr.Parse(expr)
		if err != nil {
			protest(rt, err.Error())
		}
		return c.Next(e.Now()).UTC().Format(time.RFC3339Nano)
	})
	rt.Set("cron", cron)

	rt.Set("randstr", func() string {
		return randstr(16)
	})
}

func randstr(n int) string {
	bs := make([]byte, n)
	if _, err := rand.Read(bs); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bs)
}
