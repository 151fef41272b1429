// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/jingletest"
	"mellium.im/jingle/pipeline"
)

type result struct {
	reply *element.IQ
	err   error
}

// recorder counts callback invocations per request.
type recorder struct {
	calls map[int][]result
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[int][]result)}
}

func (r *recorder) cb(i int) pipeline.Callback {
	return func(reply *element.IQ, err error) {
		r.calls[i] = append(r.calls[i], result{reply: reply, err: err})
	}
}

func newIQ(i int) element.IQ {
	return element.IQ{
		IQ:      stanza.IQ{ID: "req-" + strconv.Itoa(i), To: jingletest.Peer, Type: stanza.SetIQ},
		Payload: element.New("urn:xmpp:jingle:1", "jingle"),
	}
}

func setup(opts ...pipeline.Option) (*pipeline.Pipeline, *jingletest.Conn, *eventloop.Manual) {
	conn := jingletest.New()
	loop := eventloop.NewManual()
	return pipeline.New(conn, loop, opts...), conn, loop
}

func TestCapacity(t *testing.T) {
	p, conn, loop := setup()
	rec := newRecorder()
	for i := 0; i < 12; i++ {
		p.Enqueue(newIQ(i), 0, rec.cb(i))
	}
	assert.Empty(t, conn.Sent, "requests must not be sent before the loop turns")

	loop.RunPending()
	assert.Equal(t, pipeline.Stats{Pending: 2, InFlight: 10}, p.Stats())
	assert.Len(t, conn.Sent, 10)

	for n := 0; n < 12; n++ {
		out := conn.Outstanding()
		require.NotEmpty(t, out)
		conn.Reply(out[0])
		loop.RunPending()
		assert.LessOrEqual(t, p.Stats().InFlight, pipeline.DefaultCapacity)
	}
	assert.Equal(t, pipeline.Stats{}, p.Stats())
	for i := 0; i < 12; i++ {
		require.Len(t, rec.calls[i], 1, "request %d", i)
		assert.NoError(t, rec.calls[i][0].err)
		assert.NotNil(t, rec.calls[i][0].reply)
	}
}

func TestFIFO(t *testing.T) {
	p, conn, loop := setup(pipeline.Capacity(2))
	for i := 0; i < 5; i++ {
		p.Enqueue(newIQ(i), 0, nil)
	}
	loop.RunPending()
	conn.ReplyAll()
	loop.RunPending()
	conn.ReplyAll()
	loop.RunPending()
	conn.ReplyAll()
	loop.RunPending()

	var ids []string
	for _, iq := range conn.Sent {
		ids = append(ids, iq.ID)
	}
	assert.Equal(t, []string{"req-0", "req-1", "req-2", "req-3", "req-4"}, ids)
}

func TestSendFailure(t *testing.T) {
	p, conn, loop := setup()
	conn.FailSend = true
	rec := newRecorder()
	p.Enqueue(newIQ(0), 0, rec.cb(0))
	assert.Empty(t, rec.calls, "callback ran before Enqueue returned")

	loop.RunPending()
	require.Len(t, rec.calls[0], 1)
	assert.ErrorIs(t, rec.calls[0][0].err, jingletest.ErrSend)
	assert.Equal(t, pipeline.Stats{}, p.Stats())
}

func TestErrorReply(t *testing.T) {
	p, conn, loop := setup()
	rec := newRecorder()
	p.Enqueue(newIQ(0), 0, rec.cb(0))
	loop.RunPending()
	conn.ReplyError("req-0", stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound})

	require.Len(t, rec.calls[0], 1)
	var se stanza.Error
	require.True(t, errors.As(rec.calls[0][0].err, &se))
	assert.Equal(t, stanza.ItemNotFound, se.Condition)
	assert.NotNil(t, rec.calls[0][0].reply)
}

func TestCancelPending(t *testing.T) {
	p, conn, loop := setup()
	rec := newRecorder()
	it := p.Enqueue(newIQ(0), 0, rec.cb(0))
	it.Cancel()
	it.Cancel()
	loop.RunPending()

	require.Len(t, rec.calls[0], 1)
	assert.ErrorIs(t, rec.calls[0][0].err, pipeline.ErrCancelled)
	assert.Empty(t, conn.Sent)
	assert.Equal(t, pipeline.Stats{}, p.Stats())
}

func TestCancelInFlightBecomesZombie(t *testing.T) {
	p, conn, loop := setup()
	rec := newRecorder()
	it := p.Enqueue(newIQ(0), 0, rec.cb(0))
	loop.RunPending()
	it.Cancel()

	assert.Equal(t, pipeline.Stats{Zombies: 1}, p.Stats())
	require.Len(t, rec.calls[0], 1)
	assert.ErrorIs(t, rec.calls[0][0].err, pipeline.ErrCancelled)

	require.True(t, conn.Reply("req-0"))
	loop.RunPending()
	assert.Len(t, rec.calls[0], 1, "late reply must not call back again")
	assert.Equal(t, pipeline.Stats{}, p.Stats())
}

func TestTimeout(t *testing.T) {
	p, conn, loop := setup(pipeline.Timeout(time.Minute))
	rec := newRecorder()
	p.Enqueue(newIQ(0), 0, rec.cb(0))
	p.Enqueue(newIQ(1), 5*time.Minute, rec.cb(1))
	loop.RunPending()

	loop.Advance(59 * time.Second)
	assert.Empty(t, rec.calls)

	loop.Advance(time.Second)
	require.Len(t, rec.calls[0], 1)
	assert.ErrorIs(t, rec.calls[0][0].err, pipeline.ErrTimeout)
	assert.Equal(t, pipeline.Stats{InFlight: 1, Zombies: 1}, p.Stats())

	conn.Reply("req-0")
	conn.Reply("req-1")
	loop.Advance(10 * time.Minute)
	assert.Len(t, rec.calls[0], 1)
	require.Len(t, rec.calls[1], 1)
	assert.NoError(t, rec.calls[1][0].err)
	assert.Equal(t, pipeline.Stats{}, p.Stats())
}

func TestZombieFreesSlot(t *testing.T) {
	p, _, loop := setup(pipeline.Capacity(1))
	first := p.Enqueue(newIQ(0), 0, nil)
	p.Enqueue(newIQ(1), 0, nil)
	loop.RunPending()
	assert.Equal(t, pipeline.Stats{Pending: 1, InFlight: 1}, p.Stats())

	first.Cancel()
	loop.RunPending()
	assert.Equal(t, pipeline.Stats{InFlight: 1, Zombies: 1}, p.Stats())
}

func TestClose(t *testing.T) {
	p, conn, loop := setup(pipeline.Capacity(2))
	rec := newRecorder()
	for i := 0; i < 5; i++ {
		p.Enqueue(newIQ(i), 0, rec.cb(i))
	}
	loop.RunPending()
	assert.Equal(t, pipeline.Stats{Pending: 3, InFlight: 2}, p.Stats())

	p.Close()
	assert.Equal(t, pipeline.Stats{}, p.Stats())
	for i := 0; i < 5; i++ {
		require.Len(t, rec.calls[i], 1, "request %d", i)
		assert.ErrorIs(t, rec.calls[i][0].err, pipeline.ErrDisconnected)
	}

	// Replies arriving after close are ignored.
	conn.ReplyAll()
	loop.RunPending()
	for i := 0; i < 5; i++ {
		assert.Len(t, rec.calls[i], 1)
	}

	late := newRecorder()
	p.Enqueue(newIQ(9), 0, late.cb(0))
	assert.Empty(t, late.calls)
	loop.RunPending()
	require.Len(t, late.calls[0], 1)
	assert.ErrorIs(t, late.calls[0][0].err, pipeline.ErrDisconnected)
}

func TestCloseSkipsZombies(t *testing.T) {
	p, _, loop := setup()
	rec := newRecorder()
	it := p.Enqueue(newIQ(0), 0, rec.cb(0))
	loop.RunPending()
	it.Cancel()
	p.Close()

	require.Len(t, rec.calls[0], 1)
	assert.ErrorIs(t, rec.calls[0][0].err, pipeline.ErrCancelled)
}

func TestCallbackReentry(t *testing.T) {
	p, conn, loop := setup(pipeline.Capacity(1))
	var order []string
	p.Enqueue(newIQ(0), 0, func(*element.IQ, error) {
		order = append(order, "first")
		p.Enqueue(newIQ(1), 0, func(*element.IQ, error) {
			order = append(order, "second")
		})
	})
	loop.RunPending()
	conn.Reply("req-0")
	loop.RunPending()
	conn.Reply("req-1")
	loop.RunPending()
	assert.Equal(t, []string{"first", "second"}, order)
}

// Every interleaving of reply, cancel and timeout produces one callback.
func TestExactlyOnce(t *testing.T) {
	type step func(p *pipeline.Pipeline, it *pipeline.Item, conn *jingletest.Conn, loop *eventloop.Manual)
	reply := func(_ *pipeline.Pipeline, it *pipeline.Item, c *jingletest.Conn, _ *eventloop.Manual) {
		c.Reply(it.IQ().ID)
	}
	cancel := func(_ *pipeline.Pipeline, it *pipeline.Item, _ *jingletest.Conn, _ *eventloop.Manual) {
		it.Cancel()
	}
	timeout := func(_ *pipeline.Pipeline, _ *pipeline.Item, _ *jingletest.Conn, l *eventloop.Manual) {
		l.Advance(pipeline.DefaultTimeout)
	}
	closeP := func(p *pipeline.Pipeline, _ *pipeline.Item, _ *jingletest.Conn, _ *eventloop.Manual) {
		p.Close()
	}
	steps := map[string]step{"reply": reply, "cancel": cancel, "timeout": timeout, "close": closeP}

	for a, first := range steps {
		for b, second := range steps {
			for c, third := range steps {
				t.Run(a+"/"+b+"/"+c, func(t *testing.T) {
					reg := prometheus.NewRegistry()
					p, conn, loop := setup(pipeline.Metrics(reg))
					calls := 0
					it := p.Enqueue(newIQ(0), 0, func(*element.IQ, error) { calls++ })
					loop.RunPending()
					for _, s := range []step{first, second, third} {
						s(p, it, conn, loop)
						loop.RunPending()
					}
					p.Close()
					assert.Equal(t, 1, calls)
					assert.Equal(t, pipeline.Stats{}, p.Stats())
				})
			}
		}
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, conn, loop := setup(pipeline.Metrics(reg))
	p.Enqueue(newIQ(0), 0, nil)
	p.Enqueue(newIQ(1), 0, nil).Cancel()
	loop.RunPending()
	conn.Reply("req-0")

	n, err := testutil.GatherAndCount(reg, "jingle_pipeline_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
