package orch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/airwave/internal/app"
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	id   domain.ConnID
	fail error

	mu   sync.Mutex
	sent []core.Frame
}

func (c *recConn) ID() domain.ConnID { return c.id }
func (c *recConn) Close()            {}
func (c *recConn) TrySend(f core.Frame) error {
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	return nil
}

func (c *recConn) frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.sent...)
}

// ofType returns the messages of one type, decoded into maps.
func (c *recConn) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, f := range c.frames() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func newOrch(conns ...*recConn) *Orchestrator {
	o := New(app.NewRegistry(nil))
	for _, c := range conns {
		o.Connect(c)
	}
	return o
}

func chunk(t *testing.T, data string) core.Frame {
	t.Helper()
	b, err := json.Marshal(domain.AudioChunk{
		Type:       domain.TypeAudioChunk,
		AudioFrame: domain.AudioFrame{Data: []byte(data), MimeType: "x"},
	})
	require.NoError(t, err)
	return b
}

func TestStartBroadcastPushesToAll(t *testing.T) {
	b := &recConn{id: "b"}
	l := &recConn{id: "l"}
	o := newOrch(b, l)

	got := o.StartBroadcast("b", "Radio")

	assert.Equal(t, "Radio", got.Name)
	for _, c := range []*recConn{b, l} {
		msgs := c.ofType(domain.TypeUpdateBroadcasters)
		require.Len(t, msgs, 1)
		list := msgs[0]["broadcasters"].([]any)
		require.Len(t, list, 1)
		assert.Equal(t, "Radio", list[0].(map[string]any)["name"])
	}
}

func TestSendBroadcastersRepliesToOneConn(t *testing.T) {
	b := &recConn{id: "b"}
	l := &recConn{id: "l"}
	o := newOrch(b, l)
	o.Registry.StartSession("b", "Radio")

	o.SendBroadcasters(l)

	assert.Len(t, l.ofType(domain.TypeUpdateBroadcasters), 1)
	assert.Empty(t, b.ofType(domain.TypeUpdateBroadcasters))
}

func TestOnFrameDeliversToGroupOnly(t *testing.T) {
	b := &recConn{id: "b"}
	l1 := &recConn{id: "l1"}
	l2 := &recConn{id: "l2"}
	other := &recConn{id: "other"}
	o := newOrch(b, l1, l2, other)
	o.StartBroadcast("b", "Radio")
	o.Join("l1", "b")
	o.Join("l2", "b")
	o.Join("other", "elsewhere")

	frame := chunk(t, "abc")
	res := o.OnFrame("b", frame)

	assert.Equal(t, 2, res.SendTo)
	assert.Len(t, l1.ofType(domain.TypeAudioChunk), 1)
	assert.Len(t, l2.ofType(domain.TypeAudioChunk), 1)
	assert.Empty(t, other.ofType(domain.TypeAudioChunk))
	assert.Empty(t, b.ofType(domain.TypeAudioChunk))
}

func TestOnFrameRelaysVerbatim(t *testing.T) {
	b := &recConn{id: "b"}
	l := &recConn{id: "l"}
	o := newOrch(b, l)
	o.Join("l", "b")

	frame := chunk(t, "verbatim")
	o.OnFrame("b", frame)

	frames := l.frames()
	assert.Equal(t, frame, frames[len(frames)-1])
}

func TestOnFrameNoGroupIsNoop(t *testing.T) {
	o := newOrch(&recConn{id: "b"})
	assert.Equal(t, core.PublishResult{}, o.OnFrame("b", chunk(t, "x")))
}

func TestOnFrameSlowListenerIsolated(t *testing.T) {
	b := &recConn{id: "b"}
	slow := &recConn{id: "slow", fail: core.ErrBackpressure}
	fast := &recConn{id: "fast"}
	o := newOrch(b, slow, fast)
	o.Join("slow", "b")
	o.Join("fast", "b")

	res := o.OnFrame("b", chunk(t, "x"))

	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.ConnID{"slow"}, res.Dropped)
	assert.Len(t, fast.ofType(domain.TypeAudioChunk), 1)
}

func TestJoinNotifiesListenerCounts(t *testing.T) {
	b1 := &recConn{id: "b1"}
	b2 := &recConn{id: "b2"}
	l := &recConn{id: "l"}
	o := newOrch(b1, b2, l)

	require.True(t, o.Join("l", "b1"))
	require.True(t, o.Join("l", "b2"))

	c1 := b1.ofType(domain.TypeListenerCount)
	require.Len(t, c1, 2)
	assert.EqualValues(t, 1, c1[0]["count"])
	assert.EqualValues(t, 0, c1[1]["count"])
	c2 := b2.ofType(domain.TypeListenerCount)
	require.Len(t, c2, 1)
	assert.EqualValues(t, 1, c2[0]["count"])
}

func TestOnDisconnectPushesOnlyWhenSessionEnded(t *testing.T) {
	b := &recConn{id: "b"}
	l := &recConn{id: "l"}
	watcher := &recConn{id: "w"}
	o := newOrch(b, l, watcher)
	o.StartBroadcast("b", "Radio")
	o.Join("l", "b")

	o.OnDisconnect("l")
	assert.Len(t, watcher.ofType(domain.TypeUpdateBroadcasters), 1)

	o.OnDisconnect("b")
	msgs := watcher.ofType(domain.TypeUpdateBroadcasters)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[1]["broadcasters"])
}

func TestStopBroadcastThenList(t *testing.T) {
	o := newOrch(&recConn{id: "c"})
	o.StartBroadcast("c", "Alice")
	o.StopBroadcast("c")
	assert.Empty(t, o.Broadcasters())
}

func TestWhoAmI(t *testing.T) {
	o := newOrch(&recConn{id: "b"}, &recConn{id: "l"})
	o.StartBroadcast("b", "")
	o.Join("l", "b")

	assert.Equal(t, domain.WhoAmI{Type: domain.TypeWhoAmI, ID: "b", Broadcasting: true}, o.WhoAmI("b"))
	assert.Equal(t, domain.WhoAmI{Type: domain.TypeWhoAmI, ID: "l", Listening: "b"}, o.WhoAmI("l"))
}

// Members toggle while frames flow: the stable member gets every frame and
// the deliveries counted by the relay are exactly the ones that landed.
func TestOnFrameConcurrentMembership(t *testing.T) {
	const listeners = 16
	const frames = 200

	b := &recConn{id: "b"}
	o := newOrch(b)
	ls := make([]*recConn, listeners)
	for i := range ls {
		ls[i] = &recConn{id: domain.ConnID(fmt.Sprintf("l%d", i))}
		o.Connect(ls[i])
	}
	stable := ls[0]
	o.Join(stable.id, "b")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for _, l := range ls[1:] {
		wg.Add(1)
		go func(l *recConn) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				o.Join(l.id, "b")
				o.Leave(l.id, "b")
			}
		}(l)
	}

	total := 0
	for i := 0; i < frames; i++ {
		res := o.OnFrame("b", chunk(t, fmt.Sprint(i)))
		total += res.SendTo
	}
	close(stop)
	wg.Wait()

	assert.Len(t, stable.ofType(domain.TypeAudioChunk), frames)
	got := 0
	for _, l := range ls {
		got += len(l.ofType(domain.TypeAudioChunk))
	}
	assert.Equal(t, total, got, "every counted delivery landed on exactly one member")
}

type fakeMedia struct {
	recConn
	onFrame  func(core.Frame)
	onClosed func()
}

func (m *fakeMedia) OnFrame(fn func(core.Frame)) { m.onFrame = fn }
func (m *fakeMedia) OnClosed(fn func())          { m.onClosed = fn }

type routedConn struct {
	recConn
	mu    sync.Mutex
	media core.MediaConnection
}

func (c *routedConn) AttachMedia(mc core.MediaConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = mc
}

func (c *routedConn) DetachMedia(mc core.MediaConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.media == mc {
		c.media = nil
	}
}

func (c *routedConn) TrySendMedia(f core.Frame) error {
	c.mu.Lock()
	m := c.media
	c.mu.Unlock()
	if m != nil {
		return m.TrySend(f)
	}
	return c.TrySend(f)
}

func TestMediaPathRouting(t *testing.T) {
	b := &recConn{id: "b"}
	l := &routedConn{recConn: recConn{id: "l"}}
	o := newOrch(b)
	o.Connect(l)
	o.Join("l", "b")

	media := &fakeMedia{recConn: recConn{id: "l"}}
	o.BindMediaHandlers(media, "l")
	require.True(t, o.OnMediaReady("l", media))

	o.OnFrame("b", chunk(t, "a"))
	assert.Len(t, media.ofType(domain.TypeAudioChunk), 1)
	assert.Empty(t, l.ofType(domain.TypeAudioChunk))

	media.onClosed()
	o.OnFrame("b", chunk(t, "b"))
	assert.Len(t, l.ofType(domain.TypeAudioChunk), 1)
}

func TestMediaPathInboundRelay(t *testing.T) {
	b := &routedConn{recConn: recConn{id: "b"}}
	l := &recConn{id: "l"}
	o := newOrch(l)
	o.Connect(b)
	o.Join("l", "b")

	media := &fakeMedia{recConn: recConn{id: "b"}}
	o.BindMediaHandlers(media, "b")

	media.onFrame(chunk(t, "a"))
	media.onFrame(core.Frame(`{"type":"join-broadcast","id":"x"}`))

	assert.Len(t, l.ofType(domain.TypeAudioChunk), 1)
	_, ok := o.Registry.SubscriptionOf("b")
	assert.False(t, ok, "control messages on the media path are ignored")
}
