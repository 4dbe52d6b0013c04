package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/airwave/internal/adapters/rtc"
	"github.com/dkeye/airwave/internal/app/orch"
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	ICEServers []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		opts:    opts.withDefaults(),
	}
}

// WsSignalConn is one WebSocket connection. It implements core.Conn and
// core.MediaRouter.
type WsSignalConn struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
	media  core.MediaConnection
	peer   *rtc.Connection
}

func (c *WsSignalConn) ID() domain.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// TrySendMedia uses the media path while it is attached. Backpressure on
// the media path drops the frame; only a closed path falls back.
func (c *WsSignalConn) TrySendMedia(f core.Frame) error {
	c.mu.RLock()
	m := c.media
	c.mu.RUnlock()
	if m != nil {
		err := m.TrySend(f)
		if !errors.Is(err, core.ErrConnClosed) {
			return err
		}
	}
	return c.TrySend(f)
}

func (c *WsSignalConn) AttachMedia(mc core.MediaConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = mc
}

func (c *WsSignalConn) DetachMedia(mc core.MediaConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.media == mc {
		c.media = nil
	}
}

// setPeer replaces the pending peer connection and returns the old one so
// the caller can close it outside the lock. On a closed connection p is
// not stored and comes back for the caller to close.
func (c *WsSignalConn) setPeer(p *rtc.Connection) (*rtc.Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return p, false
	}
	old := c.peer
	c.peer = p
	return old, true
}

func (c *WsSignalConn) Peer() *rtc.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	peer := c.peer
	c.peer = nil
	c.media = nil
	c.mu.Unlock()
	if peer != nil {
		peer.Close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.ConnID(uuid.NewString())
	client := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", client).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   id,
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ctl.Orch.Connect(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
