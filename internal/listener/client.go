// Package listener is the client side of the relay: a WebSocket client and
// the controller that keeps one subscription and its playback in step.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var ErrClosed = errors.New("client closed")

// Handler receives server pushes on the read goroutine.
type Handler interface {
	HandleBroadcasters(list []domain.Broadcaster)
	HandleAudio(f domain.AudioFrame)
	HandleError(code string)
}

type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "listener").Str("url", url).Msg("connected")
	return &Client{conn: conn}, nil
}

func (c *Client) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) GetBroadcasters() error {
	return c.write(domain.Envelope{Type: domain.TypeGetBroadcasters})
}

func (c *Client) Join(id domain.ConnID) error {
	return c.write(domain.BroadcasterRef{Type: domain.TypeJoinBroadcast, ID: id})
}

func (c *Client) Leave(id domain.ConnID) error {
	return c.write(domain.BroadcasterRef{Type: domain.TypeLeaveBroadcast, ID: id})
}

// Run reads until the connection fails or ctx is done. Pings from the
// server are answered by the websocket library while reading.
func (c *Client) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h Handler, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "listener").Msg("bad json from server")
		return
	}

	switch env.Type {
	case domain.TypeAudioChunk:
		var m domain.AudioChunk
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "listener").Msg("bad audio chunk")
			return
		}
		h.HandleAudio(m.AudioFrame)
	case domain.TypeUpdateBroadcasters:
		var m domain.UpdateBroadcasters
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "listener").Msg("bad broadcaster list")
			return
		}
		h.HandleBroadcasters(m.Broadcasters)
	case domain.TypeError:
		var m domain.ErrorMessage
		_ = json.Unmarshal(data, &m)
		h.HandleError(m.Error)
	default:
		log.Debug().Str("module", "listener").Str("type", env.Type).Msg("ignored message")
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return c.conn.Close()
}
