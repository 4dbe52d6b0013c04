package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// AudioLabel is the data channel label the media path uses.
const AudioLabel = "audio"

// maxBufferedAmount bounds what may sit in the SCTP send queue before
// TrySend reports backpressure (about a second of 128kbit audio).
const maxBufferedAmount = 16 * 1024

// Connection is the media path of one signalling connection: a peer
// connection whose "audio" data channel carries audio-chunk messages.
// It implements core.MediaConnection.
type Connection struct {
	pc  *webrtc.PeerConnection
	id  domain.ConnID
	dc  atomic.Pointer[webrtc.DataChannel]
	buf uint64

	cancel context.CancelFunc
	once   sync.Once

	onICE    func(webrtc.ICECandidateInit)
	onOpen   func()
	onFrame  func(core.Frame)
	onClosed func()
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: iceServers},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, id domain.ConnID) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, id: id, buf: maxBufferedAmount}, nil
}

func (c *Connection) ID() domain.ConnID { return c.id }

// Start installs the peer connection callbacks and binds the connection
// lifetime to ctx. Callbacks must be set before Start.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("conn", string(c.id)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			cancel()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != AudioLabel {
			log.Warn().Str("module", "rtc").Str("conn", string(c.id)).Str("label", dc.Label()).Msg("unexpected data channel")
			return
		}
		if dc.Ordered() || dc.MaxRetransmits() == nil {
			log.Warn().Str("module", "rtc").Str("conn", string(c.id)).Msg("audio channel is reliable, expect added latency")
		}
		dc.OnOpen(func() {
			c.dc.Store(dc)
			log.Info().Str("module", "rtc").Str("conn", string(c.id)).Msg("audio channel open")
			if c.onOpen != nil {
				c.onOpen()
			}
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if c.onFrame != nil {
				c.onFrame(core.Frame(msg.Data))
			}
		})
		dc.OnClose(func() {
			c.dc.CompareAndSwap(dc, nil)
			cancel()
		})
	})

	return nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// TrySend queues f on the data channel. It never blocks.
func (c *Connection) TrySend(f core.Frame) error {
	dc := c.dc.Load()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return core.ErrConnClosed
	}
	if dc.BufferedAmount() > c.buf {
		return core.ErrBackpressure
	}
	return dc.SendText(string(f))
}

func (c *Connection) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.dc.Store(nil)
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("conn", string(c.id)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("conn", string(c.id)).Msg("closed")
		}
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnOpen fires once the audio channel can carry frames.
func (c *Connection) OnOpen(fn func()) { c.onOpen = fn }

func (c *Connection) OnFrame(fn func(core.Frame)) { c.onFrame = fn }

// OnClosed sets application-level callback for cleanup of the media path.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }
