package orch

import (
	"encoding/json"

	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnFrame relays one inbound frame verbatim to the listener group of from.
// Delivery is best effort: a listener whose queue is full or whose
// connection is gone loses this frame only. The broadcaster never learns.
func (o *Orchestrator) OnFrame(from domain.ConnID, data core.Frame) core.PublishResult {
	g, ok := o.Registry.Group(from)
	if !ok {
		return core.PublishResult{}
	}
	res := g.Broadcast(from, data)
	if len(res.Dropped) > 0 {
		log.Debug().
			Str("module", "orch").
			Str("broadcaster", string(from)).
			Int("sent_to", res.SendTo).
			Int("dropped", len(res.Dropped)).
			Msg("relay dropped frames")
	}
	return res
}

// BindMediaHandlers routes frames arriving on a media path into the relay.
func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, id domain.ConnID) {
	mc.OnFrame(func(f core.Frame) { o.OnMediaFrame(id, f) })
	mc.OnClosed(func() { o.OnMediaDisconnect(id, mc) })
}

// OnMediaFrame accepts only audio-chunk messages; a media path carries no
// control traffic.
func (o *Orchestrator) OnMediaFrame(from domain.ConnID, data core.Frame) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != domain.TypeAudioChunk {
		log.Warn().Str("module", "orch").Str("conn", string(from)).Str("type", env.Type).Msg("non audio message on media path")
		return
	}
	o.OnFrame(from, data)
}

// OnMediaReady is called once the media path of id is open. Frames bound
// for id move onto it.
func (o *Orchestrator) OnMediaReady(id domain.ConnID, mc core.MediaConnection) bool {
	c, ok := o.Registry.Conn(id)
	if !ok {
		return false
	}
	r, ok := c.(core.MediaRouter)
	if !ok {
		return false
	}
	r.AttachMedia(mc)
	log.Info().Str("module", "orch").Str("conn", string(id)).Msg("media path attached")
	return true
}

func (o *Orchestrator) OnMediaDisconnect(id domain.ConnID, mc core.MediaConnection) {
	c, ok := o.Registry.Conn(id)
	if !ok {
		return
	}
	if r, ok := c.(core.MediaRouter); ok {
		r.DetachMedia(mc)
		log.Info().Str("module", "orch").Str("conn", string(id)).Msg("media path detached")
	}
}
