package signal

import (
	"encoding/json"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleAudioChunk relays the message as received. The payload is not
// decoded: listeners get the broadcaster's bytes verbatim.
func (ctl *SignalWSController) handleAudioChunk(c *WsSignalConn, data []byte) {
	ctl.Orch.OnFrame(c.id, data)
}

func (ctl *SignalWSController) handleStartBroadcasting(c *WsSignalConn, data []byte) {
	var p domain.StartBroadcasting
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad start payload")
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}
	if !ctl.Limiter.Allow(c.id) {
		ctl.sendError(c, domain.ErrRateLimited)
		return
	}
	b := ctl.Orch.StartBroadcast(c.id, p.Name)
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("name", b.Name).Msg("started broadcasting")
}

func (ctl *SignalWSController) handleStopBroadcasting(c *WsSignalConn) {
	if !ctl.Limiter.Allow(c.id) {
		ctl.sendError(c, domain.ErrRateLimited)
		return
	}
	ctl.Orch.StopBroadcast(c.id)
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("stopped broadcasting")
}

func (ctl *SignalWSController) parseRef(c *WsSignalConn, data []byte) (domain.ConnID, bool) {
	var p domain.BroadcasterRef
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad broadcaster ref")
		ctl.sendError(c, domain.ErrBadPayload)
		return "", false
	}
	return p.ID, true
}

// handleJoin has no reply. Joining an id that is not broadcasting is legal.
func (ctl *SignalWSController) handleJoin(c *WsSignalConn, data []byte) {
	id, ok := ctl.parseRef(c, data)
	if !ok {
		return
	}
	if !ctl.Limiter.Allow(c.id) {
		ctl.sendError(c, domain.ErrRateLimited)
		return
	}
	ctl.Orch.Join(c.id, id)
}

func (ctl *SignalWSController) handleLeave(c *WsSignalConn, data []byte) {
	id, ok := ctl.parseRef(c, data)
	if !ok {
		return
	}
	ctl.Orch.Leave(c.id, id)
}
