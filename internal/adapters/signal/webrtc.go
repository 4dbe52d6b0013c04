package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/airwave/internal/adapters/rtc"
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(c core.Conn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      domain.TypeCandidate,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer answers a client offer and prepares the audio data channel
// media path. A new offer replaces any previous peer connection.
func (ctl *SignalWSController) handleOffer(
	conn *WsSignalConn,
	data []byte,
) {
	type offerPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}

	cfg := rtc.DefaultWebRTCConfig(ctl.opts.ICEServers)
	wc, err := rtc.NewConnection(cfg, conn.id)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(conn, domain.ErrMediaFailed)
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	wc.OnOpen(func() {
		ctl.Orch.OnMediaReady(conn.id, wc)
	})
	ctl.Orch.BindMediaHandlers(wc, conn.id)

	old, ok := conn.setPeer(wc)
	if old != nil {
		old.Close()
	}
	if !ok {
		log.Debug().Str("module", "signal").Str("conn", string(conn.id)).Msg("offer on closed connection")
		return
	}

	if err = wc.Start(context.Background()); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		ctl.sendError(conn, domain.ErrMediaFailed)
		return
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(conn, domain.ErrMediaFailed)
		return
	}

	ctl.sendJSON(conn, map[string]string{
		"type": domain.TypeAnswer,
		"sdp":  answer.SDP,
	})
}

func (ctl *SignalWSController) handleCandidate(
	conn *WsSignalConn,
	data []byte,
) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	peer := conn.Peer()
	if peer == nil {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Msg("candidate without media connection")
		return
	}
	if err := peer.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
