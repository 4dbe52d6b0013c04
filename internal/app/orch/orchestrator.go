package orch

import (
	"encoding/json"

	"github.com/dkeye/airwave/internal/app"
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator applies connection events to the registry and pushes the
// resulting notifications. It is safe for concurrent use: all shared state
// lives in the registry.
type Orchestrator struct {
	Registry *app.Registry
}

func New(reg *app.Registry) *Orchestrator {
	return &Orchestrator{Registry: reg}
}

// Broadcasters is the current session list, in start order.
func (o *Orchestrator) Broadcasters() []domain.Broadcaster {
	return o.Registry.ListSessions()
}

func (o *Orchestrator) broadcastersMessage() ([]byte, error) {
	list := o.Registry.ListSessions()
	return json.Marshal(domain.UpdateBroadcasters{
		Type:         domain.TypeUpdateBroadcasters,
		Broadcasters: list,
	})
}

// SendBroadcasters replies to a single connection.
func (o *Orchestrator) SendBroadcasters(c core.Conn) {
	b, err := o.broadcastersMessage()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal broadcasters")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(c.ID())).Msg("broadcasters reply dropped")
	}
}

// PushBroadcasters sends the full list to every connection.
func (o *Orchestrator) PushBroadcasters() {
	b, err := o.broadcastersMessage()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal broadcasters")
		return
	}
	sent := 0
	for _, c := range o.Registry.Conns() {
		if err := c.TrySend(b); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn", string(c.ID())).Msg("broadcasters push dropped")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "orch").Int("sent_to", sent).Msg("pushed broadcasters")
}

// notifyListenerCount tells a broadcaster how many listeners it has. Nothing
// is sent when the owner is not connected.
func (o *Orchestrator) notifyListenerCount(owner domain.ConnID) {
	if owner == "" {
		return
	}
	c, ok := o.Registry.Conn(owner)
	if !ok {
		return
	}
	b, err := json.Marshal(domain.ListenerCount{
		Type:  domain.TypeListenerCount,
		Count: o.Registry.ListenerCount(owner),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal listener count")
		return
	}
	_ = c.TrySend(b)
}
