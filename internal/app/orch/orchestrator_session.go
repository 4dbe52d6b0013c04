package orch

import (
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Connect(c core.Conn) {
	o.Registry.BindConn(c)
}

// StartBroadcast creates or renames the session owned by id and pushes the
// new list to everyone.
func (o *Orchestrator) StartBroadcast(id domain.ConnID, name string) domain.Broadcaster {
	b := o.Registry.StartSession(id, name)
	o.PushBroadcasters()
	o.notifyListenerCount(id)
	return b
}

func (o *Orchestrator) StopBroadcast(id domain.ConnID) {
	o.Registry.EndSession(id)
	o.PushBroadcasters()
}

// Join never fails for a missing session: the listener simply receives
// nothing until that id broadcasts.
func (o *Orchestrator) Join(listener, session domain.ConnID) bool {
	prev, ok := o.Registry.Join(listener, session)
	if !ok {
		log.Warn().Str("module", "orch").Str("listener", string(listener)).Msg("join from unbound connection")
		return false
	}
	if prev != "" {
		log.Info().Str("module", "orch").Str("listener", string(listener)).Str("from", string(prev)).Msg("switched broadcaster")
		o.notifyListenerCount(prev)
	}
	o.notifyListenerCount(session)
	return true
}

func (o *Orchestrator) Leave(listener, session domain.ConnID) {
	if o.Registry.Leave(listener, session) {
		o.notifyListenerCount(session)
	}
}

// OnDisconnect drops the connection, its subscription and its session.
// The list is pushed only if a session actually ended.
func (o *Orchestrator) OnDisconnect(id domain.ConnID) {
	ended, leftFrom := o.Registry.Disconnect(id)
	if leftFrom != "" {
		o.notifyListenerCount(leftFrom)
	}
	if ended {
		log.Info().Str("module", "orch").Str("broadcaster", string(id)).Msg("broadcaster disconnected")
		o.PushBroadcasters()
	}
}

func (o *Orchestrator) WhoAmI(id domain.ConnID) domain.WhoAmI {
	_, broadcasting := o.Registry.Session(id)
	listening, _ := o.Registry.SubscriptionOf(id)
	return domain.WhoAmI{
		Type:         domain.TypeWhoAmI,
		ID:           id,
		Broadcasting: broadcasting,
		Listening:    listening,
	}
}
