package core

import (
	"sync"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

// groupImpl is a threadsafe in-memory listener group.
// It never closes adapter-owned resources.
type groupImpl struct {
	owner   domain.ConnID
	mu      sync.RWMutex
	members map[domain.ConnID]Conn
}

func NewGroup(owner domain.ConnID) Group {
	return &groupImpl{
		owner:   owner,
		members: make(map[domain.ConnID]Conn),
	}
}

func (g *groupImpl) Owner() domain.ConnID { return g.owner }

func (g *groupImpl) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (g *groupImpl) Has(id domain.ConnID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[id]
	return ok
}

func (g *groupImpl) Members() []domain.ConnID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	return out
}

func (g *groupImpl) AddMember(c Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[c.ID()] = c
	log.Debug().Str("module", "core.group").Str("broadcaster", string(g.owner)).Str("listener", string(c.ID())).Msg("member added")
}

func (g *groupImpl) RemoveMember(id domain.ConnID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; !ok {
		return false
	}
	delete(g.members, id)
	log.Debug().Str("module", "core.group").Str("broadcaster", string(g.owner)).Str("listener", string(id)).Msg("member removed")
	return true
}

// Broadcast hands data to every member except from. TrySend never blocks,
// so the read lock is held for the whole pass and the member set seen is
// exactly the one at send time.
func (g *groupImpl) Broadcast(from domain.ConnID, data Frame) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for id, c := range g.members {
		if id == from {
			continue
		}
		if err := sendFrame(c, data); err != nil {
			log.Debug().Err(err).Str("module", "core.group").Str("broadcaster", string(g.owner)).Str("listener", string(id)).Msg("frame dropped")
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	return res
}
