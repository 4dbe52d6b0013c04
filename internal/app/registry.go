package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Broadcaster domain.Broadcaster
	seq         uint64
}

// Registry is the only cross-connection mutable state on the server.
// Every mutation (sessions, connections, subscriptions and group membership)
// happens under mu, so a start/stop racing a join/leave cannot lose updates.
// Groups are looked up without mu by the relay.
type Registry struct {
	mu       sync.Mutex
	seq      uint64
	sessions map[domain.ConnID]*sessionEntry
	conns    map[domain.ConnID]core.Conn
	subs     map[domain.ConnID]domain.ConnID
	groups   core.GroupManager
}

func NewRegistry(groups core.GroupManager) *Registry {
	if groups == nil {
		groups = NewGroupManager()
	}
	return &Registry{
		sessions: make(map[domain.ConnID]*sessionEntry),
		conns:    make(map[domain.ConnID]core.Conn),
		subs:     make(map[domain.ConnID]domain.ConnID),
		groups:   groups,
	}
}

func (r *Registry) BindConn(c core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	log.Info().Str("module", "app.registry").Str("conn", string(c.ID())).Msg("bound connection")
}

func (r *Registry) Conn(id domain.ConnID) (core.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Conns() []core.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// StartSession creates or replaces the session owned by id. A replaced
// session keeps its position in the list.
func (r *Registry) StartSession(id domain.ConnID, name string) domain.Broadcaster {
	b := domain.NewBroadcaster(id, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.Broadcaster = b
	} else {
		r.seq++
		r.sessions[id] = &sessionEntry{Broadcaster: b, seq: r.seq}
	}
	log.Info().Str("module", "app.registry").Str("broadcaster", string(id)).Str("name", b.Name).Msg("session started")
	return b
}

// EndSession is idempotent and reports whether a session was removed.
// Listeners of the ended session keep their membership.
func (r *Registry) EndSession(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endSessionLocked(id)
}

func (r *Registry) endSessionLocked(id domain.ConnID) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("broadcaster", string(id)).Msg("session ended")
	return true
}

func (r *Registry) Session(id domain.ConnID) (domain.Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.Broadcaster{}, false
	}
	return e.Broadcaster, true
}

func (r *Registry) ListSessions() []domain.Broadcaster {
	r.mu.Lock()
	entries := make([]sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, *e)
	}
	r.mu.Unlock()

	slices.SortFunc(entries, func(a, b sessionEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]domain.Broadcaster, len(entries))
	for i, e := range entries {
		out[i] = e.Broadcaster
	}
	return out
}

// Join moves listener into the group of session, leaving any prior group
// first. The session need not exist. It returns the session the listener
// left, if any, and false when the listener has no bound connection.
func (r *Registry) Join(listener, session domain.ConnID) (domain.ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[listener]
	if !ok {
		return "", false
	}
	prev, had := r.subs[listener]
	if had && prev == session {
		return "", true
	}
	if had {
		r.leaveLocked(listener, prev)
	}
	r.groups.GetOrCreate(session).AddMember(c)
	r.subs[listener] = session
	log.Info().Str("module", "app.registry").Str("listener", string(listener)).Str("broadcaster", string(session)).Msg("joined")
	return prev, true
}

// Leave is a no-op unless listener is currently in session's group.
func (r *Registry) Leave(listener, session domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[listener]; !ok || cur != session {
		return false
	}
	r.leaveLocked(listener, session)
	log.Info().Str("module", "app.registry").Str("listener", string(listener)).Str("broadcaster", string(session)).Msg("left")
	return true
}

func (r *Registry) leaveLocked(listener, session domain.ConnID) {
	delete(r.subs, listener)
	g, ok := r.groups.Get(session)
	if !ok {
		return
	}
	g.RemoveMember(listener)
	if g.MemberCount() == 0 {
		r.groups.Drop(session)
	}
}

// Disconnect forgets everything owned by id in one step: its connection,
// its subscription and its session.
func (r *Registry) Disconnect(id domain.ConnID) (ended bool, leftFrom domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[id]; ok {
		r.leaveLocked(id, cur)
		leftFrom = cur
	}
	ended = r.endSessionLocked(id)
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Bool("ended_session", ended).Msg("unbound connection")
	return ended, leftFrom
}

func (r *Registry) SubscriptionOf(listener domain.ConnID) (domain.ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[listener]
	return s, ok
}

// Group is the relay's read path; it does not take the registry lock.
func (r *Registry) Group(session domain.ConnID) (core.Group, bool) {
	return r.groups.Get(session)
}

// ListenerCounts maps every session with at least one listener to its
// count. Sessions missing from the map have none.
func (r *Registry) ListenerCounts() map[domain.ConnID]int {
	groups := r.groups.List()
	out := make(map[domain.ConnID]int, len(groups))
	for _, g := range groups {
		out[g.Owner] = g.ListenerCount
	}
	return out
}

func (r *Registry) ListenerCount(session domain.ConnID) int {
	g, ok := r.groups.Get(session)
	if !ok {
		return 0
	}
	return g.MemberCount()
}
