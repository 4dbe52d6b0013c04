package app

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	id domain.ConnID

	mu   sync.Mutex
	sent []core.Frame
}

func (c *stubConn) ID() domain.ConnID { return c.id }
func (c *stubConn) Close()            {}
func (c *stubConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	return nil
}

func newRegistryWith(ids ...domain.ConnID) *Registry {
	r := NewRegistry(nil)
	for _, id := range ids {
		r.BindConn(&stubConn{id: id})
	}
	return r
}

func TestRegistryStartEndSession(t *testing.T) {
	r := newRegistryWith("c")

	b := r.StartSession("c", "Alice")
	assert.Equal(t, "Alice", b.Name)
	assert.Equal(t, []domain.Broadcaster{{ID: "c", Name: "Alice"}}, r.ListSessions())

	assert.True(t, r.EndSession("c"))
	assert.Empty(t, r.ListSessions())
	assert.False(t, r.EndSession("c"), "ending twice is a no-op")
}

func TestRegistryStartSessionDefaultsName(t *testing.T) {
	r := NewRegistry(nil)
	b := r.StartSession("c0ffee-42", "")
	assert.NotEmpty(t, b.Name)
	assert.Equal(t, "Broadcaster-c0ffe", b.Name)
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.StartSession("a", "A")
	r.StartSession("b", "B")
	r.StartSession("a", "A2")

	assert.Equal(t, []domain.Broadcaster{{ID: "a", Name: "A2"}, {ID: "b", Name: "B"}}, r.ListSessions())
}

func TestRegistryJoinNonexistentSession(t *testing.T) {
	r := newRegistryWith("l")

	prev, ok := r.Join("l", "ghost")
	require.True(t, ok)
	assert.Empty(t, prev)
	assert.Equal(t, 1, r.ListenerCount("ghost"))
}

func TestRegistryJoinUnknownConn(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Join("nobody", "b")
	assert.False(t, ok)
	assert.Equal(t, 0, r.ListenerCount("b"))
}

func TestRegistryJoinSwitchesGroup(t *testing.T) {
	r := newRegistryWith("l")

	r.Join("l", "b1")
	prev, ok := r.Join("l", "b2")

	require.True(t, ok)
	assert.Equal(t, domain.ConnID("b1"), prev)
	assert.Equal(t, 0, r.ListenerCount("b1"))
	assert.Equal(t, 1, r.ListenerCount("b2"))
	_, exists := r.Group("b1")
	assert.False(t, exists, "empty group is dropped")
}

func TestRegistryLeaveWrongSessionIsNoop(t *testing.T) {
	r := newRegistryWith("l")
	r.Join("l", "b1")

	assert.False(t, r.Leave("l", "b2"))
	assert.Equal(t, 1, r.ListenerCount("b1"))
	assert.True(t, r.Leave("l", "b1"))
	_, ok := r.SubscriptionOf("l")
	assert.False(t, ok)
}

func TestRegistryEndSessionKeepsMembership(t *testing.T) {
	r := newRegistryWith("b", "l")
	r.StartSession("b", "Radio")
	r.Join("l", "b")

	r.EndSession("b")
	assert.Equal(t, 1, r.ListenerCount("b"))
}

func TestRegistryDisconnect(t *testing.T) {
	r := newRegistryWith("b", "l")
	r.StartSession("b", "Radio")
	r.Join("l", "b")

	ended, left := r.Disconnect("l")
	assert.False(t, ended)
	assert.Equal(t, domain.ConnID("b"), left)
	assert.Equal(t, 0, r.ListenerCount("b"))

	ended, left = r.Disconnect("b")
	assert.True(t, ended)
	assert.Empty(t, left)
	assert.Empty(t, r.ListSessions())
	assert.Empty(t, r.Conns())
}

func TestRegistryListenerCounts(t *testing.T) {
	r := newRegistryWith("b1", "b2", "l1", "l2", "l3")
	r.Join("l1", "b1")
	r.Join("l2", "b1")
	r.Join("l3", "b2")
	r.Leave("l3", "b2")

	assert.Equal(t, map[domain.ConnID]int{"b1": 2}, r.ListenerCounts())
}

func groupsContaining(r *Registry, listener domain.ConnID, sessions []domain.ConnID) int {
	n := 0
	for _, s := range sessions {
		if g, ok := r.Group(s); ok && g.Has(listener) {
			n++
		}
	}
	return n
}

func TestRegistryExclusiveSubscription(t *testing.T) {
	sessions := []domain.ConnID{"s1", "s2", "s3"}
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		r := newRegistryWith("l")
		for step := 0; step < 40; step++ {
			s := sessions[rng.Intn(len(sessions))]
			if rng.Intn(2) == 0 {
				r.Join("l", s)
			} else {
				r.Leave("l", s)
			}
			require.LessOrEqual(t, groupsContaining(r, "l", sessions), 1, "run %d step %d", run, step)
		}
	}
}

func TestRegistryConcurrentMutations(t *testing.T) {
	r := NewRegistry(nil)
	const n = 32
	for i := 0; i < n; i++ {
		r.BindConn(&stubConn{id: domain.ConnID(fmt.Sprintf("l%d", i))})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := domain.ConnID(fmt.Sprintf("b%d", i))
			r.StartSession(id, "")
			if i%2 == 0 {
				r.EndSession(id)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			l := domain.ConnID(fmt.Sprintf("l%d", i))
			r.Join(l, "b0")
			r.Join(l, domain.ConnID(fmt.Sprintf("b%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.ListSessions(), n/2)
	for i := 0; i < n; i++ {
		s, ok := r.SubscriptionOf(domain.ConnID(fmt.Sprintf("l%d", i)))
		require.True(t, ok)
		assert.Equal(t, domain.ConnID(fmt.Sprintf("b%d", i)), s)
	}
}
