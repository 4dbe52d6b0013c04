package app

import (
	"sync"

	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
)

type GroupManagerImpl struct {
	mu     sync.RWMutex
	groups map[domain.ConnID]core.Group
}

func NewGroupManager() core.GroupManager {
	return &GroupManagerImpl{groups: make(map[domain.ConnID]core.Group)}
}

func (f *GroupManagerImpl) GetOrCreate(owner domain.ConnID) core.Group {
	f.mu.RLock()
	g, ok := f.groups[owner]
	f.mu.RUnlock()
	if ok {
		return g
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok = f.groups[owner]; ok {
		return g
	}
	g = core.NewGroup(owner)
	f.groups[owner] = g
	return g
}

func (f *GroupManagerImpl) Get(owner domain.ConnID) (core.Group, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.groups[owner]
	return g, ok
}

func (f *GroupManagerImpl) List() []core.GroupInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.GroupInfo, 0, len(f.groups))
	for owner, g := range f.groups {
		out = append(out, core.GroupInfo{Owner: owner, ListenerCount: g.MemberCount()})
	}
	return out
}

func (f *GroupManagerImpl) Drop(owner domain.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, owner)
}
