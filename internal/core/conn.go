package core

import (
	"errors"

	"github.com/dkeye/airwave/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded transport message, relayed as-is.
type Frame []byte

// Conn abstracts a message transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() domain.ConnID
	// TrySend never blocks: a full outbound queue yields ErrBackpressure.
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ConnID
}

// Group is the listener set of one broadcaster.
// It owns the membership set but never touches transport resources.
type Group interface {
	Owner() domain.ConnID
	MemberCount() int
	Members() []domain.ConnID
	Has(id domain.ConnID) bool

	AddMember(c Conn)
	RemoveMember(id domain.ConnID) bool
	Broadcast(from domain.ConnID, data Frame) PublishResult
}

type GroupInfo struct {
	Owner         domain.ConnID `json:"id"`
	ListenerCount int           `json:"listener_count"`
}

type GroupManager interface {
	GetOrCreate(owner domain.ConnID) Group
	Get(owner domain.ConnID) (Group, bool)
	List() []GroupInfo
	Drop(owner domain.ConnID)
}
