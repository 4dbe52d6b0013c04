package listener

import (
	"slices"
	"sync"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sender is the outbound half of the server connection.
type Sender interface {
	Join(id domain.ConnID) error
	Leave(id domain.ConnID) error
}

// Player is the playback side; *playback.Loop implements it.
type Player interface {
	Join()
	Leave()
	Ingest(f domain.AudioFrame)
}

// Listener keeps at most one subscription. Switching leaves the previous
// broadcaster before joining the next one.
type Listener struct {
	sender Sender
	player Player
	// want is a broadcaster id or name to tune in to once it appears.
	want string

	mu    sync.Mutex
	tuned domain.ConnID
	// listed is set once tuned has appeared in a pushed list.
	listed bool
	list   []domain.Broadcaster
}

func New(sender Sender, player Player, want string) *Listener {
	return &Listener{sender: sender, player: player, want: want}
}

// Tune subscribes to id, leaving any current subscription first.
func (l *Listener) Tune(id domain.ConnID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tuneLocked(id)
}

func (l *Listener) tuneLocked(id domain.ConnID) error {
	if id == l.tuned {
		return nil
	}
	if l.tuned != "" {
		if err := l.sender.Leave(l.tuned); err != nil {
			return err
		}
	}
	l.player.Join()
	l.tuned = id
	l.listed = l.inList(l.list, id)
	log.Info().Str("module", "listener").Str("broadcaster", string(id)).Msg("tuned in")
	return l.sender.Join(id)
}

// Stop leaves the current subscription, if any.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked()
}

func (l *Listener) stopLocked() error {
	if l.tuned == "" {
		return nil
	}
	id := l.tuned
	l.tuned = ""
	l.listed = false
	l.player.Leave()
	log.Info().Str("module", "listener").Str("broadcaster", string(id)).Msg("tuned out")
	return l.sender.Leave(id)
}

func (l *Listener) Tuned() domain.ConnID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tuned
}

func (l *Listener) Broadcasters() []domain.Broadcaster {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.list)
}

func (l *Listener) inList(list []domain.Broadcaster, id domain.ConnID) bool {
	return slices.ContainsFunc(list, func(b domain.Broadcaster) bool { return b.ID == id })
}

// HandleBroadcasters stores the pushed list. A tuned broadcaster that was
// listed and no longer is ends the subscription; one tuned before it ever
// started broadcasting is kept. A wanted one that appears starts it.
func (l *Listener) HandleBroadcasters(list []domain.Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = slices.Clone(list)

	if l.tuned != "" {
		switch {
		case l.inList(list, l.tuned):
			l.listed = true
		case l.listed:
			log.Info().Str("module", "listener").Str("broadcaster", string(l.tuned)).Msg("broadcaster gone")
			if err := l.stopLocked(); err != nil {
				log.Warn().Err(err).Str("module", "listener").Msg("leave")
			}
		}
	}
	if l.tuned != "" || l.want == "" {
		return
	}
	i := slices.IndexFunc(list, func(b domain.Broadcaster) bool {
		return string(b.ID) == l.want || b.Name == l.want
	})
	if i < 0 {
		return
	}
	if err := l.tuneLocked(list[i].ID); err != nil {
		log.Warn().Err(err).Str("module", "listener").Msg("join")
	}
}

// HandleAudio feeds the player. Ingest never blocks, so it runs under the
// lock to stay ordered with Tune and Stop.
func (l *Listener) HandleAudio(f domain.AudioFrame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tuned == "" {
		return
	}
	l.player.Ingest(f)
}

func (l *Listener) HandleError(code string) {
	log.Warn().Str("module", "listener").Str("code", code).Msg("server error")
}
