package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/dkeye/airwave/internal/negotiate"
	"github.com/dkeye/airwave/internal/sink"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("playback loop stopped")

// Scheduler runs f after d. time.AfterFunc satisfies it through
// TimeScheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type TimeScheduler struct{}

func (TimeScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

type Options struct {
	Config     Config
	Candidates []string
	Scheduler  Scheduler
	// OnExhausted is called on the loop goroutine.
	OnExhausted func(err error)
}

// Loop owns a Buffer and applies every event to it on one goroutine. Events
// are posted to an unbounded mailbox so sink callbacks never block, even
// when they fire from inside Append.
type Loop struct {
	buf    *Buffer
	opener sink.Opener
	sched  Scheduler

	mu      sync.Mutex
	queue   []func(*Buffer)
	stopped bool
	signal  chan struct{}
	done    chan struct{}
}

func NewLoop(opener sink.Opener, opts Options) *Loop {
	l := &Loop{
		opener: opener,
		sched:  opts.Scheduler,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if l.sched == nil {
		l.sched = TimeScheduler{}
	}
	l.buf = NewBuffer(opts.Config, negotiate.New(opts.Candidates), Hooks{
		Open:      l.open,
		Retry:     l.retry,
		Exhausted: opts.OnExhausted,
	})
	return l
}

// open runs on the loop goroutine; its outcome is posted back as an event.
func (l *Loop) open(epoch uint64, codec string) {
	s, err := l.opener.Open(codec, func(err error) {
		l.post(func(b *Buffer) { b.HandleReady(epoch, err) })
	})
	l.post(func(b *Buffer) { b.HandleOpened(epoch, codec, s, err) })
}

func (l *Loop) retry(epoch uint64, d time.Duration) {
	l.sched.AfterFunc(d, func() {
		l.post(func(b *Buffer) { b.HandleRetry(epoch) })
	})
}

func (l *Loop) post(ev func(*Buffer)) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run processes events until ctx is done, then tears the subscription down.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		l.buf.Leave()
		close(l.done)
		log.Debug().Str("module", "playback").Msg("loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.signal:
		}

		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, ev := range batch {
			ev(l.buf)
		}
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Join resets the buffer for a new subscription.
func (l *Loop) Join() { l.post(func(b *Buffer) { b.Join() }) }

func (l *Loop) Leave() { l.post(func(b *Buffer) { b.Leave() }) }

func (l *Loop) Ingest(f domain.AudioFrame) { l.post(func(b *Buffer) { b.Ingest(f) }) }

// Snapshot waits for the loop to process everything posted before it.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	ch := make(chan Snapshot, 1)
	l.post(func(b *Buffer) { ch <- b.Snapshot() })
	select {
	case s := <-ch:
		return s, nil
	case <-l.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
