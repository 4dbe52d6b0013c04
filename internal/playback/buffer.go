// Package playback feeds relayed audio frames into a sink at the sink's own
// pace. A Buffer is the state machine for one subscription; Loop runs it on
// a single goroutine.
package playback

import (
	"errors"
	"time"

	"github.com/dkeye/airwave/internal/domain"
	"github.com/dkeye/airwave/internal/negotiate"
	"github.com/dkeye/airwave/internal/sink"
	"github.com/rs/zerolog/log"
)

// Hooks connect a Buffer to the outside. None of them may call back into the
// Buffer synchronously.
type Hooks struct {
	// Open starts opening a sink for codec. The outcome comes back through
	// HandleOpened with the same epoch.
	Open func(epoch uint64, codec string)
	// Retry calls HandleRetry with epoch after d.
	Retry func(epoch uint64, d time.Duration)
	// Exhausted reports that no candidate codec could be opened.
	Exhausted func(err error)
}

// Buffer is not safe for concurrent use.
type Buffer struct {
	cfg   Config
	neg   *negotiate.Negotiator
	hooks Hooks

	state      State
	epoch      uint64
	pending    []domain.AudioFrame
	sink       sink.Sink
	codec      string
	busy       bool
	retryArmed bool
	anomalies  map[string]struct{}
	err        error
	stats      Stats
}

func NewBuffer(cfg Config, neg *negotiate.Negotiator, hooks Hooks) *Buffer {
	return &Buffer{
		cfg:   cfg.withDefaults(),
		neg:   neg,
		hooks: hooks,
	}
}

func (b *Buffer) State() State  { return b.state }
func (b *Buffer) Epoch() uint64 { return b.epoch }

// Join starts a new subscription and returns its epoch. Callbacks tagged
// with an older epoch are ignored from here on.
func (b *Buffer) Join() uint64 {
	b.reset()
	b.epoch++
	b.stats = Stats{}
	b.neg.Reset()
	b.state = StateNegotiating
	log.Debug().Str("module", "playback").Uint64("epoch", b.epoch).Msg("join")
	b.tryOpen()
	return b.epoch
}

// Leave tears the subscription down.
func (b *Buffer) Leave() {
	if b.state == StateIdle && b.sink == nil {
		return
	}
	b.reset()
	b.epoch++
	b.state = StateIdle
	log.Debug().Str("module", "playback").Uint64("epoch", b.epoch).Msg("leave")
}

func (b *Buffer) reset() {
	if b.sink != nil {
		if err := b.sink.Close(); err != nil {
			log.Warn().Err(err).Str("module", "playback").Msg("close sink")
		}
	}
	b.sink = nil
	b.pending = nil
	b.codec = ""
	b.busy = false
	b.retryArmed = false
	b.anomalies = nil
	b.err = nil
}

func (b *Buffer) tryOpen() {
	codec, ok := b.neg.Next()
	if !ok {
		b.exhausted()
		return
	}
	log.Debug().Str("module", "playback").Uint64("epoch", b.epoch).Str("codec", codec).Msg("opening sink")
	if b.hooks.Open != nil {
		b.hooks.Open(b.epoch, codec)
	}
}

func (b *Buffer) exhausted() {
	b.state = StateError
	b.err = b.neg.Err()
	b.stats.Discarded += len(b.pending)
	b.pending = nil
	log.Error().Err(b.err).Str("module", "playback").Uint64("epoch", b.epoch).Msg("no playable codec")
	if b.hooks.Exhausted != nil {
		b.hooks.Exhausted(b.err)
	}
}

// HandleOpened delivers the outcome of a Hooks.Open request. A sink opened
// for a stale epoch is closed.
func (b *Buffer) HandleOpened(epoch uint64, codec string, s sink.Sink, err error) {
	if epoch != b.epoch || b.state != StateNegotiating {
		log.Debug().Str("module", "playback").Uint64("epoch", epoch).Uint64("current", b.epoch).Msg("stale open result")
		if s != nil {
			_ = s.Close()
		}
		return
	}
	if err != nil {
		log.Info().Err(err).Str("module", "playback").Uint64("epoch", epoch).Str("codec", codec).Msg("codec rejected")
		b.neg.Failed(err)
		b.tryOpen()
		return
	}

	b.codec = b.neg.Opened()
	b.sink = s
	b.state = StateStreaming
	log.Info().Str("module", "playback").Uint64("epoch", epoch).Str("codec", b.codec).Int("pending", len(b.pending)).Msg("streaming")
	b.drain()
}

// Ingest queues a frame. Frames outside a live subscription and frames
// with no payload are discarded.
func (b *Buffer) Ingest(f domain.AudioFrame) {
	if b.state == StateIdle || b.state == StateError || f.Empty() {
		b.stats.Discarded++
		return
	}
	b.stats.Ingested++
	b.checkCodec(f.MimeType)

	b.pending = append(b.pending, f)
	if over := len(b.pending) - b.cfg.MaxPending; over > 0 {
		b.pending = b.pending[over:]
		b.stats.Evicted += over
	}
	b.drain()
}

// checkCodec logs a declared codec that differs from the negotiated one,
// once per distinct value. The sink is not reopened.
func (b *Buffer) checkCodec(declared string) {
	if b.codec == "" || declared == "" || declared == b.codec {
		return
	}
	if _, seen := b.anomalies[declared]; seen {
		return
	}
	if b.anomalies == nil {
		b.anomalies = make(map[string]struct{})
	}
	b.anomalies[declared] = struct{}{}
	b.stats.Anomalies++
	log.Warn().Str("module", "playback").Uint64("epoch", b.epoch).Str("negotiated", b.codec).Str("declared", declared).Msg("codec changed mid-stream")
}

// HandleReady is the sink's completion of the last hand-off. A non-nil err
// is a decode error on that frame: it is skipped and the next hand-off waits
// for the retry delay.
func (b *Buffer) HandleReady(epoch uint64, err error) {
	if epoch != b.epoch || b.state != StateStreaming || !b.busy {
		log.Debug().Str("module", "playback").Uint64("epoch", epoch).Uint64("current", b.epoch).Msg("stale ready")
		return
	}
	b.busy = false
	if err != nil {
		b.stats.DecodeErrors++
		log.Warn().Err(err).Str("module", "playback").Uint64("epoch", epoch).Msg("frame skipped")
		b.armRetry()
		return
	}
	b.drain()
}

// HandleRetry fires the armed retry.
func (b *Buffer) HandleRetry(epoch uint64) {
	if epoch != b.epoch || !b.retryArmed {
		return
	}
	b.retryArmed = false
	b.drain()
}

func (b *Buffer) armRetry() {
	if b.retryArmed {
		return
	}
	b.retryArmed = true
	if b.hooks.Retry != nil {
		b.hooks.Retry(b.epoch, b.cfg.RetryDelay)
	}
}

// drain hands the head frame to the sink when it can take one.
func (b *Buffer) drain() {
	if b.state != StateStreaming || b.busy || b.retryArmed || len(b.pending) == 0 {
		return
	}

	if buffered := b.sink.Buffered(); buffered > b.cfg.High {
		if err := b.sink.Trim(b.cfg.Low); err == nil {
			b.stats.Trimmed++
			log.Debug().Str("module", "playback").Dur("buffered", buffered).Dur("keep", b.cfg.Low).Msg("trimmed sink")
		}
	}

	f := b.pending[0]
	b.pending[0] = domain.AudioFrame{}
	b.pending = b.pending[1:]

	err := b.sink.Append(f.Data)
	if errors.Is(err, sink.ErrQuotaExceeded) {
		if terr := b.sink.Trim(b.cfg.Low); terr == nil {
			b.stats.Trimmed++
			err = b.sink.Append(f.Data)
		}
	}

	switch {
	case err == nil:
		b.busy = true
		b.stats.HandedOff++
	case errors.Is(err, sink.ErrBusy):
		// lost track of an outstanding append; wait for its ready
		b.pending = append([]domain.AudioFrame{f}, b.pending...)
		b.busy = true
	default:
		b.stats.Dropped++
		log.Warn().Err(err).Str("module", "playback").Uint64("epoch", b.epoch).Msg("frame dropped")
		b.armRetry()
	}
}

func (b *Buffer) Snapshot() Snapshot {
	s := Snapshot{
		State:      b.state,
		Epoch:      b.epoch,
		Codec:      b.codec,
		Pending:    len(b.pending),
		SinkBusy:   b.busy,
		RetryArmed: b.retryArmed,
		Attempts:   b.neg.Attempts(),
		Stats:      b.stats,
	}
	if b.sink != nil {
		s.Buffered = b.sink.Buffered()
	}
	if b.err != nil {
		s.Err = b.err.Error()
	}
	return s
}

// Err is the exhaustion error while in StateError.
func (b *Buffer) Err() error { return b.err }
