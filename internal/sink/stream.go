package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type stream struct {
	codec  string
	dec    Decoder
	out    io.Writer
	maxBuf time.Duration
	ready  func(error)

	mu     sync.Mutex
	pcm    []byte
	busy   bool
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newStream(codec string, dec Decoder, out io.Writer, maxBuf, tick time.Duration, ready func(error)) *stream {
	s := &stream{
		codec:  codec,
		dec:    dec,
		out:    out,
		maxBuf: maxBuf,
		ready:  ready,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if tick > 0 {
		go s.playout(tick)
	} else {
		close(s.done)
	}
	return s
}

func (s *stream) Codec() string { return s.codec }

// Append decodes data in the background and reports through ready.
func (s *stream) Append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.busy {
		return ErrBusy
	}
	if buffered := PCMDuration(len(s.pcm)); buffered > s.maxBuf {
		return fmt.Errorf("%w: %s buffered", ErrQuotaExceeded, buffered)
	}
	s.busy = true
	go s.decode(data)
	return nil
}

func (s *stream) decode(data []byte) {
	pcm, err := s.dec.Decode(data)

	s.mu.Lock()
	s.busy = false
	closed := s.closed
	if err == nil && !closed {
		s.pcm = append(s.pcm, pcm...)
	}
	s.mu.Unlock()

	if closed {
		return
	}
	if s.ready != nil {
		s.ready(err)
	}
}

func (s *stream) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PCMDuration(len(s.pcm))
}

// Trim drops the oldest media so that at most keep remains.
func (s *stream) Trim(keep time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	drop := len(s.pcm) - pcmBytes(keep)
	if drop <= 0 {
		return ErrTrimUnsupported
	}
	s.pcm = s.pcm[drop:]
	log.Debug().Str("module", "sink").Dur("dropped", PCMDuration(drop)).Dur("kept", PCMDuration(len(s.pcm))).Msg("trimmed")
	return nil
}

// Advance plays out d worth of media and returns the bytes written.
func (s *stream) Advance(d time.Duration) int {
	s.mu.Lock()
	n := min(pcmBytes(d), len(s.pcm))
	chunk := s.pcm[:n]
	s.pcm = s.pcm[n:]
	s.mu.Unlock()

	if n == 0 {
		return 0
	}
	if _, err := s.out.Write(chunk); err != nil {
		log.Warn().Err(err).Str("module", "sink").Msg("playout write")
	}
	return n
}

func (s *stream) playout(tick time.Duration) {
	defer close(s.done)
	t := time.NewTicker(tick)
	defer t.Stop()

	last := time.Now()
	var carry time.Duration
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			elapsed := now.Sub(last) + carry
			last = now
			s.Advance(elapsed)
			// keep the sub-sample remainder so the clock does not drift
			carry = elapsed - PCMDuration(pcmBytes(elapsed))
		}
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pcm = nil
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}
