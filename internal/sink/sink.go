// Package sink decodes audio frames and plays them out in real time as raw
// 48kHz mono s16le PCM.
package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrUnsupported     = errors.New("codec not supported")
	ErrBusy            = errors.New("append already in progress")
	ErrQuotaExceeded   = errors.New("sink quota exceeded")
	ErrTrimUnsupported = errors.New("nothing to trim")
	ErrClosed          = errors.New("sink closed")
	ErrDecode          = errors.New("decode failed")
)

const (
	DefaultMaxBuffered = 15 * time.Second
	DefaultTick        = 20 * time.Millisecond
)

// Sink accepts one frame at a time. Completion of each Append, or the
// decode error for it, is reported through the ready callback given to
// Open.
type Sink interface {
	Codec() string
	Append(data []byte) error
	Buffered() time.Duration
	Trim(keep time.Duration) error
	Close() error
}

// Opener opens a sink for a codec. Open must not call ready.
type Opener interface {
	Open(codec string, ready func(error)) (Sink, error)
}

// Factory opens streaming sinks writing to Out.
type Factory struct {
	Out         io.Writer
	MaxBuffered time.Duration
	// Tick is the playout granularity. A negative Tick disables playout;
	// the owner then drives it with Advance.
	Tick     time.Duration
	Decoders map[string]func() Decoder
}

func (f *Factory) Open(codec string, ready func(error)) (Sink, error) {
	decoders := f.Decoders
	if decoders == nil {
		decoders = DefaultDecoders
	}
	newDec, ok := decoders[normalize(codec)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, codec)
	}

	out := f.Out
	if out == nil {
		out = io.Discard
	}
	maxBuf := f.MaxBuffered
	if maxBuf <= 0 {
		maxBuf = DefaultMaxBuffered
	}
	tick := f.Tick
	if tick == 0 {
		tick = DefaultTick
	}
	return newStream(codec, newDec(), out, maxBuf, tick, ready), nil
}

// normalize drops spaces so "audio/webm; codecs=opus" matches.
func normalize(codec string) string {
	return strings.ReplaceAll(strings.TrimSpace(codec), " ", "")
}
