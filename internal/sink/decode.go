package sink

import (
	"fmt"
	"time"

	"github.com/pion/opus"
)

const (
	SampleRate     = 48000
	bytesPerSample = 2
	bytesPerSecond = SampleRate * bytesPerSample
)

// Decoder turns one frame into 48kHz mono s16le PCM.
type Decoder interface {
	Decode(frame []byte) ([]byte, error)
}

// DefaultDecoders has no container demuxers: webm and ogg candidates are
// reported unsupported and negotiation falls through to bare frames.
var DefaultDecoders = map[string]func() Decoder{
	"audio/opus": NewOpusDecoder,
	"audio/L16":  NewL16Decoder,
}

// PCMDuration is the play time of n bytes of output PCM.
func PCMDuration(n int) time.Duration {
	return time.Duration(n/bytesPerSample) * time.Second / SampleRate
}

func pcmBytes(d time.Duration) int {
	return int(d*SampleRate/time.Second) * bytesPerSample
}

type l16Decoder struct{}

func NewL16Decoder() Decoder { return l16Decoder{} }

func (l16Decoder) Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 || len(frame)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd L16 frame of %d bytes", ErrDecode, len(frame))
	}
	return append([]byte(nil), frame...), nil
}

type opusDecoder struct {
	dec opus.Decoder
	buf []byte
}

// NewOpusDecoder decodes bare Opus packets (RFC 6716). The library already
// emits 48kHz s16le whatever the coded bandwidth.
func NewOpusDecoder() Decoder {
	return &opusDecoder{
		dec: opus.NewDecoder(),
		// 120ms is the longest packet; stereo doubles it.
		buf: make([]byte, pcmBytes(120*time.Millisecond)*2),
	}
}

func (d *opusDecoder) Decode(frame []byte) ([]byte, error) {
	dur, err := OpusPacketDuration(frame)
	if err != nil {
		return nil, err
	}
	clear(d.buf)
	_, stereo, err := d.dec.Decode(frame, d.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	channels := 1
	if stereo {
		channels = 2
	}
	samples := int(dur * SampleRate / time.Second)
	if limit := len(d.buf) / (channels * bytesPerSample); samples > limit {
		samples = limit
	}
	return downmix(d.buf, samples, channels), nil
}

// downmix keeps the first channel of interleaved PCM.
func downmix(in []byte, samples, channels int) []byte {
	if channels == 1 {
		return append([]byte(nil), in[:samples*bytesPerSample]...)
	}
	out := make([]byte, 0, samples*bytesPerSample)
	for i := range samples {
		off := i * channels * bytesPerSample
		out = append(out, in[off], in[off+1])
	}
	return out
}

// OpusPacketDuration reads the play time of a packet from its TOC byte and,
// for code 3 packets, the frame count byte.
func OpusPacketDuration(packet []byte) (time.Duration, error) {
	if len(packet) == 0 {
		return 0, fmt.Errorf("%w: empty opus packet", ErrDecode)
	}
	toc := packet[0]
	frame := opusFrameDuration(toc >> 3)

	var frames int
	switch toc & 0x3 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(packet) < 2 {
			return 0, fmt.Errorf("%w: opus packet missing frame count", ErrDecode)
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, fmt.Errorf("%w: opus packet with zero frames", ErrDecode)
		}
	}

	total := frame * time.Duration(frames)
	if total > 120*time.Millisecond {
		return 0, fmt.Errorf("%w: opus packet of %s", ErrDecode, total)
	}
	return total, nil
}

func opusFrameDuration(config byte) time.Duration {
	switch {
	case config < 12: // SILK
		return [...]time.Duration{
			10 * time.Millisecond, 20 * time.Millisecond,
			40 * time.Millisecond, 60 * time.Millisecond,
		}[config%4]
	case config < 16: // hybrid
		return [...]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}[config%2]
	default: // CELT
		return [...]time.Duration{
			2500 * time.Microsecond, 5 * time.Millisecond,
			10 * time.Millisecond, 20 * time.Millisecond,
		}[config%4]
	}
}
