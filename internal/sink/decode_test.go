package sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toc(config, code byte) byte { return config<<3 | code }

func TestOpusPacketDuration(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		want   time.Duration
	}{
		{"silk 10ms", []byte{toc(0, 0)}, 10 * time.Millisecond},
		{"silk 20ms", []byte{toc(1, 0)}, 20 * time.Millisecond},
		{"silk 60ms", []byte{toc(11, 0)}, 60 * time.Millisecond},
		{"hybrid 10ms", []byte{toc(14, 0)}, 10 * time.Millisecond},
		{"hybrid 20ms", []byte{toc(15, 0)}, 20 * time.Millisecond},
		{"celt 2.5ms", []byte{toc(16, 0)}, 2500 * time.Microsecond},
		{"celt 20ms", []byte{toc(31, 0)}, 20 * time.Millisecond},
		{"two equal frames", []byte{toc(1, 1)}, 40 * time.Millisecond},
		{"two sized frames", []byte{toc(31, 2)}, 40 * time.Millisecond},
		{"code 3 with 6 frames", []byte{toc(31, 3), 6}, 120 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OpusPacketDuration(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpusPacketDurationInvalid(t *testing.T) {
	for name, packet := range map[string][]byte{
		"empty":         nil,
		"no count byte": {toc(31, 3)},
		"zero frames":   {toc(31, 3), 0},
		"over 120ms":    {toc(31, 3), 7},
		"three 60ms":    {toc(11, 3), 3},
	} {
		_, err := OpusPacketDuration(packet)
		assert.ErrorIs(t, err, ErrDecode, name)
	}
}

func TestOpusDecoderRejectsGarbage(t *testing.T) {
	d := NewOpusDecoder()
	_, err := d.Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestL16Decoder(t *testing.T) {
	d := NewL16Decoder()
	in := []byte{1, 2, 3, 4}
	out, err := d.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	in[0] = 9
	assert.Equal(t, byte(1), out[0], "output does not alias the frame")

	_, err = d.Decode([]byte{1})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDownmix(t *testing.T) {
	// interleaved stereo; the right channel (8, 10) is dropped
	var in []byte
	for _, v := range []uint16{7, 8, 9, 10} {
		in = binary.LittleEndian.AppendUint16(in, v)
	}

	out := downmix(in, 2, 2)

	require.Len(t, out, 2*bytesPerSample)
	assert.Equal(t, uint16(7), binary.LittleEndian.Uint16(out))
	assert.Equal(t, uint16(9), binary.LittleEndian.Uint16(out[2:]))

	mono := downmix(in, 2, 1)
	assert.Equal(t, in[:4], mono)
	in[0] = 0
	assert.Equal(t, byte(7), mono[0], "output does not alias the input")
}

// Real packets from testdata/tiny.ogg decode to exactly what the library
// produces at 48kHz, one packet duration at a time.
func TestOpusDecoderMatchesLibrary(t *testing.T) {
	data, err := os.ReadFile("testdata/tiny.ogg")
	require.NoError(t, err)
	ogg, _, err := oggreader.NewWith(bytes.NewReader(data))
	require.NoError(t, err)

	ours := NewOpusDecoder()
	ref := opus.NewDecoder()
	want := make([]byte, pcmBytes(120*time.Millisecond)*2)

	decoded := 0
	for {
		segments, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if len(segments) == 0 || bytes.HasPrefix(segments[0], []byte("OpusTags")) {
			continue
		}

		for _, packet := range segments {
			dur, err := OpusPacketDuration(packet)
			require.NoError(t, err)

			clear(want)
			_, stereo, refErr := ref.Decode(packet, want)
			got, err := ours.Decode(packet)
			if refErr != nil {
				assert.ErrorIs(t, err, ErrDecode)
				continue
			}
			require.NoError(t, err)
			require.False(t, stereo, "tiny.ogg is mono")

			require.Len(t, got, pcmBytes(dur), "packet %d", decoded)
			assert.Equal(t, want[:len(got)], got, "packet %d", decoded)
			assert.Equal(t, dur, PCMDuration(len(got)))
			decoded++
		}
	}
	assert.Positive(t, decoded)
}

func TestPCMDuration(t *testing.T) {
	assert.Equal(t, time.Second, PCMDuration(bytesPerSecond))
	assert.Equal(t, 20*time.Millisecond, PCMDuration(pcmBytes(20*time.Millisecond)))
}
