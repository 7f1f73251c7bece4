package codec_test

import (
	"encoding/binary"
	"testing"

	"github.com/moleculax/tileengine/codec"
	"github.com/stretchr/testify/require"
)

func sampleInt32s(n int) []byte {
	buf := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(i%7))
	}
	return buf
}

func TestRoundTripAllCodecs(t *testing.T) {
	data := sampleInt32s(1000)
	ids := []codec.CodecID{codec.None, codec.Gzip, codec.Zstd, codec.LZ4, codec.Blosc, codec.RLE}
	for _, id := range ids {
		id := id
		t.Run(id.String(), func(t *testing.T) {
			framed, err := codec.Frame(id, data, 3)
			require.NoError(t, err)
			out, err := codec.Unframe(framed)
			require.NoError(t, err)
			require.Equal(t, data, out)
		})
	}
}

func TestRLEWithElementWidth(t *testing.T) {
	data := sampleInt32s(500)
	framed, err := codec.FrameWith(codec.NewRLE(4), data, 0)
	require.NoError(t, err)
	out, err := codec.Unframe(framed)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestUnframeRejectsShortFrame(t *testing.T) {
	_, err := codec.Unframe([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestUnframeRejectsUnknownCodec(t *testing.T) {
	framed, err := codec.Frame(codec.None, []byte("hello"), 0)
	require.NoError(t, err)
	framed[16] = 0xFF
	_, err = codec.Unframe(framed)
	require.Error(t, err)
}
