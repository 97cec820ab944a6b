package gateway

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCodec is the device compressor collaborator: it can be told to fail
// or to "compress" via a lookup table.
type fakeCodec struct {
	failCompress   bool
	failDecompress bool
	compressed     map[string][]byte
	original       map[string][]byte
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		compressed: make(map[string][]byte),
		original:   make(map[string][]byte),
	}
}

func (c *fakeCodec) Compress(data []byte) ([]byte, bool) {
	if c.failCompress {
		return nil, false
	}
	out := []byte("FC")
	c.compressed[string(data)] = out
	c.original[string(out)] = data
	return out, true
}

func (c *fakeCodec) Decompress(data []byte, originalSize int) ([]byte, bool) {
	if c.failDecompress {
		return nil, false
	}
	original, ok := c.original[string(data)]
	if !ok || len(original) != originalSize {
		return nil, false
	}
	return original, true
}

func TestFrameRoundTripWithBuiltInDeflate(t *testing.T) {
	body := []byte(`{"id":"aaaa","content":"the same words repeated repeated repeated repeated repeated"}`)
	frame := EncodeMeshFrame(body, nil)
	require.Equal(t, byte(FrameTypeRelayRequest), frame[0])
	require.Equal(t, uint32(len(body)), binary.BigEndian.Uint32(frame[1:5]))
	require.Less(t, len(frame), len(body)+frameHeaderSize, "compressible payload must shrink")

	back, err := DecodeMeshFrame(frame, nil)
	require.NoError(t, err)
	require.Equal(t, body, back)
}

func TestFrameRoundTripWithPrimaryCodec(t *testing.T) {
	codec := newFakeCodec()
	body := []byte(`{"id":"bbbb","content":"hello"}`)
	frame := EncodeMeshFrame(body, codec)
	require.Equal(t, byte(FrameTypeRelayRequest), frame[0])
	//the two byte fake output wins over deflate
	require.Equal(t, frameHeaderSize+2, len(frame))

	back, err := DecodeMeshFrame(frame, codec)
	require.NoError(t, err)
	require.Equal(t, body, back)
}

func TestFrameFallsBackWhenPrimaryCodecFails(t *testing.T) {
	codec := newFakeCodec()
	codec.failCompress = true
	body := bytes.Repeat([]byte("compressible "), 40)
	frame := EncodeMeshFrame(body, codec)
	require.Equal(t, byte(FrameTypeRelayRequest), frame[0])

	//decode side: primary codec fails too, deflate fallback still works
	codec.failDecompress = true
	back, err := DecodeMeshFrame(frame, codec)
	require.NoError(t, err)
	require.Equal(t, body, back)
}

func TestIncompressiblePayloadGoesPlain(t *testing.T) {
	body := make([]byte, 256)
	_, err := rand.Read(body)
	require.NoError(t, err)
	frame := EncodeMeshFrame(body, nil)
	require.Equal(t, byte(FrameTypePlain), frame[0])
	require.Equal(t, body, frame[frameHeaderSize:])

	back, err := DecodeMeshFrame(frame, nil)
	require.NoError(t, err)
	require.Equal(t, body, back)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	_, err := DecodeMeshFrame([]byte{0x7E, 0, 0}, nil)
	require.Error(t, err)

	//unknown type tag
	bad := EncodeMeshFrame([]byte("payload"), nil)
	bad[0] = 0x55
	_, err = DecodeMeshFrame(bad, nil)
	require.Error(t, err)

	//plain frame whose declared size disagrees with the body
	short := []byte{FrameTypePlain, 0, 0, 0, 99, 'x'}
	_, err = DecodeMeshFrame(short, nil)
	require.Error(t, err)

	//compressed frame with garbage body
	garbage := []byte{FrameTypeRelayRequest, 0, 0, 0, 10, 1, 2, 3}
	_, err = DecodeMeshFrame(garbage, nil)
	require.Error(t, err)
}
