package gateway

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"meshnostr/protocol/eventcodec"
)

// Mesh frames are a 5 byte header plus body: one type byte, the original
// body size as a big-endian uint32, then the (possibly compressed) body.
const (
	FrameTypeRelayRequest = 0x7E
	FrameTypePlain        = 0x00
)

const frameHeaderSize = 5

// Codec is the device compression collaborator. Either call may fail, in
// which case the engine falls back to its own deflate/gzip chain.
type Codec interface {
	Compress(data []byte) ([]byte, bool)
	Decompress(data []byte, originalSize int) ([]byte, bool)
}

// EncodeMeshFrame wraps an event's canonical JSON for the bandwidth
// constrained mesh path: the primary codec first, then deflate, then gzip,
// and when nothing shrinks the payload, raw bytes under the plain tag.
func EncodeMeshFrame(body []byte, codec Codec) []byte {
	compressed := tryCompress(body, codec)
	frameType := byte(FrameTypeRelayRequest)
	payload := compressed
	if payload == nil {
		frameType = FrameTypePlain
		payload = body
	}
	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	frame[0] = frameType
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(body)))
	return append(frame, payload...)
}

// DecodeMeshFrame reverses EncodeMeshFrame and returns the event JSON.
func DecodeMeshFrame(frame []byte, codec Codec) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, &eventcodec.InvalidEventShapeError{Reason: "mesh frame shorter than header"}
	}
	originalSize := int(binary.BigEndian.Uint32(frame[1:5]))
	body := frame[frameHeaderSize:]
	switch frame[0] {
	case FrameTypePlain:
		if len(body) != originalSize {
			return nil, &eventcodec.InvalidEventShapeError{Reason: "plain mesh frame size mismatch"}
		}
		return body, nil
	case FrameTypeRelayRequest:
		if decompressed := tryDecompress(body, originalSize, codec); decompressed != nil {
			return decompressed, nil
		}
		return nil, &eventcodec.InvalidEventShapeError{Reason: "mesh frame body does not decompress"}
	}
	return nil, &eventcodec.InvalidEventShapeError{Reason: "unknown mesh frame type"}
}

// tryCompress returns nil when no codec beats the raw size.
func tryCompress(body []byte, codec Codec) []byte {
	if codec != nil {
		if out, ok := codec.Compress(body); ok && len(out) < len(body) {
			return out
		}
	}
	if out, err := deflateBytes(body); err == nil && len(out) < len(body) {
		return out
	}
	if out, err := gzipBytes(body); err == nil && len(out) < len(body) {
		return out
	}
	return nil
}

func tryDecompress(body []byte, originalSize int, codec Codec) []byte {
	if codec != nil {
		if out, ok := codec.Decompress(body, originalSize); ok && len(out) == originalSize {
			return out
		}
	}
	if out, err := inflateBytes(body); err == nil && len(out) == originalSize {
		return out
	}
	if out, err := gunzipBytes(body); err == nil && len(out) == originalSize {
		return out
	}
	return nil
}

func deflateBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflateBytes(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
