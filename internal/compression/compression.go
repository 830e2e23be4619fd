// Package compression frames byte blocks compressed with LZ4 or ZSTD.
//
// Frame format: [Type uint8][UncompressedSize uint32][CompressedSize uint32][Data...]
// CompressedSize == 0 means Data is stored raw.
package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type is the compression algorithm of a frame.
type Type uint8

const (
	// None stores data raw.
	None Type = 0
	// LZ4 is fast block compression.
	LZ4 Type = 1
	// ZSTD trades speed for ratio.
	ZSTD Type = 2
)

const headerSize = 9

var (
	// ErrCorrupt is returned for frames that cannot be decoded.
	ErrCorrupt = errors.New("corrupt compressed frame")

	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd".
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress frames data with the given algorithm. Data that does not shrink
// below 90% of its size is stored raw.
func Compress(data []byte, t Type) ([]byte, error) {
	var compressed []byte

	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression type %d", t)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		t, compressed = None, nil
	}

	payload := data
	if t != None {
		payload = compressed
	}

	out := make([]byte, headerSize+len(payload))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
	copy(out[headerSize:], payload)

	return out, nil
}

// Decompress decodes a frame produced by Compress.
func Decompress(frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	t := Type(frame[0])
	size := binary.LittleEndian.Uint32(frame[1:])
	csize := binary.LittleEndian.Uint32(frame[5:])
	body := frame[headerSize:]

	if csize == 0 {
		if uint32(len(body)) < size {
			return nil, fmt.Errorf("%w: truncated raw block", ErrCorrupt)
		}
		return body[:size], nil
	}

	if uint32(len(body)) < csize {
		return nil, fmt.Errorf("%w: truncated block", ErrCorrupt)
	}
	body = body[:csize]
	out := make([]byte, size)

	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrCorrupt, t)
	}
}
