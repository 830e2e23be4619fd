package durable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Silversoul-07/cloudforge/internal/compression"
)

// Segment format (before compression framing):
//
//	magic "CFSG" | version u16 | dim u32 | rows u32
//	rows × (idLen u16 | id bytes)
//	rows × dim × f32 (little endian)
var segmentMagic = [4]byte{'C', 'F', 'S', 'G'}

const segmentVersion = 1

// ErrCorruptSegment is returned for undecodable segment blobs.
var ErrCorruptSegment = errors.New("corrupt index segment")

type entry struct {
	id  string
	vec []float32
}

func encodeSegment(dim int, entries []entry, ct compression.Type) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(segmentMagic[:])

	var hdr [10]byte
	binary.LittleEndian.PutUint16(hdr[0:], segmentVersion)
	binary.LittleEndian.PutUint32(hdr[2:], uint32(dim))
	binary.LittleEndian.PutUint32(hdr[6:], uint32(len(entries)))
	buf.Write(hdr[:])

	var l [2]byte
	for _, e := range entries {
		if len(e.id) > math.MaxUint16 {
			return nil, fmt.Errorf("identifier too long: %d bytes", len(e.id))
		}
		binary.LittleEndian.PutUint16(l[:], uint16(len(e.id)))
		buf.Write(l[:])
		buf.WriteString(e.id)
	}

	var f [4]byte
	for _, e := range entries {
		for _, v := range e.vec {
			binary.LittleEndian.PutUint32(f[:], math.Float32bits(v))
			buf.Write(f[:])
		}
	}

	return compression.Compress(buf.Bytes(), ct)
}

func decodeSegment(blob []byte, dim int) ([]entry, error) {
	raw, err := compression.Decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSegment, err)
	}

	if len(raw) < 14 || !bytes.Equal(raw[:4], segmentMagic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptSegment)
	}
	if v := binary.LittleEndian.Uint16(raw[4:]); v != segmentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSegment, v)
	}
	if d := int(binary.LittleEndian.Uint32(raw[6:])); d != dim {
		return nil, fmt.Errorf("%w: dimension %d, index has %d", ErrCorruptSegment, d, dim)
	}
	rows := int(binary.LittleEndian.Uint32(raw[10:]))

	p := raw[14:]
	// Every row needs at least its id length and its vector.
	if int64(rows)*(2+int64(dim)*4) > int64(len(p)) {
		return nil, fmt.Errorf("%w: %d rows do not fit in %d bytes", ErrCorruptSegment, rows, len(p))
	}

	entries := make([]entry, rows)
	for i := range entries {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: truncated ids", ErrCorruptSegment)
		}
		n := int(binary.LittleEndian.Uint16(p))
		p = p[2:]
		if len(p) < n {
			return nil, fmt.Errorf("%w: truncated ids", ErrCorruptSegment)
		}
		entries[i].id = string(p[:n])
		p = p[n:]
	}

	if len(p) != rows*dim*4 {
		return nil, fmt.Errorf("%w: vector block has %d bytes, want %d", ErrCorruptSegment, len(p), rows*dim*4)
	}

	vectors := make([]float32, rows*dim)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	for i := range entries {
		entries[i].vec = vectors[i*dim : (i+1)*dim]
	}

	return entries, nil
}
