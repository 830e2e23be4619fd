package compression

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompress(t *testing.T) {
	compressible := bytes.Repeat([]byte("cloudforge-"), 4096)

	random := make([]byte, 4096)
	rand.New(rand.NewSource(42)).Read(random)

	tests := []struct {
		name string
		typ  Type
		data []byte
		raw  bool
	}{
		{"None", None, compressible, true},
		{"LZ4", LZ4, compressible, false},
		{"ZSTD", ZSTD, compressible, false},
		{"LZ4Incompressible", LZ4, random, true},
		{"ZSTDIncompressible", ZSTD, random, true},
		{"Empty", ZSTD, []byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Compress(tt.data, tt.typ)
			require.NoError(t, err)

			if tt.raw {
				assert.Equal(t, byte(None), frame[0])
				assert.Len(t, frame, headerSize+len(tt.data))
			} else {
				assert.Less(t, len(frame), len(tt.data))
			}

			out, err := Decompress(frame)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.data, out))
		})
	}
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	frame, err := Compress(bytes.Repeat([]byte("a"), 1024), ZSTD)
	require.NoError(t, err)

	_, err = Decompress(frame[:len(frame)-3])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := ParseType("brotli")
	assert.Error(t, err)
}
