package embed

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/internal/compression"
	"github.com/Silversoul-07/cloudforge/modelcache"
)

// AestheticLayout is the layer widths of the aesthetic regressor.
var AestheticLayout = []int{768, 1024, 128, 64, 16, 1}

var mlpMagic = [4]byte{'A', 'M', 'L', 'P'}

const mlpVersion = 1

// Layer is a dense layer: out = W·in + B, with W stored row-major (Out×In).
type Layer struct {
	In, Out int
	W       []float32
	B       []float32
}

// MLP is a stack of dense layers without activations. Dropout layers of the
// trained network are identity at inference time and are not represented.
type MLP struct {
	Layers []Layer
}

// NewMLP allocates zeroed layers for the given widths.
func NewMLP(widths ...int) *MLP {
	m := &MLP{}
	for i := 0; i+1 < len(widths); i++ {
		in, out := widths[i], widths[i+1]
		m.Layers = append(m.Layers, Layer{
			In:  in,
			Out: out,
			W:   make([]float32, in*out),
			B:   make([]float32, out),
		})
	}
	return m
}

// InputSize returns the width of the first layer.
func (m *MLP) InputSize() int {
	if len(m.Layers) == 0 {
		return 0
	}
	return m.Layers[0].In
}

// Validate checks that layer widths chain and buffers match.
func (m *MLP) Validate() error {
	if len(m.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidWeights)
	}
	for i, l := range m.Layers {
		if l.In <= 0 || l.Out <= 0 || len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return fmt.Errorf("%w: layer %d has inconsistent shape", ErrInvalidWeights, i)
		}
		if i > 0 && m.Layers[i-1].Out != l.In {
			return fmt.Errorf("%w: layer %d input %d does not match previous output %d",
				ErrInvalidWeights, i, l.In, m.Layers[i-1].Out)
		}
	}
	if m.Layers[len(m.Layers)-1].Out != 1 {
		return fmt.Errorf("%w: regressor must end in a single output", ErrInvalidWeights)
	}
	return nil
}

// Forward evaluates the network on x and returns the scalar output.
func (m *MLP) Forward(x []float32) (float32, error) {
	if len(x) != m.InputSize() {
		return 0, fmt.Errorf("mlp input has %d values, want %d", len(x), m.InputSize())
	}

	cur := x
	for _, l := range m.Layers {
		next := make([]float32, l.Out)
		for o := 0; o < l.Out; o++ {
			next[o] = l.B[o] + distance.Dot(l.W[o*l.In:(o+1)*l.In], cur)
		}
		cur = next
	}

	return cur[0], nil
}

// SizeBytes returns the memory held by the weights.
func (m *MLP) SizeBytes() int64 {
	var n int64
	for _, l := range m.Layers {
		n += int64(len(l.W)+len(l.B)) * 4
	}
	return n
}

// EncodeMLP serializes m as a ZSTD-framed little-endian blob:
//
//	magic "AMLP" | version u16 | layers u16 | per layer: in u32, out u32, W f32*, B f32*
func EncodeMLP(m *MLP) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(mlpMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint16(mlpVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(m.Layers)))
	for _, l := range m.Layers {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(l.In))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(l.Out))
		_ = binary.Write(&buf, binary.LittleEndian, l.W)
		_ = binary.Write(&buf, binary.LittleEndian, l.B)
	}

	return compression.Compress(buf.Bytes(), compression.ZSTD)
}

// DecodeMLP parses a blob written by EncodeMLP.
func DecodeMLP(blob []byte) (*MLP, error) {
	raw, err := compression.Decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}

	r := bytes.NewReader(raw)

	var magic [4]byte
	var version, layers uint16
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != mlpMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidWeights)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != mlpVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidWeights, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &layers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}

	m := &MLP{Layers: make([]Layer, 0, layers)}
	for i := 0; i < int(layers); i++ {
		var in, out uint32
		if err := binary.Read(r, binary.LittleEndian, &in); err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrInvalidWeights, i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &out); err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrInvalidWeights, i, err)
		}
		if uint64(in)*uint64(out)*4 > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: layer %d truncated", ErrInvalidWeights, i)
		}

		l := Layer{
			In:  int(in),
			Out: int(out),
			W:   make([]float32, int(in)*int(out)),
			B:   make([]float32, out),
		}
		if err := binary.Read(r, binary.LittleEndian, l.W); err != nil {
			return nil, fmt.Errorf("%w: layer %d weights: %v", ErrInvalidWeights, i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, l.B); err != nil {
			return nil, fmt.Errorf("%w: layer %d bias: %v", ErrInvalidWeights, i, err)
		}
		m.Layers = append(m.Layers, l)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// AestheticScorer predicts an unbounded aesthetic score from an image's CLIP
// embedding.
type AestheticScorer struct {
	mlp        *MLP
	manager    *modelcache.Manager
	clipLoader modelcache.Loader
}

// Predict embeds img with the cached CLIP model and runs the regressor.
// Model load failures are returned as is; inference problems are wrapped in
// ErrEmbeddingFailure.
func (s *AestheticScorer) Predict(ctx context.Context, img *imaging.Image) (float32, error) {
	clip, lease, err := modelcache.Acquire[*EmbeddingModel](ctx, s.manager, KindCLIP.String(), s.clipLoader)
	if err != nil {
		return 0, err
	}
	defer lease.Release()

	vec, err := clip.EmbedImage(ctx, img)
	if err != nil {
		return 0, err
	}

	score, err := s.mlp.Forward(vec)
	if err != nil {
		return 0, embeddingFailure(KindAesthetic.String(), err)
	}
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return 0, embeddingFailure(KindAesthetic.String(), fmt.Errorf("non-finite score"))
	}

	return score, nil
}

// SizeBytes implements modelcache.Sizer.
func (s *AestheticScorer) SizeBytes() int64 { return s.mlp.SizeBytes() }

// Close implements modelcache.Model.
func (s *AestheticScorer) Close() error { return nil }
