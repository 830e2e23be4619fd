package embed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/resource"
)

// DefaultTagImageSize is the square input resolution of the tag network.
const DefaultTagImageSize = 448

var (
	tagMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	tagStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// TagScore is a tag with its probability.
type TagScore struct {
	Tag         string  `json:"tag"`
	Probability float32 `json:"probability"`
}

// Tagger is the multi-label tag model.
type Tagger struct {
	runtimeModel string
	imageSize    int
	vocab        []string
	runtime      inference.Runtime
	resources    *resource.Controller
}

// ParseVocabulary reads one tag per line, skipping blank lines.
func ParseVocabulary(data []byte) ([]string, error) {
	var vocab []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if tag := strings.TrimSpace(sc.Text()); tag != "" {
			vocab = append(vocab, tag)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty tag vocabulary", ErrInvalidWeights)
	}

	return vocab, nil
}

// Vocabulary returns the tag names in model output order.
func (t *Tagger) Vocabulary() []string { return t.vocab }

// Tag returns the first limit vocabulary entries with their probabilities,
// in vocabulary order. A limit <= 0 or beyond the vocabulary returns all tags.
func (t *Tagger) Tag(ctx context.Context, img *imaging.Image, limit int) ([]TagScore, error) {
	input := Preprocess(img.Image(), t.imageSize)
	shape := []int{1, 3, t.imageSize, t.imageSize}

	var logits []float32
	err := t.resources.Do(ctx, func() error {
		var err error
		logits, err = t.runtime.Infer(ctx, t.runtimeModel, input, shape)
		return err
	})
	if err != nil {
		return nil, embeddingFailure(KindTagger.String(), err)
	}
	if len(logits) != len(t.vocab) {
		return nil, embeddingFailure(KindTagger.String(),
			fmt.Errorf("runtime returned %d logits for %d tags", len(logits), len(t.vocab)))
	}

	if limit <= 0 || limit > len(t.vocab) {
		limit = len(t.vocab)
	}

	out := make([]TagScore, limit)
	for i := 0; i < limit; i++ {
		out[i] = TagScore{Tag: t.vocab[i], Probability: sigmoid(logits[i])}
	}

	return out, nil
}

// Preprocess pads src to a white square, resizes it to size×size and returns
// the CHW tensor normalized by the per-channel mean and std.
func Preprocess(src image.Image, size int) []float32 {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	img := imaging.Resize(imaging.PadSquare(src, white), size)

	plane := size * size
	out := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := img.RGBAAt(x, y)
			i := y*size + x
			out[i] = (float32(px.R)/255 - tagMean[0]) / tagStd[0]
			out[plane+i] = (float32(px.G)/255 - tagMean[1]) / tagStd[1]
			out[2*plane+i] = (float32(px.B)/255 - tagMean[2]) / tagStd[2]
		}
	}

	return out
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// SizeBytes approximates the vocabulary footprint.
func (t *Tagger) SizeBytes() int64 {
	var n int64
	for _, v := range t.vocab {
		n += int64(len(v)) + 16
	}
	return n
}

// Close implements modelcache.Model.
func (t *Tagger) Close() error { return nil }
