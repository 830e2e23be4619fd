package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/Silversoul-07/cloudforge/inference"
)

// FakeRuntime is a scripted, deterministic inference.Runtime.
//
// Embeddings are derived from a hash of the input, so identical inputs map to
// identical (unnormalized) vectors. Individual results and failures can be
// overridden per model.
type FakeRuntime struct {
	mu sync.Mutex

	models    map[string]inference.Info
	images    map[string][]float32 // model + "\x00" + bytes
	texts     map[string][]float32 // model + "\x00" + text
	logits    map[string][]float32
	failures  map[string]error // model + "\x00" + method
	calls     map[string]int   // method
	lastShape []int
}

var _ inference.Runtime = (*FakeRuntime)(nil)

// NewFakeRuntime creates an empty runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		models:   make(map[string]inference.Info),
		images:   make(map[string][]float32),
		texts:    make(map[string][]float32),
		logits:   make(map[string][]float32),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddModel registers a served model.
func (f *FakeRuntime) AddModel(info inference.Info) *FakeRuntime {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[info.Name] = info
	return f
}

// SetImageEmbedding pins the raw embedding returned for an image.
func (f *FakeRuntime) SetImageEmbedding(model string, image []byte, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[model+"\x00"+string(image)] = vec
}

// SetTextEmbedding pins the raw embedding returned for a text.
func (f *FakeRuntime) SetTextEmbedding(model, text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[model+"\x00"+text] = vec
}

// SetLogits sets the output of Infer for a model.
func (f *FakeRuntime) SetLogits(model string, logits []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logits[model] = logits
}

// Fail makes method ("Info", "EmbedImage", "EmbedText", "Infer") fail for a
// model. A nil err clears the failure.
func (f *FakeRuntime) Fail(model, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, model+"\x00"+method)
		return
	}
	f.failures[model+"\x00"+method] = err
}

// Calls returns how often method was invoked.
func (f *FakeRuntime) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// LastShape returns the tensor shape of the last Infer call.
func (f *FakeRuntime) LastShape() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastShape
}

func (f *FakeRuntime) enter(model, method string) (inference.Info, error) {
	f.calls[method]++

	if err := f.failures[model+"\x00"+method]; err != nil {
		return inference.Info{}, err
	}

	info, ok := f.models[model]
	if !ok {
		return inference.Info{}, &inference.APIError{StatusCode: 404, Message: fmt.Sprintf("model %q not found", model)}
	}

	return info, nil
}

// Info implements inference.Runtime.
func (f *FakeRuntime) Info(_ context.Context, model string) (inference.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter(model, "Info")
}

// EmbedImage implements inference.Runtime.
func (f *FakeRuntime) EmbedImage(ctx context.Context, model string, image []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.enter(model, "EmbedImage")
	if err != nil {
		return nil, err
	}
	if vec, ok := f.images[model+"\x00"+string(image)]; ok {
		return append([]float32(nil), vec...), nil
	}

	return hashVector(model, "image", image, info.Dimension), nil
}

// EmbedText implements inference.Runtime.
func (f *FakeRuntime) EmbedText(ctx context.Context, model string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.enter(model, "EmbedText")
	if err != nil {
		return nil, err
	}
	if !info.Supports(inference.ModalityText) {
		return nil, &inference.APIError{StatusCode: 400, Message: "model has no text encoder"}
	}
	if vec, ok := f.texts[model+"\x00"+text]; ok {
		return append([]float32(nil), vec...), nil
	}

	return hashVector(model, "text", []byte(text), info.Dimension), nil
}

// Infer implements inference.Runtime.
func (f *FakeRuntime) Infer(ctx context.Context, model string, input []float32, shape []int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter(model, "Infer"); err != nil {
		return nil, err
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(input) {
		return nil, &inference.APIError{StatusCode: 400, Message: fmt.Sprintf("shape %v does not match %d values", shape, len(input))}
	}

	f.lastShape = append([]int(nil), shape...)

	return append([]float32(nil), f.logits[model]...), nil
}

// hashVector derives a deterministic, unnormalized vector from data.
func hashVector(model, modality string, data []byte, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte(modality))
	_, _ = h.Write(data)

	r := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(r.NormFloat64()) * 3
	}

	return vec
}
