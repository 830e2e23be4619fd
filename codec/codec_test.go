package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsInterchangeable(t *testing.T) {
	type embedding struct {
		Model  string    `json:"model"`
		Vector []float32 `json:"embedding"`
	}
	in := embedding{Model: "clip", Vector: []float32{0.25, -0.5}}

	for _, pair := range [][2]Codec{{GoJSON{}, Std{}}, {Std{}, GoJSON{}}} {
		enc, dec := pair[0], pair[1]
		t.Run(enc.Name()+"->"+dec.Name(), func(t *testing.T) {
			data, err := enc.Marshal(in)
			require.NoError(t, err)

			var out embedding
			require.NoError(t, dec.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "go-json", Default.Name())
}
