// Package codec selects the JSON implementation used for inference requests,
// index manifests and the color corpus.
package codec

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// Codec marshals values. Implementations are safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default decodes embedding responses, which carry up to a few thousand
// floats per call, with go-json.
var Default Codec = GoJSON{}

// GoJSON uses github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (GoJSON) Name() string                       { return "go-json" }

// Std uses encoding/json.
type Std struct{}

func (Std) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (Std) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Std) Name() string                       { return "json" }
