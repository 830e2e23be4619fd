package inference

// POST /api/embed/image
type embedImageRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64
}

// POST /api/embed/text
type embedTextRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension,omitempty"`
}

// POST /api/infer
type inferRequest struct {
	Model string    `json:"model"`
	Input []float32 `json:"input"`
	Shape []int     `json:"shape"`
}

type inferResponse struct {
	Output []float32 `json:"output"`
	Shape  []int     `json:"shape,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
