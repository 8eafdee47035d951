package llm

import (
	"context"
	"errors"
)

// Client abstracts LLM providers that complete a single prompt.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into embedding vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	// JSON asks the provider for a JSON object response.
	JSON bool
	// Temperature is ignored by models that only accept their default.
	Temperature float32
	// Purpose labels the call in logs and metrics (rewrite, cover_letter, fix_json).
	Purpose string
}

// ErrNotConfigured is returned by the placeholder client when no provider is set up.
var ErrNotConfigured = errors.New("llm provider not configured")

// PlaceholderClient stands in when no provider credentials are present.
type PlaceholderClient struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderClient) Complete(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

// Embed returns ErrNotConfigured.
func (PlaceholderClient) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ErrNotConfigured
}

var (
	_ Client   = PlaceholderClient{}
	_ Embedder = PlaceholderClient{}
)
