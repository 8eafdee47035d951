package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resume-revamp/internal/llm"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder implements llm.Embedder using the OpenAI embeddings endpoint.
type Embedder struct {
	*Client
}

// NewEmbedder constructs an embedder. An empty model selects DefaultEmbeddingModel.
func NewEmbedder(apiKey, model string) (*Embedder, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultEmbeddingModel
	}
	c, err := NewClient(apiKey, model)
	if err != nil {
		return nil, err
	}
	return &Embedder{Client: c}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage *tokenUsage `json:"usage,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	raw, status, err := e.post(ctx, embeddingURL, payload)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if parsed.Error != nil {
		return nil, &llm.StatusError{Provider: provider, Status: status, Message: parsed.Error.Message + " (" + parsed.Error.Type + ")"}
	}
	if status >= 400 {
		return nil, &llm.StatusError{Provider: provider, Status: status, Message: strings.TrimSpace(string(raw))}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("openai embeddings parse: %w", decodeErr)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	if parsed.Usage != nil {
		logUsage(e.model, "embedding", "", parsed.Usage)
	}
	return out, nil
}

var _ llm.Embedder = (*Embedder)(nil)
