// Package gemini adapts the Google GenAI SDK to the llm interfaces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"resume-revamp/internal/llm"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
)

const (
	provider              = "gemini"
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
)

// models is the subset of *genai.Models the client uses.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client implements llm.Client and llm.Embedder on the Gemini API backend.
type Client struct {
	models         models
	model          string
	embeddingModel string
}

// NewClient creates a Gemini client. Empty model names select the defaults.
func NewClient(ctx context.Context, apiKey, model, embeddingModel string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, model, embeddingModel), nil
}

func newClient(m models, model, embeddingModel string) *Client {
	if model = strings.TrimSpace(model); model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultModel
	}
	if embeddingModel = strings.TrimSpace(embeddingModel); embeddingModel == "" || strings.HasPrefix(embeddingModel, "text-embedding-3") {
		embeddingModel = defaultEmbeddingModel
	}
	return &Client{models: m, model: model, embeddingModel: embeddingModel}
}

// Complete sends the prompt and returns the concatenated text parts of the response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(req.Temperature)}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if system := strings.TrimSpace(req.System); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		metrics.IncLLMCall(provider, req.Purpose, "error")
		return "", wrapError("generate content", err)
	}

	output := responseText(resp)
	if output == "" {
		metrics.IncLLMCall(provider, req.Purpose, "error")
		return "", errors.New("gemini api returned empty response")
	}
	metrics.IncLLMCall(provider, req.Purpose, "ok")
	logUsage(c.model, req.Purpose, resp.UsageMetadata)
	return output, nil
}

// Embed returns one vector per text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := c.models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, wrapError("embed content", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini embeddings: missing vector %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// wrapError renders API errors with an http status so llm.ShouldRetry can classify them.
func wrapError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status := &llm.StatusError{Provider: "gemini", Status: apiErr.Code, Message: apiErr.Message}
		return fmt.Errorf("gemini %s: %w: %w", op, status, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini request timeout: %w", err)
	}
	return fmt.Errorf("gemini %s: %w", op, err)
}

func logUsage(model, purpose string, usage *genai.GenerateContentResponseUsageMetadata) {
	fields := map[string]any{
		"provider": provider,
		"model":    model,
		"purpose":  purpose,
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokenCount
		fields["completion_tokens"] = usage.CandidatesTokenCount
		fields["total_tokens"] = usage.TotalTokenCount
		metrics.AddLLMTokens(provider, int(usage.PromptTokenCount), int(usage.CandidatesTokenCount))
	}
	telemetry.Info("llm.response", fields)
}

var (
	_ llm.Client   = (*Client)(nil)
	_ llm.Embedder = (*Client)(nil)
)
