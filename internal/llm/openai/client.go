package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"resume-revamp/internal/llm"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
)

const provider = "openai"

// Endpoints are vars so tests can point them at httptest servers.
var (
	apiURL       = "https://api.openai.com/v1/chat/completions"
	embeddingURL = "https://api.openai.com/v1/embeddings"
)

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeoutFromEnv()},
	}, nil
}

func timeoutFromEnv() time.Duration {
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return timeout
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type tokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *tokenUsage `json:"usage,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

// errTemperatureUnsupported marks models that reject a non-default temperature.
var errTemperatureUnsupported = errors.New("temperature unsupported")

// Complete sends one chat completion. Models that reject the requested
// temperature are retried once with the provider default.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{Model: c.model, Messages: messages}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	if !isGPT5(c.model) {
		temp := req.Temperature
		body.Temperature = &temp
	}

	promptHash := hashPromptString(promptString(messages))
	content, usage, err := c.send(ctx, body)
	if errors.Is(err, errTemperatureUnsupported) && body.Temperature != nil {
		body.Temperature = nil
		content, usage, err = c.send(ctx, body)
	}
	if err != nil {
		metrics.IncLLMCall(provider, req.Purpose, "error")
		return "", err
	}
	metrics.IncLLMCall(provider, req.Purpose, "ok")
	logUsage(c.model, req.Purpose, promptHash, usage)
	return content, nil
}

func (c *Client) send(ctx context.Context, body chatRequest) (string, *tokenUsage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", nil, err
	}
	raw, status, err := c.post(ctx, apiURL, payload)
	if err != nil {
		return "", nil, err
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	apiErr := parsed.Error
	if apiErr != nil && isTemperatureError(apiErr.Message) {
		return "", nil, fmt.Errorf("openai error: %s: %w", apiErr.Message, errTemperatureUnsupported)
	}
	switch {
	case status >= 400 && apiErr != nil:
		return "", nil, &llm.StatusError{Provider: provider, Status: status, Message: apiErr.Message + " (" + apiErr.Type + ")"}
	case status >= 400:
		return "", nil, &llm.StatusError{Provider: provider, Status: status, Message: strings.TrimSpace(string(raw))}
	case decodeErr != nil:
		return "", nil, fmt.Errorf("openai response parse: %w", decodeErr)
	case apiErr != nil:
		return "", nil, fmt.Errorf("openai error: %s (%s)", apiErr.Message, apiErr.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", nil, fmt.Errorf("openai response empty content")
	}
	return content, parsed.Usage, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, 0, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func isTemperatureError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "temperature") && (strings.Contains(msg, "unsupported") || strings.Contains(msg, "does not support"))
}

func logUsage(model, purpose, promptHash string, usage *tokenUsage) {
	fields := map[string]any{
		"provider":    provider,
		"model":       model,
		"purpose":     purpose,
		"prompt_hash": promptHash,
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
		fields["total_tokens"] = usage.TotalTokens
		metrics.AddLLMTokens(provider, usage.PromptTokens, usage.CompletionTokens)
	}
	telemetry.Info("llm.response", fields)
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

func promptString(messages []chatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func hashPromptString(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

var _ llm.Client = (*Client)(nil)
