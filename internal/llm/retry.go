package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"resume-revamp/internal/shared/telemetry"
)

// retryBaseDelay is a var so tests can shorten it.
var retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base Client
}

// WithRetry wraps a client with a single retry on transient provider errors.
func WithRetry(base Client) Client {
	if base == nil {
		return nil
	}
	return &retryingClient{base: base}
}

func (r *retryingClient) Complete(ctx context.Context, req Request) (string, error) {
	out, err := r.base.Complete(ctx, req)
	if err == nil || !ShouldRetry(err) {
		return out, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt": 1,
		"purpose": req.Purpose,
		"error":   SanitizeError(err),
	})
	select {
	case <-time.After(retryBaseDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.base.Complete(ctx, req)
}

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s http status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s http status %d: %s", e.Provider, e.Status, e.Message)
}

// Temporary reports whether the provider asked us to come back later.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ShouldRetry reports whether err looks transient: timeouts, 5xx responses and
// dropped connections.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "http status 429") || strings.Contains(msg, "rate limit") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "gemini") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	for _, frag := range []string{"connection reset", "connection refused", "connection closed", "broken pipe", "tls handshake timeout", "eof"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// SanitizeError flattens an error for logs and persisted records.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	const maxLen = 500
	if len(msg) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
