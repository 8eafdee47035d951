package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return `{"ok":true}`, nil
}

func shortRetryDelay(t *testing.T) {
	t.Helper()
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = old })
}

func TestWithRetryRetriesTransientOnce(t *testing.T) {
	shortRetryDelay(t)
	base := &scriptedClient{errs: []error{fmt.Errorf("openai http status 502: bad gateway")}}
	out, err := WithRetry(base).Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if out != `{"ok":true}` || base.calls != 2 {
		t.Fatalf("unexpected out=%q calls=%d", out, base.calls)
	}
}

func TestWithRetryStopsAfterSecondFailure(t *testing.T) {
	shortRetryDelay(t)
	transient := errors.New("read: connection reset by peer")
	base := &scriptedClient{errs: []error{transient, transient, transient}}
	if _, err := WithRetry(base).Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", base.calls)
	}
}

func TestWithRetrySkipsPermanentErrors(t *testing.T) {
	base := &scriptedClient{errs: []error{errors.New("openai error: invalid api key (invalid_request_error)")}}
	if _, err := WithRetry(base).Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", base.calls)
	}
}

func TestWithRetryHonoursCancellation(t *testing.T) {
	old := retryBaseDelay
	retryBaseDelay = time.Hour
	t.Cleanup(func() { retryBaseDelay = old })

	ctx, cancel := context.WithCancel(context.Background())
	base := &scriptedClient{errs: []error{context.DeadlineExceeded}}
	go cancel()
	if _, err := WithRetry(base).Complete(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":            {nil, false},
		"deadline":       {fmt.Errorf("wrap: %w", context.DeadlineExceeded), true},
		"canceled":       {context.Canceled, false},
		"not configured": {ErrNotConfigured, false},
		"5xx":            {errors.New("openai http status 503: overloaded"), true},
		"rate limit":     {errors.New("openai http status 429: slow down"), true},
		"gemini timeout": {errors.New("gemini request timeout"), true},
		"eof":            {errors.New("unexpected EOF"), true},
		"bad request":    {errors.New("openai http status 400: bad"), false},
	}
	for name, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("%s: ShouldRetry=%v want %v", name, got, tc.want)
		}
	}
}

func TestSanitizeErrorCollapsesAndTruncates(t *testing.T) {
	if got := SanitizeError(errors.New("line one\n\tline two")); got != "line one line two" {
		t.Fatalf("unexpected sanitized error %q", got)
	}
	long := errors.New(strings.Repeat("é", 400))
	got := SanitizeError(long)
	if len(got) > 500 || !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '�') {
		t.Fatalf("unexpected truncation len=%d", len(got))
	}
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"```\n{\"a\":1}```":               `{"a":1}`,
		"  {\"a\":1}  ":                   `{"a":1}`,
		"Here you go: {\"a\":1} thanks!": `{"a":1}`,
		"no json at all":                  "no json at all",
	}
	for in, want := range cases {
		if got := CleanJSON(in); got != want {
			t.Fatalf("CleanJSON(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPlaceholderClient(t *testing.T) {
	if _, err := (PlaceholderClient{}).Complete(context.Background(), Request{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := (PlaceholderClient{}).Embed(context.Background(), []string{"x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestShouldRetryUsesStatusErrors(t *testing.T) {
	wrapped := fmt.Errorf("complete: %w", &StatusError{Provider: "openai", Status: 429})
	if !ShouldRetry(wrapped) {
		t.Fatalf("429 must be retried")
	}
	if ShouldRetry(&StatusError{Provider: "openai", Status: 401, Message: "invalid api key"}) {
		t.Fatalf("401 must not be retried")
	}
	if got := (&StatusError{Provider: "gemini", Status: 503}).Error(); got != "gemini http status 503" {
		t.Fatalf("unexpected message %q", got)
	}
}
