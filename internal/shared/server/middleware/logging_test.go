package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	router := gin.New()
	router.Use(RequestID(), Auth(AuthConfig{}), Logging())
	router.GET("/api/v1/rewrites/:id", func(c *gin.Context) {
		c.Set("rewriteId", c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rewrites/rw-1", nil)
	req.Header.Set("X-Guest-Id", "guest1")
	req.Header.Set("X-Request-Id", "req-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	for _, key := range []string{"request_id", "user_id", "identity_kind", "route", "duration_ms", "status", "rewrite_id"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s in %v", key, payload)
		}
	}
	if payload["msg"] != "request.complete" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["user_id"] != "guest:guest1" || payload["identity_kind"] != IdentityGuest {
		t.Fatalf("unexpected identity: %v %v", payload["user_id"], payload["identity_kind"])
	}
	if payload["route"] != "/api/v1/rewrites/:id" || payload["rewrite_id"] != "rw-1" {
		t.Fatalf("unexpected route fields: %v %v", payload["route"], payload["rewrite_id"])
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "bad id with spaces")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	got := resp.Header().Get("X-Request-Id")
	if got == "" || strings.Contains(got, " ") {
		t.Fatalf("expected generated request id, got %q", got)
	}
}
