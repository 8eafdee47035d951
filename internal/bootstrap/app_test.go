package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/delivery"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/shared/config"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:           "dev",
		LocalStoreDir: t.TempDir(),
		LLMProvider:   "openai",
		RetrievalMode: "lexical",
		UsageLimit:    3,
		SMTPHost:      "smtp.gmail.com",
		SMTPPort:      587,
	}
}

func TestBuildDevFallsBackToMemoryBackends(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.DB != nil {
		t.Fatalf("expected no database without DATABASE_URL")
	}
	if _, ok := app.RewritesRepo.(*rewrites.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.RewritesRepo)
	}
	if _, ok := app.LLM.(llm.PlaceholderClient); !ok {
		t.Fatalf("expected placeholder LLM without an API key, got %T", app.LLM)
	}
	if _, ok := app.Retriever.(*retrieval.LexicalRetriever); !ok {
		t.Fatalf("expected lexical retriever, got %T", app.Retriever)
	}
	if app.Deliverer != nil {
		t.Fatalf("expected email delivery disabled without SMTP credentials")
	}
	if app.RewriteService.Delivery != nil {
		t.Fatalf("expected no dispatcher without queue or mailer")
	}
}

func TestBuildWiresInlineDeliveryWithMailer(t *testing.T) {
	cfg := devConfig(t)
	cfg.SMTPEmail = "bot@example.com"
	cfg.SMTPPassword = "app-password"

	app, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Deliverer == nil {
		t.Fatalf("expected a deliverer")
	}
	if _, ok := app.RewriteService.Delivery.(delivery.Inline); !ok {
		t.Fatalf("expected inline dispatcher, got %T", app.RewriteService.Delivery)
	}
}

func TestBuildRejectsMissingDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL in production")
	}
}

func TestBuildRejectsUnknownPromptVersion(t *testing.T) {
	cfg := devConfig(t)
	cfg.PromptVersion = "v9"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for unknown prompt version")
	}
}

func TestBuiltRouterServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK {
		t.Fatalf("expected ok=true")
	}
}
