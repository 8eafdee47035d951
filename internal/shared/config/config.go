package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"resume-revamp/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string   `koanf:"port"`
	Env             string   `koanf:"env"`
	LogLevel        string   `koanf:"log_level"`
	CORSAllowOrigin []string `koanf:"cors_allow_origins"`
	AuthRequired    bool     `koanf:"auth_required"`
	JWTSecret       string   `koanf:"jwt_secret"`

	DatabaseURL string `koanf:"database_url"`

	ObjectStoreType string `koanf:"object_store"`
	LocalStoreDir   string `koanf:"local_store_dir"`
	AWSRegion       string `koanf:"aws_region"`
	S3Bucket        string `koanf:"s3_bucket"`
	S3Prefix        string `koanf:"s3_prefix"`
	SSEKMSKeyID     string `koanf:"sse_kms_key_id"`
	MinioEndpoint   string `koanf:"minio_endpoint"`
	MinioAccessKey  string `koanf:"minio_access_key"`
	MinioSecretKey  string `koanf:"minio_secret_key"`
	MinioBucket     string `koanf:"minio_bucket"`
	MinioUseSSL     bool   `koanf:"minio_use_ssl"`

	LLMProvider    string `koanf:"llm_provider"`
	LLMModel       string `koanf:"llm_model"`
	OpenAIAPIKey   string `koanf:"openai_api_key"`
	GeminiAPIKey   string `koanf:"gemini_api_key"`
	EmbeddingModel string `koanf:"embedding_model"`
	PromptVersion  string `koanf:"prompt_version"`
	RetrievalMode  string `koanf:"retrieval_mode"`
	RetrievalIndex string `koanf:"retrieval_index"`
	RetrievalTopK  int    `koanf:"retrieval_top_k"`

	RedisURL        string `koanf:"redis_url"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`

	QueueBackend string `koanf:"queue_backend"`
	SQSQueueURL  string `koanf:"sqs_queue_url"`
	AMQPURL      string `koanf:"amqp_url"`
	AMQPQueue    string `koanf:"amqp_queue"`

	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPEmail    string `koanf:"smtp_email"`
	SMTPPassword string `koanf:"smtp_password"`

	PDFConverter string `koanf:"pdf_converter"`
	SofficePath  string `koanf:"soffice_path"`

	UsageLimit       int     `koanf:"usage_limit"`
	RewriteRateLimit float64 `koanf:"rewrite_rate_per_sec"`
	RewriteRateBurst int     `koanf:"rewrite_rate_burst"`
}

// knownKeys lists the environment variables mapped onto Config; anything else is ignored.
var knownKeys = map[string]struct{}{}

func init() {
	for k := range defaults() {
		knownKeys[k] = struct{}{}
	}
}

func defaults() map[string]any {
	return map[string]any{
		"port":                 "8080",
		"env":                  "dev",
		"log_level":            "info",
		"cors_allow_origins":   "*",
		"auth_required":        false,
		"jwt_secret":           "",
		"database_url":         "",
		"object_store":         "local",
		"local_store_dir":      "./data",
		"aws_region":           "",
		"s3_bucket":            "",
		"s3_prefix":            "",
		"sse_kms_key_id":       "",
		"minio_endpoint":       "",
		"minio_access_key":     "",
		"minio_secret_key":     "",
		"minio_bucket":         "resume-revamp",
		"minio_use_ssl":        false,
		"llm_provider":         "openai",
		"llm_model":            "gpt-4o",
		"openai_api_key":       "",
		"gemini_api_key":       "",
		"embedding_model":      "",
		"prompt_version":       "v2_1",
		"retrieval_mode":       "lexical",
		"retrieval_index":      "",
		"retrieval_top_k":      5,
		"redis_url":            "",
		"cache_ttl_seconds":    86400,
		"queue_backend":        "",
		"sqs_queue_url":        "",
		"amqp_url":             "",
		"amqp_queue":           "resume-delivery",
		"smtp_host":            "smtp.gmail.com",
		"smtp_port":            587,
		"smtp_email":           "",
		"smtp_password":        "",
		"pdf_converter":        "none",
		"soffice_path":         "soffice",
		"usage_limit":          10,
		"rewrite_rate_per_sec": 0.2,
		"rewrite_rate_burst":   3,
	}
}

// Load reads configuration from defaults, an optional YAML file, and environment variables.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg, err := load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		telemetry.Error("config.load_failed", map[string]any{"error": err.Error()})
		cfg, _ = load("")
	}
	telemetry.SetLevel(cfg.LogLevel)
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": cfg.Env})
	}
	return cfg
}

func load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}
	envProvider := env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := knownKeys[key]; !ok {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, err
	}

	// Comma separated origins arrive as a single string from env or defaults.
	if raw, ok := k.Get("cors_allow_origins").(string); ok {
		_ = k.Set("cors_allow_origins", splitAndTrim(raw))
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, err
	}
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.QueueBackend = normalizeQueueBackend(cfg.QueueBackend, cfg)
	return cfg, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeQueueBackend(raw string, cfg Config) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "amqp", "rabbitmq":
		return "amqp"
	case "none", "inline":
		return ""
	}
	// Infer from whichever endpoint is configured.
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		return "sqs"
	}
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		return "amqp"
	}
	return ""
}
