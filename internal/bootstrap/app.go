package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/cache"
	"resume-revamp/internal/delivery"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/llm/gemini"
	openai "resume-revamp/internal/llm/openai"
	"resume-revamp/internal/llm/prompts"
	"resume-revamp/internal/packaging"
	"resume-revamp/internal/packaging/pdf"
	"resume-revamp/internal/queue"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/services/health"
	"resume-revamp/internal/shared/auth"
	"resume-revamp/internal/shared/config"
	"resume-revamp/internal/shared/server"
	"resume-revamp/internal/shared/storage/db"
	"resume-revamp/internal/shared/storage/object"
	localstore "resume-revamp/internal/shared/storage/object/local"
	miniostore "resume-revamp/internal/shared/storage/object/minio"
	s3store "resume-revamp/internal/shared/storage/object/s3"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/internal/usage"
)

// App holds shared dependencies.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	DB        *sql.DB
	Store     object.ObjectStore
	Queue     queue.Client
	Cache     cache.Cache
	LLM       llm.Client
	Embedder  llm.Embedder
	Retriever retrieval.Retriever
	Signer    *auth.Signer
	Health    *health.Service

	RewritesRepo   rewrites.Repo
	UsageService   *usage.Service
	RewriteService *rewrites.Service
	// Deliverer is nil when SMTP is not configured.
	Deliverer *delivery.Deliverer

	RewritesHandler *rewrites.Handler
	UsageHandler    *usage.Handler

	closers []func() error
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	app := &App{Config: cfg, Health: health.NewService()}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.Health.Register("database", db.Probe(sqlDB, 2*time.Second))
	}

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err := app.buildQueue(ctx); err != nil {
		return nil, err
	}
	if err := app.buildLLM(ctx); err != nil {
		return nil, err
	}
	app.Retriever = buildRetriever(cfg, app.Embedder)
	app.buildCache(ctx)

	app.Signer, err = auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return nil, err
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   app.Config,
		Signer:   app.Signer,
		Health:   app.Health,
		Rewrites: app.RewritesHandler,
		Usage:    app.UsageHandler,
	})

	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, db.ErrNoDatabaseURL
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch strings.ToLower(cfg.ObjectStoreType) {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.AWSRegion,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func (a *App) buildQueue(ctx context.Context) error {
	switch strings.ToLower(strings.TrimSpace(a.Config.QueueBackend)) {
	case queue.BackendNone:
		return nil
	case queue.BackendSQS:
		client, err := queue.NewSQSClient(ctx, a.Config.AWSRegion, a.Config.SQSQueueURL)
		if err != nil {
			return err
		}
		a.Queue = client
	case queue.BackendAMQP:
		client, err := queue.NewAMQPClient(a.Config.AMQPURL, a.Config.AMQPQueue)
		if err != nil {
			return err
		}
		a.Queue = client
		a.closers = append(a.closers, client.Close)
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q (want sqs or amqp)", a.Config.QueueBackend)
	}
	return nil
}

// buildLLM selects the provider. Missing keys in dev fall back to the
// placeholder so the rest of the service can still be exercised.
func (a *App) buildLLM(ctx context.Context) error {
	cfg := a.Config
	var (
		client   llm.Client
		embedder llm.Embedder
		err      error
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case "openai":
		var c *openai.Client
		if c, err = openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel); err == nil {
			client = c
			embedder, err = openai.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		}
	case "gemini":
		var c *gemini.Client
		if c, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, cfg.EmbeddingModel); err == nil {
			client, embedder = c, c
			a.Config.LLMModel = c.Model()
		}
	case "", "placeholder", "none":
	default:
		err = fmt.Errorf("unknown LLM_PROVIDER %q (want openai or gemini)", cfg.LLMProvider)
	}
	if err != nil {
		if !isDevLike(cfg.Env) {
			return err
		}
		telemetry.Warn("bootstrap.llm_placeholder", map[string]any{"provider": cfg.LLMProvider, "error": err.Error()})
		client, embedder = nil, nil
	}
	if client == nil {
		a.LLM = llm.PlaceholderClient{}
		a.Embedder = llm.PlaceholderClient{}
		return nil
	}
	a.LLM = llm.WithRetry(client)
	a.Embedder = embedder
	return nil
}

func buildRetriever(cfg config.Config, embedder llm.Embedder) retrieval.Retriever {
	mode := strings.ToLower(strings.TrimSpace(cfg.RetrievalMode))
	if mode == "none" {
		return nil
	}
	corpus, err := retrieval.DefaultCorpus()
	if err != nil {
		telemetry.Error("bootstrap.corpus_failed", map[string]any{"error": err.Error()})
		return nil
	}
	lexical := retrieval.NewLexical(corpus)
	if mode != "vector" {
		return lexical
	}

	fields := map[string]any{"index": cfg.RetrievalIndex}
	f, err := os.Open(cfg.RetrievalIndex)
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Warn("bootstrap.vector_index_unavailable", fields)
		return lexical
	}
	defer f.Close()
	idx, err := retrieval.ReadIndex(f)
	if err == nil {
		var vec *retrieval.VectorRetriever
		if vec, err = retrieval.NewVector(corpus, idx, embedder); err == nil {
			return vec
		}
	}
	fields["error"] = err.Error()
	telemetry.Warn("bootstrap.vector_index_unavailable", fields)
	return lexical
}

func (a *App) buildCache(ctx context.Context) {
	if strings.TrimSpace(a.Config.RedisURL) == "" {
		a.Cache = cache.NewMemory()
		return
	}
	r, err := cache.NewRedis(ctx, a.Config.RedisURL)
	if err != nil {
		telemetry.Warn("bootstrap.redis_unavailable", map[string]any{"error": err.Error()})
		a.Cache = cache.NewMemory()
		return
	}
	a.Cache = r
	a.closers = append(a.closers, r.Close)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var rewriteRepo rewrites.Repo
	if app.DB != nil {
		rewriteRepo = &rewrites.PGRepo{DB: app.DB}
		app.UsageService = usage.NewPostgresService(usage.NewPGStore(app.DB, cfg.UsageLimit))
	} else {
		rewriteRepo = rewrites.NewMemoryRepo()
		app.UsageService = usage.NewService(cfg.UsageLimit)
	}
	app.RewritesRepo = rewriteRepo

	mailer, err := delivery.NewMailer(delivery.MailerConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPEmail,
		Password: cfg.SMTPPassword,
	})
	switch {
	case err == nil:
		app.Deliverer = &delivery.Deliverer{Repo: rewriteRepo, Store: app.Store, Sender: mailer}
	case errors.Is(err, delivery.ErrMailerNotConfigured):
		telemetry.Info("bootstrap.email_disabled", map[string]any{"reason": err.Error()})
	default:
		return err
	}

	var dispatcher rewrites.Dispatcher
	switch {
	case app.Queue != nil:
		dispatcher = delivery.Queued{Client: app.Queue}
	case app.Deliverer != nil:
		dispatcher = delivery.Inline{Deliverer: app.Deliverer}
	}

	defaultVersion, err := prompts.ParseVersion(cfg.PromptVersion)
	if err != nil {
		return err
	}

	app.RewriteService = &rewrites.Service{
		Repo:           rewriteRepo,
		Usage:          app.UsageService,
		Store:          app.Store,
		LLM:            app.LLM,
		Retriever:      app.Retriever,
		Cache:          app.Cache,
		CacheTTL:       time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Packager:       packaging.NewBuilder(pdf.New(cfg.PDFConverter, cfg.SofficePath)),
		Delivery:       dispatcher,
		Provider:       cfg.LLMProvider,
		Model:          cfg.LLMModel,
		DefaultVersion: defaultVersion,
		TopK:           cfg.RetrievalTopK,
	}
	app.RewritesHandler = rewrites.NewHandler(app.RewriteService)
	app.UsageHandler = usage.NewHandler(app.UsageService)

	if app.RewritesHandler == nil || app.UsageHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
