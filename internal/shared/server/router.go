package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/services/health"
	"resume-revamp/internal/shared/auth"
	"resume-revamp/internal/shared/config"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/server/middleware"
	"resume-revamp/internal/shared/server/respond"
	"resume-revamp/internal/usage"
)

// RouterDeps holds the handlers mounted by NewRouter.
type RouterDeps struct {
	Config   config.Config
	Signer   *auth.Signer
	Health   *health.Service
	Rewrites *rewrites.Handler
	Usage    *usage.Handler
	// Limiter is shared so tests can inject a clock.
	Limiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)
	r.GET("/metrics", metrics.Handler())

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		ok, checks := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": ok, "checks": checks})
	})

	api.Use(middleware.Auth(middleware.AuthConfig{Signer: deps.Signer, Required: cfg.AuthRequired}))
	registerMeRoutes(api)

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			middleware.GroupRewrite: {Rate: cfg.RewriteRateLimit, Burst: cfg.RewriteRateBurst},
		},
		DefaultGroup: middleware.GroupRewrite,
		Limiter:      deps.Limiter,
	})
	if deps.Rewrites != nil {
		deps.Rewrites.RegisterRoutes(api, limit)
	}
	if deps.Usage != nil {
		deps.Usage.RegisterRoutes(api)
		if cfg.Env == "dev" {
			dev := api.Group("/dev")
			deps.Usage.RegisterDevRoutes(dev)
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
