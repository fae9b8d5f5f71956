package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/auth"
	"dms-backend/internal/documents"
	"dms-backend/internal/shared/config"
	"dms-backend/internal/shared/metrics"
	"dms-backend/internal/shared/server/middleware"
	"dms-backend/internal/shared/server/respond"
	"dms-backend/internal/shared/storage/db"
	"dms-backend/internal/shared/telemetry"
	"dms-backend/internal/users"
)

const healthPingTimeout = 2 * time.Second

// RouterDeps carries the handlers and shared dependencies the router mounts.
type RouterDeps struct {
	Config          config.Config
	DB              *sql.DB
	Verifier        middleware.TokenVerifier
	AuthHandler     *auth.Handler
	UserHandler     *users.Handler
	DocumentHandler *documents.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// Forwarding headers only count when the peer is a listed proxy.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		telemetry.Warn("server.trusted_proxies_invalid", map[string]any{"err": err, "proxies": cfg.TrustedProxies})
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		metrics.Middleware(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.GET("/health", healthHandler(deps.DB))

	authGroup := api.Group("/auth", authRateLimit(cfg), middleware.Timeout(cfg.RequestTimeout))
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(authGroup)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(authGroup.Group("", middleware.Auth(deps.Verifier)))
	}

	if deps.DocumentHandler != nil {
		docs := api.Group("/documents", middleware.Auth(deps.Verifier))
		deps.DocumentHandler.RegisterRoutes(docs.Group("", middleware.Timeout(cfg.RequestTimeout)))
		deps.DocumentHandler.RegisterAudioRoute(docs.Group("", middleware.Timeout(cfg.AudioTimeout)))
	}

	return r
}

func authRateLimit(cfg config.Config) gin.HandlerFunc {
	if cfg.AuthRateLimitRPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.AuthRateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"AUTH": {Rate: cfg.AuthRateLimitRPS, Burst: burst},
		},
		DefaultGroup: "AUTH",
	})
}

func healthHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if database == nil {
			respond.OK(c, gin.H{"ok": true, "db": "memory"})
			return
		}
		if err := db.Ping(c.Request.Context(), database, healthPingTimeout); err != nil {
			telemetry.Warn("health.db_unavailable", map[string]any{"err": err})
			respond.JSON(c, http.StatusServiceUnavailable, gin.H{"ok": false, "db": "down"})
			return
		}
		respond.OK(c, gin.H{"ok": true, "db": "up"})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":4000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
