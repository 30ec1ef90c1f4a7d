// Package httpapi wires the ops HTTP server (Gin) to the run journal and the
// Prometheus registry. It centralizes cross-cutting concerns: tracing,
// correlation IDs, logging, panic recovery, metrics, compression, security
// headers and rate limiting.
//
// The ops server runs next to the generation loop. It reads the journal and
// the metrics registry only; it never touches the quota tracker or the
// duplicate index.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-idea-generator/internal/config"
	"github.com/tbourn/go-idea-generator/internal/http/handlers"
	"github.com/tbourn/go-idea-generator/internal/http/middleware"
)

const (
	apiBasePath = "/api/v1"

	// Per-client budget for the journal API.
	apiRateRPS   = 10
	apiRateBurst = 20
)

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery
//  5. Metrics
//  6. CORS (read-only methods, any origin)
//  7. Security headers
//  8. gzip (not on /metrics, promhttp negotiates its own encoding)
//
// The journal API additionally sits behind a per-IP rate limiter.
func RegisterRoutes(r *gin.Engine, journal handlers.RunJournal, cfg config.Config, lg zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(lg))
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Accept", "If-None-Match", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID", "ETag"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	noStore := middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true})
	r.GET("/health", noStore, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.New(journal)
	rl := middleware.NewRateLimiter(apiRateRPS, apiRateBurst, middleware.KeyByIP())
	api := r.Group(apiBasePath, rl.Handler())
	{
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
	}
}

// NewServer builds the ops HTTP server listening on addr.
func NewServer(addr string, journal handlers.RunJournal, cfg config.Config, lg zerolog.Logger) *http.Server {
	r := gin.New()
	RegisterRoutes(r, journal, cfg, lg)
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
