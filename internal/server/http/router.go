// Package http exposes the producer and consumer services over HTTP.
package http

import (
	"net/http"
	"time"

	"docforge/internal/handoff"
	"docforge/internal/logging"
	"docforge/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	defaultMaxBodyBytes    int64 = 16 << 20
	defaultMaxArchiveBytes int64 = 64 << 20
)

// RouterConfig holds the settings shared by both service routers.
type RouterConfig struct {
	// Service names the process in health responses.
	Service        string
	Version        string
	Debug          bool
	AllowedOrigins []string
	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64
	// MaxArchiveBytes bounds uploaded archives.
	MaxArchiveBytes int64
	// GenerateTests is used when a run request does not say.
	GenerateTests bool
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.MaxArchiveBytes <= 0 {
		c.MaxArchiveBytes = defaultMaxArchiveBytes
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	return c
}

// NewCodegenRouter serves the consumer side: POST /generate.
func NewCodegenRouter(server *handoff.Server, obs *observability.Observability, cfg RouterConfig) *gin.Engine {
	cfg = cfg.withDefaults()
	if cfg.Service == "" {
		cfg.Service = "codegen"
	}
	engine := newEngine(obs, cfg)
	handler := NewGenerateHandler(server, cfg.MaxBodyBytes)
	engine.POST("/generate", handler.Handle)
	return engine
}

// NewDocsRouter serves the producer side: run submission and the progress
// stream.
func NewDocsRouter(runner RunExecutor, obs *observability.Observability, cfg RouterConfig) *gin.Engine {
	cfg = cfg.withDefaults()
	if cfg.Service == "" {
		cfg.Service = "docs"
	}
	engine := newEngine(obs, cfg)
	handler := NewRunHandler(runner, cfg)

	runs := engine.Group("/api/v1/runs")
	{
		runs.POST("", handler.HandleCreate)
		runs.GET("/stream", handler.HandleStream)
	}
	return engine
}

func newEngine(obs *observability.Observability, cfg RouterConfig) *gin.Engine {
	if obs == nil {
		obs = observability.Noop()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.NewComponentLogger("router")

	engine := gin.New()
	engine.Use(RecoveryMiddleware(logger))
	engine.Use(ObservabilityMiddleware(obs, logging.NewComponentLogger("http")))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	health := NewHealthHandler(cfg.Service, cfg.Version)
	engine.GET("/health", health.Handle)
	engine.GET("/metrics", gin.WrapH(obs.Metrics.Handler()))
	return engine
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Run-ID"}
	config.AllowWebSockets = true
	config.MaxAge = 12 * time.Hour
	return config
}
