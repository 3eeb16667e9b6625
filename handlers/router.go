package handlers

import (
	"net/http"

	"sentinel-edge/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// RouterConfig wires handlers and middleware into the HTTP API
type RouterConfig struct {
	Analysis *AnalysisHandler
	Files    *FileHandler
	Health   *HealthHandler

	// AnalyzeLimiter throttles POST /api/analyze when set
	AnalyzeLimiter *rate.Limiter
	// Users enables basic auth on /api when set
	Users       UserLookup
	CORSOrigins []string
}

// NewRouter builds the gin engine and wraps it with CORS
func NewRouter(cfg RouterConfig) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/health", cfg.Health.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	if cfg.Users != nil {
		api.Use(BasicAuth(cfg.Users))
	}
	{
		analyze := []gin.HandlerFunc{cfg.Analysis.Analyze}
		if cfg.AnalyzeLimiter != nil {
			analyze = append([]gin.HandlerFunc{RateLimit(cfg.AnalyzeLimiter)}, analyze...)
		}
		api.POST("/analyze", analyze...)
		api.GET("/status/:id", cfg.Analysis.Status)
		api.GET("/report/:id", cfg.Analysis.Report)
		api.GET("/report/:id/html", cfg.Analysis.ReportHTML)
		api.GET("/history", cfg.Analysis.History)
		api.DELETE("/job/:id", cfg.Analysis.Delete)

		if cfg.Files != nil {
			api.GET("/files/:id", cfg.Files.GetFile)
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}
