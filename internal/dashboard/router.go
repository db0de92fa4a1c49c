// Package dashboard exposes a stub store session over HTTP for the web UI.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/models"
	"github.com/prasenjit/stub-console/internal/stats"
	"github.com/prasenjit/stub-console/internal/store"
)

// Admin is the part of the admin API the dashboard reads directly,
// bypassing the store
type Admin interface {
	ListRequests(ctx context.Context, limit int) ([]*models.LoggedRequest, error)
	ListMappings(ctx context.Context) ([]json.RawMessage, error)
	Health(ctx context.Context) error
}

// Router handles HTTP routing
type Router struct {
	engine  *gin.Engine
	handler *Handler
	log     zerolog.Logger
}

// NewRouter creates a new router
func NewRouter(st *store.Store, admin Admin, metrics *stats.Collector, log zerolog.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)

	log = log.With().Str("component", "dashboard").Logger()
	r := &Router{
		engine:  gin.New(),
		handler: NewHandler(st, admin, metrics, log),
		log:     log,
	}

	r.engine.Use(gin.Recovery())
	r.engine.Use(corsMiddleware())
	r.engine.Use(requestLogger(log))

	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	h := r.handler

	api := r.engine.Group("/_api")
	{
		api.GET("/state", h.GetState)

		// Stubs
		api.GET("/stubs", h.ListStubs)
		api.POST("/stubs", h.CreateStub)
		api.POST("/stubs/search", h.SearchStubs)
		api.POST("/stubs/bulk", h.CreateStubs)
		api.POST("/stubs/import", h.ImportStubs)
		api.POST("/stubs/reload", h.ReloadStubs)
		api.POST("/stubs/batch/delete", h.BatchDelete)
		api.POST("/stubs/batch/toggle", h.BatchToggle)
		api.GET("/stubs/:id", h.GetStub)
		api.PUT("/stubs/:id", h.UpdateStub)
		api.DELETE("/stubs/:id", h.DeleteStub)
		api.POST("/stubs/:id/toggle", h.ToggleStub)

		api.GET("/statistics", h.GetStatistics)

		// Selection
		api.PUT("/selection/:id", h.SelectStub)
		api.DELETE("/selection/:id", h.DeselectStub)
		api.DELETE("/selection", h.ClearSelection)
		api.POST("/selection/visible", h.SelectVisible)

		// Mock server views
		api.GET("/requests", h.ListRequests)
		api.GET("/mappings", h.ListMappings)

		// Admin API call metrics
		api.GET("/metrics", h.GetMetrics)
		api.POST("/metrics/reset", h.ResetMetrics)

		api.GET("/health", h.HealthCheck)
	}

	// WebSocket for live store events
	r.engine.GET("/_api/events", gin.WrapH(NewEventStream(h.store, r.log)))
}

// ServeUIFromFS serves the built UI from a directory
func (r *Router) ServeUIFromFS(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		r.engine.GET("/_ui/*filepath", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "UI not built",
				"message": "Build the UI and point server.uiDir at the output directory",
			})
		})
		return
	}

	r.engine.Static("/_ui", dir)
	r.engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/_ui/")
	})

	// SPA routing: unknown UI paths get index.html
	r.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/_ui") {
			indexPath := filepath.Join(dir, "index.html")
			if _, err := os.Stat(indexPath); err == nil {
				c.File(indexPath)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs each request once it completes
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
