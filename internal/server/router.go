// server/router.go - Route configuration and server lifecycle
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kicomport/internal/handler"
	"kicomport/pkg/logger"
)

// Server is the HTTP server lifecycle.
type Server interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// NewServer creates the HTTP server.
func NewServer(importHandler *handler.ImportHandler, logger logger.Logger) Server {
	return &server{
		importHandler: importHandler,
		logger:        logger,
	}
}

type server struct {
	engine        *gin.Engine
	importHandler *handler.ImportHandler
	logger        logger.Logger
	httpServer    *http.Server
}

// Start builds the engine and serves until Shutdown.
func (s *server) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	s.logger.Info("starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info("shutting down HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *server) setupMiddleware() {
	s.engine.Use(RecoveryMiddleware(s.logger))
	s.engine.Use(LoggingMiddleware(s.logger))
	s.engine.Use(CORSMiddleware())
	s.engine.Use(MetricsMiddleware())
	s.engine.Use(RateLimitMiddleware(s.logger))

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"code":    "0",
			"message": "ok",
			"success": true,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *server) setupRoutes() {
	SetupImportRoutes(s.engine, s.importHandler, s.logger)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "endpoint not found",
		})
	})
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"success": false,
			"message": "method not allowed",
		})
	})
}

// SetupImportRoutes registers the import pipeline routes.
func SetupImportRoutes(router *gin.Engine, importHandler *handler.ImportHandler, logger logger.Logger) {
	api := router.Group("/kicomport/api/v1")
	{
		api.POST("/jobs/upload", importHandler.Upload)
		api.GET("/jobs", importHandler.ListJobs)
		api.GET("/jobs/:jobId", importHandler.GetJob)
		api.POST("/jobs/:jobId/analyze", importHandler.Analyze)
		api.GET("/jobs/:jobId/plan", importHandler.GetPlan)
		api.PUT("/jobs/:jobId/selection", importHandler.SetSelection)
		api.POST("/jobs/:jobId/review", importHandler.Review)
		api.POST("/jobs/:jobId/apply", importHandler.Apply)
		api.POST("/jobs/:jobId/rollback", importHandler.Rollback)
		api.GET("/jobs/:jobId/diff", importHandler.Diff)
		api.GET("/jobs/:jobId/audit", importHandler.AuditHistory)
		api.GET("/audit", importHandler.AuditHistoryAll)
	}
}
