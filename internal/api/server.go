package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/metrics"
	"github.com/womens-health-report-analyzer/internal/middleware"
	"github.com/womens-health-report-analyzer/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Services are the collaborators behind the HTTP routes
type Services struct {
	Analyzer   *service.ReportAnalyzer
	Dashboard  *service.DashboardService
	History    *service.HistoryService
	Chat       *service.ChatService
	Guidelines domain.GuidelineProvider
	Events     *EventHub
	Metrics    *metrics.Collector
	// StorageHealth is checked by the health endpoint when set
	StorageHealth func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	services      Services
	router        *gin.Engine
	server        *http.Server
	logger        *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, services Services, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.MaxMultipartMemory = 8 << 20

	server := &Server{
		configManager: configManager,
		services:      services,
		router:        router,
		logger:        logger,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.services.Events != nil {
		s.services.Events.Close()
	}
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	cfg := s.configManager.GetConfig()

	s.router.GET("/health", s.handleHealth)
	if cfg.Metrics.Enabled && s.services.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.services.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequireUser())
	{
		v1.POST("/reports", middleware.UploadLimit(cfg.Upload.MaxSizeBytes), s.handleUpload)
		v1.GET("/reports", s.handleListReports)
		v1.GET("/reports/:id", s.handleGetReport)
		v1.DELETE("/reports/:id", s.handleDeleteReport)
		v1.POST("/reports/compare", s.handleCompareReports)
		v1.GET("/dashboard", s.handleDashboard)
		v1.GET("/conditions/:name", s.handleConditionDetail)
		v1.GET("/trends", s.handleTrends)
		v1.POST("/chat", s.handleChat)
		v1.GET("/guidelines/:topic", s.handleGuideline)
		if s.services.Events != nil {
			v1.GET("/events", s.services.Events.ServeWS)
		}
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	checks := gin.H{}
	if s.services.StorageHealth != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.services.StorageHealth(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			checks["storage"] = err.Error()
		} else {
			checks["storage"] = "ok"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks":    checks,
	})
}
