// Package mcp provides the MCP server implementation.
// This file contains the lightweight server that requires no external databases.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/womens-health-report-analyzer/internal/config"
	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/extraction"
	"github.com/womens-health-report-analyzer/internal/prediction"
	"github.com/womens-health-report-analyzer/internal/repository"
	"github.com/womens-health-report-analyzer/internal/service"
	"github.com/womens-health-report-analyzer/pkg/external"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses in-memory guideline caching and SQLite for persistence.
type LiteServer struct {
	config    *litecfg.LiteConfig
	mcpServer *mcp.Server
	repo      domain.ReportRepository
	extractor domain.TextExtractor
	backend   prediction.Backend
	tools     *Tools
	toolNames []string
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithRepository sets a custom report repository.
func WithRepository(repo domain.ReportRepository) LiteServerOption {
	return func(s *LiteServer) error {
		s.repo = repo
		return nil
	}
}

// WithExtractor sets a custom text extractor.
func WithExtractor(extractor domain.TextExtractor) LiteServerOption {
	return func(s *LiteServer) error {
		s.extractor = extractor
		return nil
	}
}

// WithBackend sets a custom prediction backend.
func WithBackend(backend prediction.Backend) LiteServerOption {
	return func(s *LiteServer) error {
		s.backend = backend
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		server.logger.SetLevel(level)
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	full := cfg.Domain()
	logger := server.logger

	if server.repo == nil {
		store, err := repository.NewSQLiteStore(cfg.ReportsDBPath(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create report store: %w", err)
		}
		server.repo = store
	}
	if server.extractor == nil {
		server.extractor = extraction.NewAdapterFromConfig(full.Extraction, logger)
	}
	if server.backend == nil {
		backend, err := prediction.NewBackend(full.Prediction, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create prediction backend: %w", err)
		}
		server.backend = backend
	}

	comparator, err := external.NewComparator(context.Background(), full.Comparison, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create comparator: %w", err)
	}

	guidelines, err := external.NewGuidelineProvider(full.Guidelines, full.Cache, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create guideline provider: %w", err)
	}

	analyzer, err := service.NewReportAnalyzer(service.AnalyzerDeps{
		Extractor:  server.extractor,
		Predictor:  prediction.NewClient(server.backend, full.Prediction.Timeout, logger),
		Comparator: comparator,
		Guidelines: guidelines,
		Repository: server.repo,
	}, service.AnalyzerConfig{
		MaxPriorReports:     full.Comparison.MaxPriorReports,
		MaxGuidelineLookups: full.Guidelines.MaxLookups,
		ComparisonTimeout:   full.Comparison.Timeout,
		GuidelineTimeout:    full.Guidelines.Timeout,
		StorageTimeout:      full.Database.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create report analyzer: %w", err)
	}

	server.tools = &Tools{
		Analyzer:   analyzer,
		Dashboard:  service.NewDashboardService(server.repo, nil, guidelines, full.Guidelines.Timeout, logger),
		History:    service.NewHistoryService(server.repo, comparator, logger),
		Chat:       service.NewChatService(server.backend, server.repo, full.Prediction.QueryTimeout, logger),
		Guidelines: guidelines,
		UploadDir:  full.Upload.Dir,
		MaxSize:    full.Upload.MaxSizeBytes,
		Logger:     logger,
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "womens-health-report-analyzer-lite",
		Version: "v0.1.0",
	}, nil)
	server.toolNames = server.tools.Register(server.mcpServer)

	logger.WithField("tool_count", len(server.toolNames)).Info("Lite server initialized successfully")
	return server, nil
}

// ToolNames returns the registered tool names.
func (s *LiteServer) ToolNames() []string {
	return s.toolNames
}

// Tools returns the tool handlers for direct invocation.
func (s *LiteServer) Tools() *Tools {
	return s.tools
}

// Start serves MCP over stdio, or over streamable HTTP when configured.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting report analyzer MCP server (Lite)")

	switch s.config.Transport {
	case "", "stdio":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close report store")
			return err
		}
	}
	return nil
}
