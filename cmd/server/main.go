package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/api"
	"github.com/womens-health-report-analyzer/internal/config"
	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/extraction"
	"github.com/womens-health-report-analyzer/internal/metrics"
	"github.com/womens-health-report-analyzer/internal/prediction"
	"github.com/womens-health-report-analyzer/internal/repository"
	"github.com/womens-health-report-analyzer/internal/service"
	"github.com/womens-health-report-analyzer/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	repo, err := repository.NewRepository(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open report storage")
	}
	defer repo.Close()

	var redisCache *external.CacheClient
	if cfg.Cache.RedisURL != "" {
		redisCache, err = external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using the in-memory guideline cache only")
		} else {
			defer redisCache.Close()
		}
	}

	backend, err := prediction.NewBackend(cfg.Prediction, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create prediction backend")
	}
	comparator, err := external.NewComparator(ctx, cfg.Comparison, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create comparator")
	}
	guidelines, err := external.NewGuidelineProvider(cfg.Guidelines, cfg.Cache, redisCache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create guideline provider")
	}

	collector := metrics.NewCollector()
	hub := api.NewEventHub(cfg.Server.AllowedOrigins, logger)

	analyzer, err := service.NewReportAnalyzer(service.AnalyzerDeps{
		Extractor:  extraction.NewAdapterFromConfig(cfg.Extraction, logger),
		Predictor:  prediction.NewClient(backend, cfg.Prediction.Timeout, logger),
		Comparator: comparator,
		Guidelines: guidelines,
		Repository: repo,
		Observer:   hub,
		Metrics:    collector,
	}, service.AnalyzerConfig{
		MaxPriorReports:     cfg.Comparison.MaxPriorReports,
		MaxGuidelineLookups: cfg.Guidelines.MaxLookups,
		ComparisonTimeout:   cfg.Comparison.Timeout,
		GuidelineTimeout:    cfg.Guidelines.Timeout,
		StorageTimeout:      cfg.Database.Timeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create report analyzer")
	}

	services := api.Services{
		Analyzer:   analyzer,
		Dashboard:  service.NewDashboardService(repo, nil, guidelines, cfg.Guidelines.Timeout, logger),
		History:    service.NewHistoryService(repo, comparator, logger),
		Chat:       service.NewChatService(backend, repo, cfg.Prediction.QueryTimeout, logger),
		Guidelines: guidelines,
		Events:     hub,
		Metrics:    collector,
	}
	if pinger, ok := repo.(interface{ Ping(context.Context) error }); ok {
		services.StorageHealth = pinger.Ping
	}

	logger.WithFields(logrus.Fields{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"storage":    cfg.Database.Driver,
		"prediction": cfg.Prediction.Transport,
		"comparison": cfg.Comparison.Provider,
		"guidelines": cfg.Guidelines.Provider,
	}).Info("Starting women's health report analyzer")

	server := api.NewServer(configManager, services, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if strings.EqualFold(cfg.Output, "stderr") {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
