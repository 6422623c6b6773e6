package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/database"
	"github.com/womens-health-report-analyzer/internal/domain"
)

// NewRepository opens the store selected by cfg.Driver
func NewRepository(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (domain.ReportRepository, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "./data/reports.db"
		}
		return NewSQLiteStore(path, logger)

	case "postgres", "postgresql":
		if cfg.RunMigrations {
			if err := runMigrations(ctx, cfg, logger); err != nil {
				return nil, err
			}
		}
		conn, err := database.NewConnection(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(conn.SQL, logger)
		if err != nil {
			conn.Close()
			return nil, err
		}
		store.release = conn.Pool.Close
		return store, nil

	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.Database, logger)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func runMigrations(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(database.ConnectionURL(cfg), logger)
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
