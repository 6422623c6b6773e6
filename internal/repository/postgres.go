package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// PostgresStore keeps reports in PostgreSQL. The schema is created by the
// database package migrations.
type PostgresStore struct {
	db      *sql.DB
	logger  *logrus.Logger
	release func()
}

// NewPostgresStore wraps an existing connection pool
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromURL opens a pool for the connection URL
func NewPostgresStoreFromURL(databaseURL string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Create inserts a new report
func (s *PostgresStore) Create(ctx context.Context, report *domain.ReportAnalysis) error {
	payload, err := encodeReport(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (id, user_id, report_type, upload_date, payload)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query,
		report.ID, report.UserID, string(report.ReportType), report.UploadDate, payload)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"report_id": report.ID,
			"user_id":   report.UserID,
			"error":     err,
		}).Error("Failed to insert report")
		return persistenceError("inserting report", err)
	}
	return nil
}

// Get returns a report owned by the user
func (s *PostgresStore) Get(ctx context.Context, userID, reportID string) (*domain.ReportAnalysis, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reports WHERE id = $1 AND user_id = $2`,
		reportID, userID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(reportID)
	}
	if err != nil {
		return nil, persistenceError("reading report", err)
	}
	return decodeReport(payload)
}

// FindByUser lists the user's reports newest first
func (s *PostgresStore) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.ReportAnalysis, error) {
	query := `SELECT payload FROM reports WHERE user_id = $1 ORDER BY upload_date DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("listing reports", err)
	}
	defer rows.Close()

	reports := make([]*domain.ReportAnalysis, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, persistenceError("scanning report", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterating reports", err)
	}
	return reports, nil
}

// Delete removes a report owned by the user
func (s *PostgresStore) Delete(ctx context.Context, userID, reportID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE id = $1 AND user_id = $2`, reportID, userID)
	if err != nil {
		return persistenceError("deleting report", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("deleting report", err)
	}
	if affected == 0 {
		return notFound(reportID)
	}
	return nil
}

// MergeConditions adds conditions to the user's set in one transaction
func (s *PostgresStore) MergeConditions(ctx context.Context, userID string, conditions []string) error {
	conditions = cleanConditions(conditions)
	if len(conditions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("merging conditions", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO user_conditions (user_id, condition)
		VALUES ($1, $2)
		ON CONFLICT (user_id, condition) DO NOTHING`

	for _, c := range conditions {
		if _, err := tx.ExecContext(ctx, query, userID, c); err != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":   userID,
				"condition": c,
				"error":     err,
			}).Error("Failed to merge conditions")
			return persistenceError("merging conditions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("merging conditions", err)
	}
	return nil
}

// Conditions returns the user's condition set in the order first seen
func (s *PostgresStore) Conditions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT condition FROM user_conditions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, persistenceError("listing conditions", err)
	}
	defer rows.Close()

	conditions := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, persistenceError("scanning condition", err)
		}
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterating conditions", err)
	}
	return conditions, nil
}

// Ping checks the store is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection and the pool behind it, if any
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if s.release != nil {
		s.release()
	}
	return err
}
