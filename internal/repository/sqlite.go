package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// SQLiteStore keeps reports in a single embedded database file
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database file and schema
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite report store ready")
	return &SQLiteStore{db: db, dbPath: dbPath, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		report_type TEXT NOT NULL DEFAULT 'general',
		upload_unix INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_user_upload ON reports(user_id, upload_unix);

	CREATE TABLE IF NOT EXISTS user_conditions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		condition TEXT NOT NULL,
		UNIQUE(user_id, condition)
	);
	`

	_, err := db.Exec(schema)
	return err
}

// Create inserts a new report
func (s *SQLiteStore) Create(ctx context.Context, report *domain.ReportAnalysis) error {
	payload, err := encodeReport(report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, user_id, report_type, upload_unix, payload)
		VALUES (?, ?, ?, ?, ?)
	`, report.ID, report.UserID, string(report.ReportType), report.UploadDate.UnixNano(), string(payload))
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
func (s *SQLiteStore) Get(ctx context.Context, userID, reportID string) (*domain.ReportAnalysis, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM reports WHERE id = ? AND user_id = ?",
		reportID, userID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(reportID)
	}
	if err != nil {
		return nil, persistenceError("reading report", err)
	}
	return decodeReport([]byte(payload))
}

// FindByUser lists the user's reports newest first
func (s *SQLiteStore) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.ReportAnalysis, error) {
	query := `SELECT payload FROM reports WHERE user_id = ? ORDER BY upload_unix DESC, rowid ASC`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("listing reports", err)
	}
	defer rows.Close()

	reports := make([]*domain.ReportAnalysis, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, persistenceError("scanning report", err)
		}
		report, err := decodeReport([]byte(payload))
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
func (s *SQLiteStore) Delete(ctx context.Context, userID, reportID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM reports WHERE id = ? AND user_id = ?", reportID, userID)
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

// MergeConditions adds conditions to the user's set
func (s *SQLiteStore) MergeConditions(ctx context.Context, userID string, conditions []string) error {
	conditions = cleanConditions(conditions)
	if len(conditions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("merging conditions", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO user_conditions (user_id, condition) VALUES (?, ?)")
	if err != nil {
		return persistenceError("merging conditions", err)
	}
	defer stmt.Close()

	for _, c := range conditions {
		if _, err := stmt.ExecContext(ctx, userID, c); err != nil {
			return persistenceError("merging conditions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("merging conditions", err)
	}
	return nil
}

// Conditions returns the user's condition set in the order first seen
func (s *SQLiteStore) Conditions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT condition FROM user_conditions WHERE user_id = ? ORDER BY id", userID)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
