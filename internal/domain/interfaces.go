package domain

import (
	"context"
)

// TextExtractor turns an uploaded file into raw text
type TextExtractor interface {
	Extract(ctx context.Context, path, extension string) (string, error)
}

// Classifier runs a named structured-prediction model over a feature vector
type Classifier interface {
	Classify(ctx context.Context, model string, features FeatureVector) (*Classification, error)
}

// QuestionAnswerer answers free-text health questions
type QuestionAnswerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Comparator computes trends over a time-ordered series of test sets
type Comparator interface {
	Compare(ctx context.Context, reports []ComparisonReport) (*ComparisonResult, error)
}

// GuidelineProvider looks up a guideline snippet for a topic
type GuidelineProvider interface {
	Lookup(ctx context.Context, topic string) (*Guideline, error)
}

// ReportRepository persists report analyses and the per-user condition set
type ReportRepository interface {
	Create(ctx context.Context, report *ReportAnalysis) error
	Get(ctx context.Context, userID, reportID string) (*ReportAnalysis, error)
	// FindByUser returns the user's reports newest first. A limit <= 0
	// returns all of them.
	FindByUser(ctx context.Context, userID string, limit int) ([]*ReportAnalysis, error)
	Delete(ctx context.Context, userID, reportID string) error
	// MergeConditions adds conditions to the user's set. Repeating a merge
	// leaves the set unchanged.
	MergeConditions(ctx context.Context, userID string, conditions []string) error
	Conditions(ctx context.Context, userID string) ([]string, error)
	Close() error
}

// StageObserver receives pipeline state transitions
type StageObserver interface {
	OnStage(event StageEvent)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
