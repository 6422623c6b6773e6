package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/womens-health-report-analyzer/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var sampleTime = time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

func sampleReport(id, userID string, uploaded time.Time) *domain.ReportAnalysis {
	return &domain.ReportAnalysis{
		ID:         id,
		UserID:     userID,
		ReportName: id + ".pdf",
		ReportType: domain.ReportTypeBloodTest,
		FileName:   id + ".pdf",
		UploadDate: uploaded.UTC(),
		Tests: []domain.TestObservation{
			{RawName: "Hemoglobin", CanonicalKey: "hemoglobin", Value: "9.5", Unit: "g/dL"},
		},
		DetectedConditions: []string{"Anemia"},
		Summary:            "Blood Test report with 1 test results and 1 abnormal findings",
	}
}

// exerciseRepository runs the behavior every store must share
func exerciseRepository(t *testing.T, repo domain.ReportRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleReport("r1", "alice", base)))
	require.NoError(t, repo.Create(ctx, sampleReport("r2", "alice", base.Add(48*time.Hour))))
	require.NoError(t, repo.Create(ctx, sampleReport("r3", "alice", base.Add(24*time.Hour))))
	require.NoError(t, repo.Create(ctx, sampleReport("b1", "bob", base)))

	t.Run("get own report", func(t *testing.T) {
		got, err := repo.Get(ctx, "alice", "r2")
		require.NoError(t, err)
		assert.Equal(t, "r2", got.ID)
		assert.Equal(t, domain.ReportTypeBloodTest, got.ReportType)
		require.Len(t, got.Tests, 1)
		assert.Equal(t, "9.5", got.Tests[0].Value)
		assert.True(t, got.UploadDate.Equal(base.Add(48*time.Hour)))
	})

	t.Run("other user's report is not found", func(t *testing.T) {
		_, err := repo.Get(ctx, "bob", "r1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("newest first with limit", func(t *testing.T) {
		all, err := repo.FindByUser(ctx, "alice", 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, r := range all {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"r2", "r3", "r1"}, ids)

		limited, err := repo.FindByUser(ctx, "alice", 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "r2", limited[0].ID)

		none, err := repo.FindByUser(ctx, "carol", 0)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("conditions merge idempotently", func(t *testing.T) {
		require.NoError(t, repo.MergeConditions(ctx, "alice", []string{"Anemia", "PCOS"}))
		require.NoError(t, repo.MergeConditions(ctx, "alice", []string{"PCOS", " ", "Anemia", "Diabetes"}))
		require.NoError(t, repo.MergeConditions(ctx, "alice", nil))

		got, err := repo.Conditions(ctx, "alice")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Anemia", "PCOS", "Diabetes"}, got)

		empty, err := repo.Conditions(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, "bob", "r1"), domain.ErrNotFound)
		require.NoError(t, repo.Delete(ctx, "alice", "r1"))
		_, err := repo.Get(ctx, "alice", "r1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "alice", "r1"), domain.ErrNotFound)
	})

	t.Run("duplicate id is a persistence error", func(t *testing.T) {
		err := repo.Create(ctx, sampleReport("r2", "alice", base))
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestCreateRejectsIncompleteReport(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir()+"/reports.db", quietLogger())
	require.NoError(t, err)
	defer store.Close()

	err = store.Create(context.Background(), &domain.ReportAnalysis{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = store.Create(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCleanConditions(t *testing.T) {
	assert.Equal(t, []string{"PCOS", "Anemia"}, cleanConditions([]string{" PCOS", "", "Anemia", "PCOS"}))
	assert.Empty(t, cleanConditions(nil))
}

func TestNewRepositoryUnsupportedDriver(t *testing.T) {
	_, err := NewRepository(context.Background(), domain.DatabaseConfig{Driver: "cassandra"}, quietLogger())
	assert.Error(t, err)
}

func TestNewRepositoryDefaultsToSQLite(t *testing.T) {
	path := t.TempDir() + "/nested/reports.db"
	repo, err := NewRepository(context.Background(), domain.DatabaseConfig{SQLitePath: path}, quietLogger())
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &SQLiteStore{}, repo)
}

func TestSQLiteStorePing(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir()+"/reports.db", quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}
