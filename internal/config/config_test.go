package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Extraction.MinTextLength)
	assert.Equal(t, 60*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, "subprocess", cfg.Prediction.Transport)
	assert.Equal(t, "none", cfg.Comparison.Provider)
	assert.Equal(t, 5, cfg.Comparison.MaxPriorReports)
	assert.Equal(t, 3, cfg.Guidelines.MaxLookups)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{"pdf", "jpg", "jpeg", "png"}, cfg.Upload.AllowedExtensions)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPORTS_SERVER_PORT", "9000")
	t.Setenv("REPORTS_DATABASE_DRIVER", "postgres")
	t.Setenv("REPORTS_COMPARISON_PROVIDER", "openai")
	t.Setenv("REPORTS_COMPARISON_API_KEY", "sk-test")
	t.Setenv("REPORTS_ENVIRONMENT", "production")

	m, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, 9000, m.GetServerConfig().Port)
	assert.Equal(t, "postgres", m.GetDatabaseConfig().Driver)
	assert.Equal(t, "openai", m.GetConfig().Comparison.Provider)
	assert.True(t, m.IsProduction())
	assert.NoError(t, m.Validate())
	assert.Contains(t, m.GetDatabaseConnectionString(), "dbname=womens_health")
}

func TestNewManagerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8181
database:
  driver: mongo
  mongo_uri: mongodb://db:27017
guidelines:
  provider: http
  base_url: http://guidelines:9000
cache:
  redis_url: redis://cache:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, m.GetServerConfig().Port)
	assert.Equal(t, "mongo", m.GetDatabaseConfig().Driver)
	assert.Equal(t, "http://guidelines:9000", m.GetConfig().Guidelines.BaseURL)
	assert.Equal(t, "redis://cache:6379", m.GetRedisConnectionString())
	assert.NoError(t, m.Validate())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"REPORTS_SERVER_PORT": "70000"}},
		{"bad driver", map[string]string{"REPORTS_DATABASE_DRIVER": "oracle"}},
		{"http prediction without url", map[string]string{"REPORTS_PREDICTION_TRANSPORT": "http"}},
		{"gemini without key", map[string]string{"REPORTS_COMPARISON_PROVIDER": "gemini"}},
		{"http guidelines without url", map[string]string{"REPORTS_GUIDELINES_PROVIDER": "http"}},
		{"bad log level", map[string]string{"REPORTS_LOGGING_LEVEL": "verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			m, err := NewManager()
			require.NoError(t, err)
			assert.Error(t, m.Validate())
		})
	}
}
