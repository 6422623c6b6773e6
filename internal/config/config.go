package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile loads an explicit config file on top of the defaults
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/womens-health-report-analyzer/")
	}

	v.SetEnvPrefix("REPORTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "170s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.shutdown_timeout", "15s")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/reports.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "womens_health")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.timeout", "10s")

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.memory_max_size", 256)
	v.SetDefault("cache.memory_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)

	// Extraction defaults
	v.SetDefault("extraction.tesseract_path", "tesseract")
	v.SetDefault("extraction.language", "eng")
	v.SetDefault("extraction.pdf_license_key", "")
	v.SetDefault("extraction.min_text_length", 20)
	v.SetDefault("extraction.timeout", "60s")
	v.SetDefault("extraction.sharpen_sigma", 1.0)
	v.SetDefault("extraction.contrast_increase", 20.0)
	v.SetDefault("extraction.temp_dir", "")

	// Prediction defaults
	v.SetDefault("prediction.transport", "subprocess")
	v.SetDefault("prediction.python_exe", "python3")
	v.SetDefault("prediction.script_path", "./ml/predict.py")
	v.SetDefault("prediction.work_dir", "")
	v.SetDefault("prediction.base_url", "")
	v.SetDefault("prediction.timeout", "30s")
	v.SetDefault("prediction.rate_limit", 10)
	v.SetDefault("prediction.query_timeout", "60s")

	// Comparison defaults
	v.SetDefault("comparison.provider", "none")
	v.SetDefault("comparison.model", "")
	v.SetDefault("comparison.api_key", "")
	v.SetDefault("comparison.base_url", "")
	v.SetDefault("comparison.temperature", 0.3)
	v.SetDefault("comparison.timeout", "60s")
	v.SetDefault("comparison.max_retries", 2)
	v.SetDefault("comparison.max_prior_reports", 5)

	// Guideline defaults
	v.SetDefault("guidelines.provider", "catalog")
	v.SetDefault("guidelines.base_url", "")
	v.SetDefault("guidelines.timeout", "10s")
	v.SetDefault("guidelines.rate_limit", 5)
	v.SetDefault("guidelines.max_lookups", 3)
	v.SetDefault("guidelines.cache_ttl", "24h")

	// Upload defaults
	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.max_size_bytes", 10*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{"pdf", "jpg", "jpeg", "png"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch strings.ToLower(config.Database.Driver) {
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database sqlite_path is required")
		}
	case "postgres", "postgresql":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "mongo", "mongodb":
		if config.Database.MongoURI == "" {
			return fmt.Errorf("database mongo_uri is required")
		}
	default:
		return fmt.Errorf("invalid database driver: %s", config.Database.Driver)
	}

	switch config.Prediction.Transport {
	case "subprocess":
		if config.Prediction.ScriptPath == "" {
			return fmt.Errorf("prediction script_path is required")
		}
	case "http":
		if config.Prediction.BaseURL == "" {
			return fmt.Errorf("prediction base_url is required")
		}
	default:
		return fmt.Errorf("invalid prediction transport: %s", config.Prediction.Transport)
	}

	switch config.Comparison.Provider {
	case "none", "":
	case "gemini", "openai":
		if config.Comparison.APIKey == "" {
			return fmt.Errorf("comparison api_key is required for provider %s", config.Comparison.Provider)
		}
	default:
		return fmt.Errorf("invalid comparison provider: %s", config.Comparison.Provider)
	}

	if config.Guidelines.Provider == "http" && config.Guidelines.BaseURL == "" {
		return fmt.Errorf("guidelines base_url is required for the http provider")
	}

	if config.Upload.Dir == "" {
		return fmt.Errorf("upload dir is required")
	}
	if config.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("invalid upload max_size_bytes: %d", config.Upload.MaxSizeBytes)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
