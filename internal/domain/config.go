package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Comparison ComparisonConfig `mapstructure:"comparison"`
	Guidelines GuidelineConfig  `mapstructure:"guidelines"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	CertFile        string        `mapstructure:"cert_file"`
	KeyFile         string        `mapstructure:"key_file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents storage configuration. Driver is one of
// sqlite, postgres or mongo.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MongoURI        string        `mapstructure:"mongo_uri"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL      string        `mapstructure:"redis_url"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	MemoryMaxSize int           `mapstructure:"memory_max_size"`
	MemoryTTL     time.Duration `mapstructure:"memory_ttl"`
	PoolSize      int           `mapstructure:"pool_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

// ExtractionConfig configures the OCR and PDF text capabilities
type ExtractionConfig struct {
	TesseractPath    string        `mapstructure:"tesseract_path"`
	Language         string        `mapstructure:"language"`
	PDFLicenseKey    string        `mapstructure:"pdf_license_key"`
	MinTextLength    int           `mapstructure:"min_text_length"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SharpenSigma     float64       `mapstructure:"sharpen_sigma"`
	ContrastIncrease float64       `mapstructure:"contrast_increase"`
	TempDir          string        `mapstructure:"temp_dir"`
}

// PredictionConfig configures the classification and QA capability.
// Transport is subprocess or http.
type PredictionConfig struct {
	Transport    string        `mapstructure:"transport"`
	PythonExe    string        `mapstructure:"python_exe"`
	ScriptPath   string        `mapstructure:"script_path"`
	WorkDir      string        `mapstructure:"work_dir"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ComparisonConfig configures the generative comparison capability.
// Provider is gemini, openai or none.
type ComparisonConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Temperature     float32       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxPriorReports int           `mapstructure:"max_prior_reports"`
}

// GuidelineConfig configures guideline enrichment. Provider is catalog
// or http.
type GuidelineConfig struct {
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	MaxLookups int           `mapstructure:"max_lookups"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// UploadConfig constrains accepted uploads
type UploadConfig struct {
	Dir               string   `mapstructure:"dir"`
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
