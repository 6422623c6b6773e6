// Package config provides configuration management for the analyzer.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the database and uploads

	// Cache settings
	CacheMaxItems int           // Maximum guideline topics in memory
	CacheTTL      time.Duration // Guideline cache TTL

	// Prediction capability
	PredictionTransport string // subprocess or http
	PythonExe           string
	ScriptPath          string
	PredictionURL       string
	PredictionTimeout   time.Duration

	// Comparison capability
	ComparisonProvider string // gemini, openai or none
	ComparisonAPIKey   string
	ComparisonModel    string

	// OCR
	TesseractPath string

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".womens-health-reports")

	return &LiteConfig{
		DataDir:             dataDir,
		CacheMaxItems:       256,
		CacheTTL:            24 * time.Hour,
		PredictionTransport: "subprocess",
		PythonExe:           "python3",
		ScriptPath:          "./ml/predict.py",
		PredictionTimeout:   30 * time.Second,
		ComparisonProvider:  "none",
		TesseractPath:       "tesseract",
		Transport:           "stdio",
		HTTPPort:            8080,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("REPORTS_LITE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Cache settings
	if v := os.Getenv("REPORTS_LITE_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("REPORTS_LITE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	// Prediction
	if v := os.Getenv("REPORTS_LITE_PREDICTION_TRANSPORT"); v != "" {
		cfg.PredictionTransport = v
	}
	if v := os.Getenv("REPORTS_LITE_PYTHON_EXE"); v != "" {
		cfg.PythonExe = v
	}
	if v := os.Getenv("REPORTS_LITE_SCRIPT_PATH"); v != "" {
		cfg.ScriptPath = v
	}
	if v := os.Getenv("REPORTS_LITE_PREDICTION_URL"); v != "" {
		cfg.PredictionURL = v
	}
	if v := os.Getenv("REPORTS_LITE_PREDICTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PredictionTimeout = d
		}
	}

	// Comparison
	if v := os.Getenv("REPORTS_LITE_COMPARISON_PROVIDER"); v != "" {
		cfg.ComparisonProvider = v
	}
	cfg.ComparisonAPIKey = os.Getenv("REPORTS_LITE_COMPARISON_API_KEY")
	cfg.ComparisonModel = os.Getenv("REPORTS_LITE_COMPARISON_MODEL")

	if v := os.Getenv("REPORTS_LITE_TESSERACT_PATH"); v != "" {
		cfg.TesseractPath = v
	}

	// Transport
	if v := os.Getenv("REPORTS_LITE_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("REPORTS_LITE_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	// Logging
	if v := os.Getenv("REPORTS_LITE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REPORTS_LITE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Validate checks the settings the lite server cannot run without
func (c *LiteConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	switch c.PredictionTransport {
	case "subprocess":
		if c.ScriptPath == "" {
			return fmt.Errorf("prediction script path is required")
		}
	case "http":
		if c.PredictionURL == "" {
			return fmt.Errorf("prediction URL is required")
		}
	default:
		return fmt.Errorf("invalid prediction transport: %s", c.PredictionTransport)
	}
	switch c.ComparisonProvider {
	case "", "none":
	case "gemini", "openai":
		if c.ComparisonAPIKey == "" {
			return fmt.Errorf("comparison API key is required for %s", c.ComparisonProvider)
		}
	default:
		return fmt.Errorf("invalid comparison provider: %s", c.ComparisonProvider)
	}
	return nil
}

// ReportsDBPath returns the path to the reports SQLite database.
func (c *LiteConfig) ReportsDBPath() string {
	return filepath.Join(c.DataDir, "reports.db")
}

// UploadDir returns the directory for uploaded files.
func (c *LiteConfig) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.UploadDir(), 0755)
}

// Domain expands the lite settings into the full configuration shape
// used by the shared constructors
func (c *LiteConfig) Domain() *domain.Config {
	return &domain.Config{
		Database: domain.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: c.ReportsDBPath(),
			Timeout:    10 * time.Second,
		},
		Cache: domain.CacheConfig{
			MemoryMaxSize: c.CacheMaxItems,
			MemoryTTL:     c.CacheTTL,
		},
		Extraction: domain.ExtractionConfig{
			TesseractPath:    c.TesseractPath,
			Language:         "eng",
			MinTextLength:    20,
			Timeout:          60 * time.Second,
			SharpenSigma:     1.0,
			ContrastIncrease: 20,
		},
		Prediction: domain.PredictionConfig{
			Transport:    c.PredictionTransport,
			PythonExe:    c.PythonExe,
			ScriptPath:   c.ScriptPath,
			BaseURL:      c.PredictionURL,
			Timeout:      c.PredictionTimeout,
			RateLimit:    10,
			QueryTimeout: 60 * time.Second,
		},
		Comparison: domain.ComparisonConfig{
			Provider:        c.ComparisonProvider,
			Model:           c.ComparisonModel,
			APIKey:          c.ComparisonAPIKey,
			Temperature:     0.3,
			Timeout:         60 * time.Second,
			MaxRetries:      2,
			MaxPriorReports: 5,
		},
		Guidelines: domain.GuidelineConfig{
			Provider:   "catalog",
			Timeout:    10 * time.Second,
			MaxLookups: 3,
			CacheTTL:   c.CacheTTL,
		},
		Upload: domain.UploadConfig{
			Dir:               c.UploadDir(),
			MaxSizeBytes:      10 * 1024 * 1024,
			AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"},
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
	}
}
