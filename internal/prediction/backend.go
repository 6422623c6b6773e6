package prediction

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// Backend is a capability that both classifies and answers questions
type Backend interface {
	domain.Classifier
	domain.QuestionAnswerer
}

// NewBackend selects the classifier transport from configuration
func NewBackend(cfg domain.PredictionConfig, logger *logrus.Logger) (Backend, error) {
	switch cfg.Transport {
	case "", "subprocess":
		if cfg.ScriptPath == "" {
			return nil, fmt.Errorf("prediction.script_path is required for the subprocess transport")
		}
		return NewSubprocessClassifier(cfg.PythonExe, cfg.ScriptPath, cfg.WorkDir, logger), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("prediction.base_url is required for the http transport")
		}
		return NewHTTPClassifier(HTTPClassifierConfig{
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown prediction transport %q", cfg.Transport)
	}
}
