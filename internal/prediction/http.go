package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/pkg/external"
)

// HTTPClassifier sends the same request/response messages to a remote
// inference service.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// HTTPClassifierConfig represents configuration for the remote classifier
type HTTPClassifierConfig struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
}

// NewHTTPClassifier creates a remote classifier with rate limiting and a
// circuit breaker.
func NewHTTPClassifier(config HTTPClassifierConfig, logger *logrus.Logger) *HTTPClassifier {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &HTTPClassifier{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   external.NewCircuitBreaker("classifier", external.DefaultCircuitBreakerConfig(), logger),
		logger:    logger,
	}
}

// Classify runs a named model
func (h *HTTPClassifier) Classify(ctx context.Context, model string, features domain.FeatureVector) (*domain.Classification, error) {
	resp, err := h.call(ctx, Request{Task: TaskClassify, Model: model, Features: features})
	if err != nil {
		return nil, err
	}
	return classificationFrom(resp), nil
}

// Answer runs the question-answering task
func (h *HTTPClassifier) Answer(ctx context.Context, query string) (string, error) {
	resp, err := h.call(ctx, Request{Task: TaskQA, Query: query})
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (h *HTTPClassifier) call(ctx context.Context, req Request) (*Response, error) {
	if err := h.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait failed: %w", domain.ErrClassification, err)
	}

	resp, err := external.Execute(h.breaker, func() (*Response, error) {
		return h.post(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %v", domain.ErrClassification, err)
		}
		return nil, err
	}
	// a rejected request leaves the breaker untouched
	if err := resp.failure(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (h *HTTPClassifier) post(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", domain.ErrClassification, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", domain.ErrClassification, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrClassification, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrClassification, err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: inference service returned %d", domain.ErrClassification, httpResp.StatusCode)
	}

	return parseResponse(raw)
}
