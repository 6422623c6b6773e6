package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// HTTPGuidelineClient queries a remote guideline service
type HTTPGuidelineClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// HTTPGuidelineConfig represents configuration for the guideline service client
type HTTPGuidelineConfig struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
}

// guidelineResponse is the wire format of the guideline service
type guidelineResponse struct {
	Success bool              `json:"success"`
	Data    *domain.Guideline `json:"data"`
	Error   string            `json:"error,omitempty"`
}

// NewHTTPGuidelineClient creates a new guideline service client
func NewHTTPGuidelineClient(config HTTPGuidelineConfig, logger *logrus.Logger) *HTTPGuidelineClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	return &HTTPGuidelineClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   NewCircuitBreaker("guidelines", DefaultCircuitBreakerConfig(), logger),
		logger:    logger,
	}
}

// Lookup fetches the guideline for a topic
func (h *HTTPGuidelineClient) Lookup(ctx context.Context, topic string) (*domain.Guideline, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: empty topic", domain.ErrGuidelineLookup)
	}

	if err := h.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait failed: %w", domain.ErrGuidelineLookup, err)
	}

	guideline, err := Execute(h.breaker, func() (*domain.Guideline, error) {
		return h.fetch(ctx, topic)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGuidelineLookup, err)
	}
	return guideline, nil
}

func (h *HTTPGuidelineClient) fetch(ctx context.Context, topic string) (*domain.Guideline, error) {
	reqURL := fmt.Sprintf("%s/guidelines/%s", h.baseURL, url.PathEscape(topic))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("guideline service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out guidelineResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !out.Success || out.Data == nil {
		return nil, fmt.Errorf("guideline service reported failure: %s", out.Error)
	}

	return out.Data, nil
}
