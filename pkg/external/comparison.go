package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/pkg/retry"
)

// TextGenerator produces a JSON document for a prompt
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	Name() string
}

// LLMComparator asks a generative model for per-parameter trends
type LLMComparator struct {
	generator TextGenerator
	breaker   *gobreaker.CircuitBreaker
	retry     retry.Config
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewLLMComparator wraps generator with a circuit breaker and retries
func NewLLMComparator(generator TextGenerator, timeout time.Duration, maxRetries int, logger *logrus.Logger) *LLMComparator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = maxRetries
	retryCfg.InitialDelay = 500 * time.Millisecond
	retryCfg.NonRetryableErrors = []error{errMalformedComparison, gobreaker.ErrOpenState}
	retryCfg.Logger = logger

	return &LLMComparator{
		generator: generator,
		breaker:   NewCircuitBreaker("comparison-"+generator.Name(), DefaultCircuitBreakerConfig(), logger),
		retry:     retryCfg,
		timeout:   timeout,
		logger:    logger,
	}
}

var errMalformedComparison = errors.New("malformed comparison output")

// Compare sends the series oldest first and validates the trends returned
func (c *LLMComparator) Compare(ctx context.Context, reports []domain.ComparisonReport) (*domain.ComparisonResult, error) {
	if len(reports) < 2 {
		return nil, fmt.Errorf("%w: need at least two reports, got %d", domain.ErrComparison, len(reports))
	}

	prompt, err := BuildComparisonPrompt(reports)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrComparison, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := retry.DoWithResult(ctx, c.retry, func() (*domain.ComparisonResult, error) {
		return Execute(c.breaker, func() (*domain.ComparisonResult, error) {
			raw, err := c.generator.GenerateJSON(ctx, prompt)
			if err != nil {
				return nil, err
			}
			return ParseComparison(raw)
		})
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"generator": c.generator.Name(),
			"reports":   len(reports),
		}).Warn("Report comparison failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrComparison, err)
	}

	c.logger.WithFields(logrus.Fields{
		"generator": c.generator.Name(),
		"trends":    len(result.Trends),
		"duration":  time.Since(start).String(),
	}).Debug("Report comparison completed")
	return result, nil
}

// BuildComparisonPrompt renders the series as indented JSON inside the
// trend instructions
func BuildComparisonPrompt(reports []domain.ComparisonReport) (string, error) {
	type wireReport struct {
		Date  string                  `json:"date"`
		Tests []domain.ComparisonTest `json:"tests"`
	}
	wire := make([]wireReport, len(reports))
	for i, r := range reports {
		tests := r.Tests
		if tests == nil {
			tests = []domain.ComparisonTest{}
		}
		wire[i] = wireReport{Date: r.Date.UTC().Format(time.RFC3339), Tests: tests}
	}

	body, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Analyze these medical reports over time and identify health trends:\n\n")
	b.Write(body)
	b.WriteString("\n\nIdentify which parameters are improving, worsening, or stable. Provide actionable recommendations.\n")
	b.WriteString(`Respond with JSON only, shaped as {"trends":[{"parameter":"","trend":"improving|worsening|stable","recommendation":""}],"overall_assessment":""}.`)
	return b.String(), nil
}

// ParseComparison decodes a generator answer. Code fences are stripped
// and every trend must be one of the three known directions.
func ParseComparison(raw string) (*domain.ComparisonResult, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", errMalformedComparison)
	}

	var result domain.ComparisonResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedComparison, err)
	}

	for i, t := range result.Trends {
		dir := domain.TrendDirection(strings.ToLower(strings.TrimSpace(string(t.Trend))))
		switch dir {
		case domain.TrendImproving, domain.TrendWorsening, domain.TrendStable:
			result.Trends[i].Trend = dir
		default:
			return nil, fmt.Errorf("%w: unknown trend %q for %q", errMalformedComparison, t.Trend, t.Parameter)
		}
	}
	if result.Trends == nil {
		result.Trends = []domain.ComparisonTrend{}
	}
	return &result, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NewComparator builds the configured comparator. It returns nil when
// comparison is disabled.
func NewComparator(ctx context.Context, cfg domain.ComparisonConfig, logger *logrus.Logger) (domain.Comparator, error) {
	var generator TextGenerator
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "gemini":
		g, err := NewGeminiGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		generator = g
	case "openai":
		generator = NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown comparison provider %q", cfg.Provider)
	}
	return NewLLMComparator(generator, cfg.Timeout, cfg.MaxRetries, logger), nil
}
