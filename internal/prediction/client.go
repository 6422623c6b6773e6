package prediction

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
)

// Client runs every eligible model for a parsed report
type Client struct {
	classifier domain.Classifier
	models     []Model
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewClient creates a prediction client. A zero timeout leaves calls bounded
// only by the caller's context.
func NewClient(classifier domain.Classifier, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		classifier: classifier,
		models:     Models(),
		timeout:    timeout,
		logger:     logger,
	}
}

// PatientAge resolves the age feature from patient info, falling back to a
// parsed "age" test line.
func PatientAge(info domain.PatientInfo, lookup map[string]float64) *float64 {
	if age, err := strconv.ParseFloat(strings.TrimSpace(info.Age), 64); err == nil {
		return &age
	}
	return pick(lookup, parser.KeyAge)
}

// Derive calls each eligible model concurrently. Failed calls are logged and
// left out; results keep model order.
func (c *Client) Derive(ctx context.Context, lookup map[string]float64, age *float64) []domain.PredictionResult {
	slots := make([]*domain.PredictionResult, len(c.models))

	g, gctx := errgroup.WithContext(ctx)
	for i, model := range c.models {
		features := model.Build(lookup, age)
		if !model.Eligible(features) {
			c.logger.WithFields(logrus.Fields{
				"model":    model.Key,
				"features": features.Present(),
				"required": model.MinFeatures,
			}).Debug("Skipping model with too few features")
			continue
		}

		i, model := i, model
		g.Go(func() error {
			callCtx := gctx
			if c.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, c.timeout)
				defer cancel()
			}

			out, err := c.classifier.Classify(callCtx, model.Artifact, features)
			if err != nil {
				c.logger.WithError(err).WithField("model", model.Key).Warn("Prediction failed, omitting result")
				return nil
			}

			slots[i] = &domain.PredictionResult{
				ModelKey:    model.Key,
				Prediction:  out.Prediction,
				Probability: out.Probability,
				Features:    features,
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]domain.PredictionResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// DetectedConditions maps predictions to detected condition names
func DetectedConditions(predictions []domain.PredictionResult) []string {
	var out []string
	for _, p := range predictions {
		switch p.ModelKey {
		case ModelPCOS:
			if p.Prediction.IsPositive() {
				out = append(out, "PCOS")
			}
		case ModelMaternalHealthRisk:
			label := strings.TrimSpace(string(p.Prediction))
			if label == "" {
				continue
			}
			out = append(out, "Maternal "+label)
		}
	}
	return out
}
