package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// ChatService answers free-text questions through the QA capability
type ChatService struct {
	qa      domain.QuestionAnswerer
	repo    domain.ReportRepository
	timeout time.Duration
	logger  *logrus.Logger
}

// NewChatService creates a chat service. timeout defaults to 60s.
func NewChatService(qa domain.QuestionAnswerer, repo domain.ReportRepository, timeout time.Duration, logger *logrus.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatService{qa: qa, repo: repo, timeout: timeout, logger: logger}
}

// Chat answers one message. A QA failure is returned to the caller; there
// is no rule-based fallback.
func (c *ChatService) Chat(ctx context.Context, userID, message string) (*domain.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.NewValidationError("message", "message is required", message)
	}
	if c.qa == nil {
		return nil, fmt.Errorf("%w: question answering is not configured", domain.ErrClassification)
	}

	resp := &domain.ChatResponse{Conditions: []string{}}
	if c.repo != nil && userID != "" {
		if reports, err := c.repo.FindByUser(ctx, userID, 0); err == nil {
			resp.ReportCount = len(reports)
		} else {
			c.logger.WithError(err).Debug("Chat context: reports unavailable")
		}
		if conditions, err := c.repo.Conditions(ctx, userID); err == nil && conditions != nil {
			resp.Conditions = conditions
		}
	}

	qaCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.qa.Answer(qaCtx, message)
	if err != nil {
		if !errors.Is(err, domain.ErrClassification) {
			err = fmt.Errorf("%w: %w", domain.ErrClassification, err)
		}
		c.logger.WithError(err).WithField("user_id", userID).Warn("Chat answer failed")
		return nil, err
	}

	resp.Answer = answer
	return resp, nil
}
