package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
)

func encodeReport(report *domain.ReportAnalysis) ([]byte, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report is required", nil)
	}
	if report.ID == "" || report.UserID == "" {
		return nil, domain.NewValidationError("report", "id and user_id are required", report.ID)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding report %s: %w", domain.ErrPersistence, report.ID, err)
	}
	return payload, nil
}

func decodeReport(payload []byte) (*domain.ReportAnalysis, error) {
	var report domain.ReportAnalysis
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("%w: decoding report: %w", domain.ErrPersistence, err)
	}
	return &report, nil
}

// cleanConditions trims, drops blanks and removes duplicates while keeping
// first-seen order
func cleanConditions(conditions []string) []string {
	seen := make(map[string]struct{}, len(conditions))
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func notFound(reportID string) error {
	return fmt.Errorf("report %s: %w", reportID, domain.ErrNotFound)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
