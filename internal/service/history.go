package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// HistoryService serves the stored reports of a user
type HistoryService struct {
	repo       domain.ReportRepository
	comparator domain.Comparator
	logger     *logrus.Logger
}

// NewHistoryService creates a history service. comparator may be nil, in
// which case CompareReports fails.
func NewHistoryService(repo domain.ReportRepository, comparator domain.Comparator, logger *logrus.Logger) *HistoryService {
	return &HistoryService{repo: repo, comparator: comparator, logger: logger}
}

// ListReports returns the user's reports newest first
func (h *HistoryService) ListReports(ctx context.Context, userID string) ([]*domain.ReportAnalysis, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user id is required", userID)
	}
	reports, err := h.repo.FindByUser(ctx, userID, 0)
	if err != nil {
		return nil, storageError("", err)
	}
	return reports, nil
}

// GetReport returns one report owned by the user
func (h *HistoryService) GetReport(ctx context.Context, userID, reportID string) (*domain.ReportAnalysis, error) {
	if userID == "" || reportID == "" {
		return nil, domain.NewValidationError("report_id", "user id and report id are required", reportID)
	}
	return h.repo.Get(ctx, userID, reportID)
}

// DeleteReport removes the stored analysis and its uploaded file
func (h *HistoryService) DeleteReport(ctx context.Context, userID, reportID string) error {
	report, err := h.GetReport(ctx, userID, reportID)
	if err != nil {
		return err
	}
	if err := h.repo.Delete(ctx, userID, reportID); err != nil {
		return err
	}

	if report.FilePath != "" {
		if err := os.Remove(report.FilePath); err != nil && !os.IsNotExist(err) {
			h.logger.WithError(err).WithField("report_id", reportID).Warn("Failed to remove report file")
		}
	}
	h.logger.WithFields(logrus.Fields{"report_id": reportID, "user_id": userID}).Info("Report deleted")
	return nil
}

// CompareReports runs the comparison capability over chosen reports in
// date order. Unlike the upload pipeline, a comparison failure is returned.
func (h *HistoryService) CompareReports(ctx context.Context, userID string, reportIDs []string) (*domain.ComparisonResult, error) {
	ids := mergeNames(reportIDs)
	if len(ids) < 2 {
		return nil, domain.NewValidationError("report_ids", "at least two distinct reports are required", reportIDs)
	}
	if h.comparator == nil {
		return nil, fmt.Errorf("%w: comparison is not configured", domain.ErrComparison)
	}

	reports := make([]*domain.ReportAnalysis, 0, len(ids))
	for _, id := range ids {
		r, err := h.repo.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	result, err := h.comparator.Compare(ctx, ComparisonSeries(reports))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Trends folds the stored comparison trends of every report, oldest first,
// into one history per parameter. Fewer than two reports yield no trends.
func (h *HistoryService) Trends(ctx context.Context, userID string) ([]domain.ParameterTrend, error) {
	reports, err := h.ListReports(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(reports) < 2 {
		return []domain.ParameterTrend{}, nil
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].UploadDate.Before(reports[j].UploadDate)
	})

	trends := []domain.ParameterTrend{}
	index := make(map[string]int)
	for _, r := range reports {
		if r.Comparison == nil {
			continue
		}
		for _, t := range r.Comparison.Trends {
			point := domain.TrendPoint{Date: r.UploadDate, Trend: t.Trend, Recommendation: t.Recommendation}
			if i, ok := index[t.Parameter]; ok {
				trends[i].History = append(trends[i].History, point)
				continue
			}
			index[t.Parameter] = len(trends)
			trends = append(trends, domain.ParameterTrend{Parameter: t.Parameter, History: []domain.TrendPoint{point}})
		}
	}
	return trends, nil
}

// ConditionDetail collects the reports that detected a condition
func (h *HistoryService) ConditionDetail(ctx context.Context, userID, condition string) (*domain.ConditionDetail, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil, domain.NewValidationError("condition", "condition name is required", condition)
	}

	reports, err := h.ListReports(ctx, userID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(condition)
	var related []*domain.ReportAnalysis
	for _, r := range reports {
		for _, dc := range r.DetectedConditions {
			if strings.Contains(strings.ToLower(dc), needle) {
				related = append(related, r)
				break
			}
		}
	}

	detail := &domain.ConditionDetail{
		Condition:    condition,
		Detected:     len(related) > 0,
		ReportsCount: len(related),
		Guidelines:   []domain.Guideline{},
		Timeline:     make([]domain.TimelineEntry, len(related)),
	}
	for i, r := range related {
		tests := r.Tests
		if tests == nil {
			tests = []domain.TestObservation{}
		}
		detail.Timeline[i] = domain.TimelineEntry{
			Date:             r.UploadDate,
			ReportID:         r.ID,
			AbnormalFindings: len(r.AbnormalFindings),
			Summary:          r.Summary,
			Tests:            tests,
		}
	}

	if len(related) > 0 {
		latest := related[0]
		detail.LatestReport = latest
		for _, g := range latest.Guidelines {
			if strings.Contains(strings.ToLower(g.Title), needle) {
				detail.Guidelines = append(detail.Guidelines, g)
			}
		}
	}
	return detail, nil
}
