package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
)

const (
	maxRecentAbnormalities     = 10
	maxTrackingRecommendations = 10
)

// DashboardService builds the per-user health tracking view
type DashboardService struct {
	repo             domain.ReportRepository
	engine           *ConditionEngine
	guidelines       domain.GuidelineProvider
	guidelineTimeout time.Duration
	logger           *logrus.Logger
}

// NewDashboardService creates a dashboard service. guidelines may be nil.
func NewDashboardService(repo domain.ReportRepository, engine *ConditionEngine, guidelines domain.GuidelineProvider, guidelineTimeout time.Duration, logger *logrus.Logger) *DashboardService {
	if engine == nil {
		engine = NewConditionEngine()
	}
	if guidelineTimeout <= 0 {
		guidelineTimeout = 5 * time.Second
	}
	return &DashboardService{
		repo:             repo,
		engine:           engine,
		guidelines:       guidelines,
		guidelineTimeout: guidelineTimeout,
		logger:           logger,
	}
}

// Dashboard assesses every catalog condition from the user's stored reports
// and condition set
func (d *DashboardService) Dashboard(ctx context.Context, userID string) (*domain.Dashboard, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user id is required", userID)
	}

	reports, err := d.repo.FindByUser(ctx, userID, 0)
	if err != nil {
		return nil, storageError("loading reports", err)
	}
	profile, err := d.repo.Conditions(ctx, userID)
	if err != nil {
		return nil, storageError("loading conditions", err)
	}

	conditions := d.engine.AssessAll(profile, reports, CombinedLookup(reports), LatestPredictions(reports))
	d.attachGuidelineRefs(ctx, conditions)

	recent := RecentAbnormalities(reports, maxRecentAbnormalities)
	dashboard := &domain.Dashboard{
		Conditions:              conditions,
		RecentAbnormalities:     recent,
		TrackingRecommendations: PooledRecommendations(reports, maxTrackingRecommendations),
		Summary: domain.DashboardSummary{
			TotalReports:        len(reports),
			DetectedConditions:  len(profile),
			RecentAbnormalities: len(recent),
		},
	}

	d.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"reports": len(reports),
	}).Debug("Dashboard assembled")
	return dashboard, nil
}

// attachGuidelineRefs looks up every condition concurrently. Failures leave
// the ref empty.
func (d *DashboardService) attachGuidelineRefs(ctx context.Context, conditions []domain.ConditionAssessment) {
	if d.guidelines == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range conditions {
		i := i
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, d.guidelineTimeout)
			defer cancel()

			guideline, err := d.guidelines.Lookup(lookupCtx, conditions[i].Condition)
			if err != nil {
				d.logger.WithError(err).WithField("condition", conditions[i].Condition).Debug("Guideline lookup skipped")
				return nil
			}
			conditions[i].GuidelineRef = guideline.Ref()
			return nil
		})
	}
	_ = g.Wait()
}

// CombinedLookup merges the lab values of reports given newest first, so
// the most recent value of each test wins
func CombinedLookup(reports []*domain.ReportAnalysis) map[string]float64 {
	var all []domain.TestObservation
	for _, r := range reports {
		all = append(all, r.Tests...)
	}
	return parser.BuildLookup(all)
}

// LatestPredictions keeps the most recent stored prediction per model
func LatestPredictions(reports []*domain.ReportAnalysis) map[string]domain.PredictionResult {
	out := make(map[string]domain.PredictionResult)
	for _, r := range reports {
		for _, p := range r.MLPredictions {
			if _, seen := out[p.ModelKey]; !seen {
				out[p.ModelKey] = p
			}
		}
	}
	return out
}

// RecentAbnormalities flattens abnormal findings, newest report first
func RecentAbnormalities(reports []*domain.ReportAnalysis, limit int) []domain.RecentAbnormality {
	out := []domain.RecentAbnormality{}
	for _, r := range reports {
		for _, f := range r.AbnormalFindings {
			out = append(out, domain.RecentAbnormality{
				AbnormalFinding: f,
				ReportID:        r.ID,
				ReportDate:      r.UploadDate,
				ReportType:      r.ReportType,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReportDate.After(out[j].ReportDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PooledRecommendations dedups tracking recommendations across reports,
// keeping first-seen order
func PooledRecommendations(reports []*domain.ReportAnalysis, limit int) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range reports {
		for _, rec := range r.TrackingRecommendations {
			if _, ok := seen[rec]; ok {
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
