package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
	"github.com/womens-health-report-analyzer/internal/prediction"
)

// PipelineMetrics receives stage timings and external call outcomes
type PipelineMetrics interface {
	ObserveStage(stage string, d time.Duration, err error)
	ObserveExternal(capability string, err error)
	ObserveAnalysis(models []string, guidelinesFound, guidelinesTried int)
}

// AnalyzerConfig bounds the best-effort stages
type AnalyzerConfig struct {
	MaxPriorReports     int
	MaxGuidelineLookups int
	ComparisonTimeout   time.Duration
	GuidelineTimeout    time.Duration
	StorageTimeout      time.Duration
}

// DefaultAnalyzerConfig compares against 5 prior reports and enriches
// the first 3 detected conditions
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MaxPriorReports:     5,
		MaxGuidelineLookups: 3,
		ComparisonTimeout:   60 * time.Second,
		GuidelineTimeout:    10 * time.Second,
		StorageTimeout:      10 * time.Second,
	}
}

// AnalyzerDeps are the collaborators of the analyzer. Only Extractor and
// Repository are required.
type AnalyzerDeps struct {
	Extractor  domain.TextExtractor
	Predictor  *prediction.Client
	Comparator domain.Comparator
	Guidelines domain.GuidelineProvider
	Repository domain.ReportRepository
	Observer   domain.StageObserver
	Metrics    PipelineMetrics
}

// ReportAnalyzer runs the upload pipeline from raw document to stored
// analysis
type ReportAnalyzer struct {
	deps   AnalyzerDeps
	cfg    AnalyzerConfig
	logger *logrus.Logger

	now   func() time.Time
	newID func() string
}

// NewReportAnalyzer creates the pipeline orchestrator
func NewReportAnalyzer(deps AnalyzerDeps, cfg AnalyzerConfig, logger *logrus.Logger) (*ReportAnalyzer, error) {
	if deps.Extractor == nil {
		return nil, errors.New("report analyzer requires a text extractor")
	}
	if deps.Repository == nil {
		return nil, errors.New("report analyzer requires a repository")
	}

	defaults := DefaultAnalyzerConfig()
	if cfg.MaxPriorReports <= 0 {
		cfg.MaxPriorReports = defaults.MaxPriorReports
	}
	if cfg.MaxGuidelineLookups <= 0 {
		cfg.MaxGuidelineLookups = defaults.MaxGuidelineLookups
	}
	if cfg.ComparisonTimeout <= 0 {
		cfg.ComparisonTimeout = defaults.ComparisonTimeout
	}
	if cfg.GuidelineTimeout <= 0 {
		cfg.GuidelineTimeout = defaults.GuidelineTimeout
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = defaults.StorageTimeout
	}

	return &ReportAnalyzer{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}, nil
}

// Analyze extracts, parses and enriches an uploaded report, then stores it.
// Only extraction and persistence failures are fatal; the uploaded file is
// removed when either of them fails.
func (a *ReportAnalyzer) Analyze(ctx context.Context, doc domain.RawDocument) (*domain.ReportAnalysis, error) {
	if strings.TrimSpace(doc.UserID) == "" {
		return nil, domain.NewValidationError("user_id", "user id is required", doc.UserID)
	}

	reportID := a.newID()
	log := a.logger.WithFields(logrus.Fields{
		"report_id": reportID,
		"user_id":   doc.UserID,
		"file":      doc.FileName,
	})
	a.emit(reportID, doc.UserID, domain.StageUploaded, nil)

	// Extracting
	a.emit(reportID, doc.UserID, domain.StageExtracting, nil)
	started := time.Now()
	text, err := a.deps.Extractor.Extract(ctx, doc.Path, doc.Extension)
	a.observeStage(domain.StageExtracting, started, err)
	if err != nil {
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %w", domain.ErrExtraction, err)
		}
		log.WithError(err).Warn("Text extraction failed, discarding upload")
		a.removeUpload(doc.Path)
		a.emit(reportID, doc.UserID, domain.StageFailed, err)
		return nil, &domain.PipelineError{Stage: domain.StageExtracting, Err: err}
	}

	// Parsed
	started = time.Now()
	parsed := parser.ParseTests(text)
	reportType := DetectReportType(text, parsed.Observations)
	insights := DeriveInsights(parsed, reportType)

	reportName := doc.ReportName
	if reportName == "" {
		reportName = doc.FileName
	}
	report := &domain.ReportAnalysis{
		ID:                      reportID,
		UserID:                  doc.UserID,
		ReportName:              reportName,
		ReportType:              reportType,
		FileName:                doc.FileName,
		FilePath:                doc.Path,
		ExtractedText:           text,
		UploadDate:              a.now(),
		PatientInfo:             insights.PatientInfo,
		Tests:                   parsed.Observations,
		AbnormalFindings:        insights.AbnormalFindings,
		TrackingRecommendations: insights.TrackingRecommendations,
		Summary:                 insights.Summary,
		DetectedConditions:      []string{},
		MLPredictions:           []domain.PredictionResult{},
	}
	a.observeStage(domain.StageParsed, started, nil)
	a.emit(reportID, doc.UserID, domain.StageParsed, nil)
	log.WithFields(logrus.Fields{
		"tests":       len(parsed.Observations),
		"report_type": reportType,
	}).Debug("Report parsed")

	// Enriching
	a.emit(reportID, doc.UserID, domain.StageEnriching, nil)
	started = time.Now()
	guidelinesTried := a.enrich(ctx, report, parsed, insights, log)
	a.observeStage(domain.StageEnriching, started, nil)

	// Persisted
	started = time.Now()
	storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StorageTimeout)
	err = a.deps.Repository.Create(storeCtx, report)
	cancel()
	a.observeStage(domain.StagePersisted, started, err)
	if err != nil {
		err = storageError("", err)
		log.WithError(err).Error("Failed to persist report analysis")
		a.removeUpload(doc.Path)
		a.emit(reportID, doc.UserID, domain.StageFailed, err)
		return nil, &domain.PipelineError{Stage: domain.StagePersisted, Err: err}
	}
	a.emit(reportID, doc.UserID, domain.StagePersisted, nil)

	if len(report.DetectedConditions) > 0 {
		mergeCtx, cancel := context.WithTimeout(ctx, a.cfg.StorageTimeout)
		if err := a.deps.Repository.MergeConditions(mergeCtx, doc.UserID, report.DetectedConditions); err != nil {
			log.WithError(err).Warn("Failed to merge detected conditions into user profile")
		}
		cancel()
	}

	models := make([]string, len(report.MLPredictions))
	for i, p := range report.MLPredictions {
		models[i] = p.ModelKey
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.ObserveAnalysis(models, len(report.Guidelines), guidelinesTried)
	}

	a.emit(reportID, doc.UserID, domain.StageAvailable, nil)
	log.WithFields(logrus.Fields{
		"detected_conditions": len(report.DetectedConditions),
		"predictions":         len(report.MLPredictions),
		"comparison":          report.Comparison != nil,
		"guidelines":          len(report.Guidelines),
	}).Info("Report analysis completed")
	return report, nil
}

// enrich runs predictions and comparison side by side, then looks up
// guidelines for the detected conditions. It returns how many guideline
// lookups were attempted.
func (a *ReportAnalyzer) enrich(ctx context.Context, report *domain.ReportAnalysis, parsed parser.Result, insights Insights, log *logrus.Entry) int {
	var (
		predictions []domain.PredictionResult
		comparison  *domain.ComparisonResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		predictions = a.predict(gctx, parsed, report.PatientInfo)
		return nil
	})
	g.Go(func() error {
		comparison = a.compare(gctx, report, log)
		return nil
	})
	_ = g.Wait()

	if predictions != nil {
		report.MLPredictions = predictions
	}
	report.Comparison = comparison
	report.DetectedConditions = mergeNames(insights.Conditions, prediction.DetectedConditions(predictions))

	guidelines, tried := a.lookupGuidelines(ctx, report.DetectedConditions, log)
	report.Guidelines = guidelines
	return tried
}

func (a *ReportAnalyzer) predict(ctx context.Context, parsed parser.Result, info domain.PatientInfo) []domain.PredictionResult {
	if a.deps.Predictor == nil {
		return nil
	}
	return a.deps.Predictor.Derive(ctx, parsed.Lookup, prediction.PatientAge(info, parsed.Lookup))
}

func (a *ReportAnalyzer) compare(ctx context.Context, report *domain.ReportAnalysis, log *logrus.Entry) *domain.ComparisonResult {
	if a.deps.Comparator == nil {
		return nil
	}

	priorCtx, cancel := context.WithTimeout(ctx, a.cfg.StorageTimeout)
	prior, err := a.deps.Repository.FindByUser(priorCtx, report.UserID, a.cfg.MaxPriorReports)
	cancel()
	if err != nil {
		log.WithError(err).WithField("stage", "comparison").Warn("Could not load prior reports, skipping comparison")
		return nil
	}
	if len(prior) == 0 {
		return nil
	}

	series := ComparisonSeries(append(prior, report))

	compareCtx, cancel := context.WithTimeout(ctx, a.cfg.ComparisonTimeout)
	defer cancel()
	result, err := a.deps.Comparator.Compare(compareCtx, series)
	if a.deps.Metrics != nil {
		a.deps.Metrics.ObserveExternal("comparison", err)
	}
	if err != nil {
		log.WithError(err).WithField("stage", "comparison").Warn("Report comparison failed, continuing without it")
		return nil
	}
	return result
}

// lookupGuidelines fetches guidelines for the first detected conditions
// concurrently and keeps the successful ones in detection order
func (a *ReportAnalyzer) lookupGuidelines(ctx context.Context, conditions []string, log *logrus.Entry) ([]domain.Guideline, int) {
	if a.deps.Guidelines == nil || len(conditions) == 0 {
		return nil, 0
	}

	topics := conditions
	if len(topics) > a.cfg.MaxGuidelineLookups {
		topics = topics[:a.cfg.MaxGuidelineLookups]
	}

	slots := make([]*domain.Guideline, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	for i, topic := range topics {
		i, topic := i, topic
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, a.cfg.GuidelineTimeout)
			defer cancel()

			guideline, err := a.deps.Guidelines.Lookup(lookupCtx, topic)
			if a.deps.Metrics != nil {
				a.deps.Metrics.ObserveExternal("guidelines", err)
			}
			if err != nil {
				log.WithError(err).WithField("topic", topic).Debug("Guideline lookup failed")
				return nil
			}
			slots[i] = guideline
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Guideline
	for _, g := range slots {
		if g != nil {
			out = append(out, *g)
		}
	}
	return out, len(topics)
}

// ComparisonSeries reduces reports to the comparison input, oldest first
func ComparisonSeries(reports []*domain.ReportAnalysis) []domain.ComparisonReport {
	ordered := make([]*domain.ReportAnalysis, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UploadDate.Before(ordered[j].UploadDate)
	})

	series := make([]domain.ComparisonReport, len(ordered))
	for i, r := range ordered {
		tests := make([]domain.ComparisonTest, len(r.Tests))
		for j, t := range r.Tests {
			tests[j] = domain.ComparisonTest{TestName: t.RawName, Value: t.Value, Status: t.Status}
		}
		series[i] = domain.ComparisonReport{Date: r.UploadDate, Tests: tests}
	}
	return series
}

func mergeNames(lists ...[]string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// storageError tags err as a persistence failure unless the repository
// already did
func storageError(op string, err error) error {
	if !errors.Is(err, domain.ErrPersistence) {
		if op == "" {
			return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
	}
	if op == "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (a *ReportAnalyzer) removeUpload(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		a.logger.WithError(err).WithField("path", path).Warn("Failed to remove uploaded file")
	}
}

func (a *ReportAnalyzer) emit(reportID, userID string, stage domain.Stage, err error) {
	if a.deps.Observer == nil {
		return
	}
	event := domain.StageEvent{
		ReportID: reportID,
		UserID:   userID,
		Stage:    stage,
		At:       a.now(),
	}
	if err != nil {
		event.Error = domain.AsServiceError(err, "").Message
	}
	a.deps.Observer.OnStage(event)
}

func (a *ReportAnalyzer) observeStage(stage domain.Stage, started time.Time, err error) {
	if a.deps.Metrics == nil {
		return
	}
	a.deps.Metrics.ObserveStage(string(stage), time.Since(started), err)
}
