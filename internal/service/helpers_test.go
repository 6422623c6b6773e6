package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// memRepo is an in-memory ReportRepository
type memRepo struct {
	mu         sync.Mutex
	reports    []*domain.ReportAnalysis
	conditions map[string][]string
	createErr  error
	findErr    error
	merges     int
}

func newMemRepo() *memRepo {
	return &memRepo{conditions: make(map[string][]string)}
}

func (m *memRepo) Create(ctx context.Context, r *domain.ReportAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.reports = append(m.reports, r)
	return nil
}

func (m *memRepo) Get(ctx context.Context, userID, reportID string) (*domain.ReportAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == reportID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.ReportAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*domain.ReportAnalysis
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadDate.After(out[j].UploadDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Delete(ctx context.Context, userID, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reports {
		if r.ID == reportID && r.UserID == userID {
			m.reports = append(m.reports[:i], m.reports[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memRepo) MergeConditions(ctx context.Context, userID string, conditions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges++
	m.conditions[userID] = mergeNames(m.conditions[userID], conditions)
	return nil
}

func (m *memRepo) Conditions(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.conditions[userID]...), nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// staticExtractor returns fixed text or error
type staticExtractor struct {
	text string
	err  error
}

func (s staticExtractor) Extract(ctx context.Context, path, ext string) (string, error) {
	return s.text, s.err
}

// fakeClassifier answers per model artifact
type fakeClassifier struct {
	mu        sync.Mutex
	responses map[string]domain.Label
	fail      map[string]bool
	calls     []string
}

func (f *fakeClassifier) Classify(ctx context.Context, model string, features domain.FeatureVector) (*domain.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if f.fail[model] {
		return nil, domain.ErrClassification
	}
	return &domain.Classification{Prediction: f.responses[model]}, nil
}

// fakeComparator records the series it was given
type fakeComparator struct {
	mu     sync.Mutex
	result *domain.ComparisonResult
	err    error
	series [][]domain.ComparisonReport
}

func (f *fakeComparator) Compare(ctx context.Context, reports []domain.ComparisonReport) (*domain.ComparisonResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = append(f.series, reports)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeGuidelines fails for topics listed in fail
type fakeGuidelines struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeGuidelines) Lookup(ctx context.Context, topic string) (*domain.Guideline, error) {
	f.mu.Lock()
	f.calls = append(f.calls, topic)
	f.mu.Unlock()
	if f.fail[topic] {
		return nil, errors.New("guideline service unavailable")
	}
	return &domain.Guideline{
		Title:           topic + " guideline",
		Recommendations: []string{"one", "two"},
		Source:          "WHO",
	}, nil
}

// recordingObserver keeps every stage event
type recordingObserver struct {
	mu     sync.Mutex
	events []domain.StageEvent
}

func (r *recordingObserver) OnStage(e domain.StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) stages() []domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Stage, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}
