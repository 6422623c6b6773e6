package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/extraction"
	"github.com/womens-health-report-analyzer/internal/metrics"
	"github.com/womens-health-report-analyzer/internal/parser"
	"github.com/womens-health-report-analyzer/internal/prediction"
)

type fixedDocument struct{ text string }

func (f fixedDocument) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, nil
}

func writeUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	return path
}

func newTestAnalyzer(t *testing.T, deps AnalyzerDeps) *ReportAnalyzer {
	t.Helper()
	a, err := NewReportAnalyzer(deps, AnalyzerConfig{}, quietLogger())
	require.NoError(t, err)
	return a
}

func TestNewReportAnalyzer_RequiresCollaborators(t *testing.T) {
	_, err := NewReportAnalyzer(AnalyzerDeps{Repository: newMemRepo()}, AnalyzerConfig{}, quietLogger())
	assert.Error(t, err)
	_, err = NewReportAnalyzer(AnalyzerDeps{Extractor: staticExtractor{}}, AnalyzerConfig{}, quietLogger())
	assert.Error(t, err)
}

func TestAnalyze_HemoglobinEndToEnd(t *testing.T) {
	repo := newMemRepo()
	observer := &recordingObserver{}
	path := writeUpload(t, "cbc.pdf")

	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: "Hemoglobin: 7.5 g/dL"},
		Repository: repo,
		Observer:   observer,
		Guidelines: &fakeGuidelines{},
		Metrics:    metrics.NewCollector(),
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{
		Path: path, Extension: ".pdf", FileName: "cbc.pdf", UserID: "u1",
	})
	require.NoError(t, err)

	require.Len(t, report.Tests, 1)
	obs := report.Tests[0]
	assert.Equal(t, "hemoglobin", obs.CanonicalKey)
	assert.Equal(t, "7.5", obs.Value)
	assert.Equal(t, "g/dL", obs.Unit)
	assert.Empty(t, obs.Status)

	assert.Equal(t, domain.ReportTypeBloodTest, report.ReportType)
	assert.Equal(t, "cbc.pdf", report.ReportName)
	assert.Equal(t, []string{"Anemia"}, report.DetectedConditions)
	require.Len(t, report.AbnormalFindings, 1)
	assert.Equal(t, domain.SeveritySevere, report.AbnormalFindings[0].Severity)
	require.Len(t, report.Guidelines, 1)
	assert.Nil(t, report.Comparison)

	assert.Equal(t, 1, repo.count())
	assert.Equal(t, []string{"Anemia"}, repo.conditions["u1"])
	assert.FileExists(t, path)

	assert.Equal(t, []domain.Stage{
		domain.StageUploaded, domain.StageExtracting, domain.StageParsed,
		domain.StageEnriching, domain.StagePersisted, domain.StageAvailable,
	}, observer.stages())

	dash, err := NewDashboardService(repo, nil, nil, 0, quietLogger()).Dashboard(context.Background(), "u1")
	require.NoError(t, err)
	anemia := dash.Conditions[11]
	require.Equal(t, "Anemia", anemia.Condition)
	assert.True(t, anemia.Detected)
	assert.Equal(t, domain.SeveritySevere, anemia.Severity)
	assert.Equal(t, domain.StatusAttention, anemia.Status)
}

func TestAnalyze_InsufficientTextDeletesUpload(t *testing.T) {
	repo := newMemRepo()
	observer := &recordingObserver{}
	path := writeUpload(t, "scan.pdf")

	adapter := extraction.NewAdapter(fixedDocument{text: "0123456789"}, nil, nil, quietLogger())
	analyzer := newTestAnalyzer(t, AnalyzerDeps{Extractor: adapter, Repository: repo, Observer: observer})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{
		Path: path, Extension: "pdf", FileName: "scan.pdf", UserID: "u1",
	})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.ErrorIs(t, err, domain.ErrInsufficientText)
	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.StageExtracting, pe.Stage)

	assert.NoFileExists(t, path)
	assert.Zero(t, repo.count())
	stages := observer.stages()
	assert.Equal(t, domain.StageFailed, stages[len(stages)-1])
}

func TestAnalyze_UnsupportedType(t *testing.T) {
	path := writeUpload(t, "notes.docx")
	adapter := extraction.NewAdapter(fixedDocument{text: "irrelevant"}, nil, nil, quietLogger())
	analyzer := newTestAnalyzer(t, AnalyzerDeps{Extractor: adapter, Repository: newMemRepo()})

	_, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: path, Extension: ".docx", UserID: "u1"})

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Equal(t, domain.CodeUnsupportedType, domain.CodeFor(err))
	assert.NoFileExists(t, path)
}

func TestAnalyze_ComparisonFailureIsNotFatal(t *testing.T) {
	repo := newMemRepo()
	repo.reports = append(repo.reports, &domain.ReportAnalysis{
		ID: "prior", UserID: "u1", UploadDate: time.Now().Add(-48 * time.Hour),
		Tests: []domain.TestObservation{{RawName: "Hemoglobin", Value: "9"}},
	})

	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: "Hemoglobin: 11 g/dL\nTSH: 2.1 mIU/L"},
		Repository: repo,
		Comparator: &fakeComparator{err: domain.ErrComparison},
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: writeUpload(t, "a.png"), Extension: ".png", UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, report.Comparison)
	assert.Equal(t, domain.ReportTypeHormoneTest, report.ReportType)
	assert.Equal(t, 2, repo.count())
}

func TestAnalyze_ComparisonSeriesIsOldestFirst(t *testing.T) {
	repo := newMemRepo()
	for i, v := range []string{"8", "9", "10"} {
		repo.reports = append(repo.reports, &domain.ReportAnalysis{
			ID: v, UserID: "u1", UploadDate: time.Now().AddDate(0, 0, -10+i),
			Tests: []domain.TestObservation{{RawName: "Hemoglobin", Value: v}},
		})
	}
	comparator := &fakeComparator{result: &domain.ComparisonResult{
		Trends:            []domain.ComparisonTrend{{Parameter: "Hemoglobin", Trend: domain.TrendImproving}},
		OverallAssessment: "Improving",
	}}

	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: "Hemoglobin: 11.5 g/dL"},
		Repository: repo,
		Comparator: comparator,
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: writeUpload(t, "b.pdf"), Extension: ".pdf", UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, report.Comparison)
	assert.Equal(t, "Improving", report.Comparison.OverallAssessment)

	require.Len(t, comparator.series, 1)
	series := comparator.series[0]
	require.Len(t, series, 4)
	assert.Equal(t, "8", series[0].Tests[0].Value)
	assert.Equal(t, "11.5", series[3].Tests[0].Value)
}

func TestAnalyze_NoPriorReportsSkipsComparison(t *testing.T) {
	comparator := &fakeComparator{}
	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: "Hemoglobin: 13 g/dL"},
		Repository: newMemRepo(),
		Comparator: comparator,
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: writeUpload(t, "c.pdf"), Extension: ".pdf", UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, report.Comparison)
	assert.Empty(t, comparator.series)
	assert.Empty(t, report.DetectedConditions)
}

func TestAnalyze_PredictionsAndGuidelines(t *testing.T) {
	classifier := &fakeClassifier{responses: map[string]domain.Label{
		"Maternal_Health_Risk_Data_Set": "high risk",
		"pcos_dataset":                  "1",
	}}
	guidelines := &fakeGuidelines{fail: map[string]bool{"PCOS": true}}
	repo := newMemRepo()

	text := "Age: 29\nSystolic BP: 150 mmHg\nDiastolic BP: 95 mmHg\nFasting Glucose: 250 mg/dL\nHeart Rate: 88 bpm\nBMI: 31\nTestosterone: 80 ng/dL\nHemoglobin: 10 g/dL"
	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: text},
		Predictor:  prediction.NewClient(classifier, time.Second, quietLogger()),
		Guidelines: guidelines,
		Repository: repo,
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: writeUpload(t, "d.pdf"), Extension: ".pdf", UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, report.MLPredictions, 2)
	assert.Equal(t, prediction.ModelMaternalHealthRisk, report.MLPredictions[0].ModelKey)
	assert.Equal(t, prediction.ModelPCOS, report.MLPredictions[1].ModelKey)
	assert.Equal(t, "29", report.PatientInfo.Age)

	assert.Equal(t, []string{"Diabetes", "Anemia", "Maternal high risk", "PCOS"}, report.DetectedConditions)

	// only the first three conditions are looked up, failures are dropped
	assert.ElementsMatch(t, []string{"Diabetes", "Anemia", "Maternal high risk"}, guidelines.calls)
	require.Len(t, report.Guidelines, 3)
	assert.Equal(t, "Diabetes guideline", report.Guidelines[0].Title)
	assert.Equal(t, "Anemia guideline", report.Guidelines[1].Title)
	assert.Equal(t, "Maternal high risk guideline", report.Guidelines[2].Title)
}

func TestAnalyze_FailedPredictionIsOmitted(t *testing.T) {
	classifier := &fakeClassifier{
		responses: map[string]domain.Label{"pcos_dataset": "0"},
		fail:      map[string]bool{"Maternal_Health_Risk_Data_Set": true},
	}
	text := "Age: 30\nSystolic BP: 120\nDiastolic BP: 80\nHeart Rate: 70\nBMI: 22\nTestosterone: 40"
	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: text},
		Predictor:  prediction.NewClient(classifier, time.Second, quietLogger()),
		Repository: newMemRepo(),
	})

	report, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: writeUpload(t, "e.pdf"), Extension: ".pdf", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, report.MLPredictions, 1)
	assert.Equal(t, prediction.ModelPCOS, report.MLPredictions[0].ModelKey)
	assert.Empty(t, report.DetectedConditions)
}

func TestAnalyze_PersistenceFailure(t *testing.T) {
	repo := newMemRepo()
	repo.createErr = errors.New("disk full")
	path := writeUpload(t, "f.pdf")

	analyzer := newTestAnalyzer(t, AnalyzerDeps{
		Extractor:  staticExtractor{text: "Hemoglobin: 7.5 g/dL"},
		Repository: repo,
	})

	_, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: path, Extension: ".pdf", UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.CodePersistence, domain.CodeFor(err))
	assert.Zero(t, repo.merges)
	assert.NoFileExists(t, path)
}

func TestAnalyze_RequiresUser(t *testing.T) {
	analyzer := newTestAnalyzer(t, AnalyzerDeps{Extractor: staticExtractor{}, Repository: newMemRepo()})
	_, err := analyzer.Analyze(context.Background(), domain.RawDocument{Path: "x.pdf", Extension: ".pdf"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDetectReportType(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		tests []domain.TestObservation
		want  domain.ReportType
	}{
		{"hormone marker", "", []domain.TestObservation{{RawName: "Free T4"}}, domain.ReportTypeHormoneTest},
		{"blood test", "urine", []domain.TestObservation{{RawName: "Hemoglobin"}}, domain.ReportTypeBloodTest},
		{"urine before stool", "urine and stool sample", nil, domain.ReportTypeUrineTest},
		{"ultrasound", "Pelvic ULTRASOUND findings", nil, domain.ReportTypeUltrasound},
		{"xray", "chest xray", nil, domain.ReportTypeXRay},
		{"mri", "brain mri", nil, domain.ReportTypeMRI},
		{"ct", "ct abdomen", nil, domain.ReportTypeCTScan},
		{"prescription", "rx prescription", nil, domain.ReportTypePrescription},
		{"general", "hello world", nil, domain.ReportTypeGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectReportType(tt.text, tt.tests))
		})
	}
}

func TestDeriveInsightsSummary(t *testing.T) {
	in := DeriveInsights(parser.ParseTests("Glucose: 150 mg/dL\nTSH: 0.1"), domain.ReportTypeBloodTest)
	require.Len(t, in.AbnormalFindings, 2)
	assert.Equal(t, "Elevated blood glucose", in.AbnormalFindings[0].Concern)
	assert.Equal(t, "Low TSH, possible hyperthyroidism", in.AbnormalFindings[1].Concern)
	assert.Equal(t, []string{"Diabetes", "Thyroid Disorders"}, in.Conditions)
	assert.Equal(t, "Blood test report with 2 test results and 2 abnormal findings", in.Summary)
}
