package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ReportType classifies an uploaded document
type ReportType string

const (
	ReportTypeBloodTest    ReportType = "blood_test"
	ReportTypeUrineTest    ReportType = "urine_test"
	ReportTypeStoolTest    ReportType = "stool_test"
	ReportTypeUltrasound   ReportType = "ultrasound"
	ReportTypeXRay         ReportType = "x-ray"
	ReportTypeMRI          ReportType = "mri"
	ReportTypeCTScan       ReportType = "ct_scan"
	ReportTypePrescription ReportType = "prescription"
	ReportTypeDiagnosis    ReportType = "diagnosis"
	ReportTypeHormoneTest  ReportType = "hormone_test"
	ReportTypeGeneral      ReportType = "general"
)

// Severity is a per-condition severity tier. The zero value means no
// severity was assigned and is encoded as JSON null.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// MarshalJSON encodes the empty severity as null
func (s Severity) MarshalJSON() ([]byte, error) {
	if s == SeverityNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// Status is the UI-facing label derived from severity and detection
type Status string

const (
	StatusAttention Status = "attention"
	StatusMonitor   Status = "monitor"
	StatusOK        Status = "ok"
	StatusUnknown   Status = "unknown"
)

// Stage is a state of the report analysis pipeline
type Stage string

const (
	StageUploaded   Stage = "uploaded"
	StageExtracting Stage = "extracting"
	StageParsed     Stage = "parsed"
	StageEnriching  Stage = "enriching"
	StagePersisted  Stage = "persisted"
	StageAvailable  Stage = "available"
	StageFailed     Stage = "failed"
)

// RawDocument is an uploaded file owned by a single analysis request.
type RawDocument struct {
	Path       string `json:"path"`
	Extension  string `json:"extension"`
	FileName   string `json:"file_name"`
	ReportName string `json:"report_name,omitempty"`
	UserID     string `json:"user_id"`
	Size       int64  `json:"size"`
}

// TestObservation is one "name: value unit" line found in a report
type TestObservation struct {
	RawName        string `json:"test_name"`
	CanonicalKey   string `json:"canonical_key"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	// Status is never computed from ReferenceRange; it is only set by an
	// external enrichment step.
	Status   string `json:"status,omitempty"`
	Category string `json:"category"`
}

// PatientInfo holds demographic fields found in the report
type PatientInfo struct {
	Name       string `json:"name,omitempty"`
	Age        string `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	ReportDate string `json:"report_date,omitempty"`
}

// AbnormalFinding is a lab value outside its healthy band
type AbnormalFinding struct {
	Test     string   `json:"test"`
	Value    string   `json:"value"`
	Concern  string   `json:"concern"`
	Severity Severity `json:"severity"`
}

// Label is a model prediction. Classifiers answer with strings, numbers or
// booleans; all of them are kept in their textual form.
type Label string

// UnmarshalJSON accepts string, number and boolean predictions
func (l *Label) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*l = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	if raw == "true" || raw == "false" {
		*l = Label(raw)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*l = Label(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// IsPositive reports whether a binary classifier flagged the positive class
func (l Label) IsPositive() bool {
	switch strings.ToLower(strings.TrimSpace(string(l))) {
	case "1", "true", "yes", "positive":
		return true
	}
	return false
}

// FeatureVector maps model feature names to values. A nil value means the
// feature is unknown and is sent as JSON null.
type FeatureVector map[string]*float64

// Present counts the known features
func (f FeatureVector) Present() int {
	n := 0
	for _, v := range f {
		if v != nil {
			n++
		}
	}
	return n
}

// Classification is the raw answer of a classification capability
type Classification struct {
	Prediction  Label              `json:"prediction"`
	Probability map[string]float64 `json:"proba,omitempty"`
}

// PredictionResult is a classification stored with the analysis
type PredictionResult struct {
	ModelKey    string             `json:"model"`
	Prediction  Label              `json:"prediction"`
	Probability map[string]float64 `json:"proba,omitempty"`
	Features    FeatureVector      `json:"features"`
}

// TrendDirection describes how a parameter moved between reports
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// ComparisonTrend is a per-parameter trend
type ComparisonTrend struct {
	Parameter      string         `json:"parameter"`
	Trend          TrendDirection `json:"trend"`
	Recommendation string         `json:"recommendation"`
}

// ComparisonResult is embedded in a report, never stored on its own
type ComparisonResult struct {
	Trends            []ComparisonTrend `json:"trends"`
	OverallAssessment string            `json:"overall_assessment"`
}

// ComparisonTest is the reduced test shape sent for comparison
type ComparisonTest struct {
	TestName string `json:"test_name"`
	Value    string `json:"value"`
	Status   string `json:"status,omitempty"`
}

// ComparisonReport is one point of the comparison series
type ComparisonReport struct {
	Date  time.Time        `json:"date"`
	Tests []ComparisonTest `json:"tests"`
}

// Guideline is a guideline snippet for a topic
type Guideline struct {
	Title           string   `json:"title"`
	Recommendations []string `json:"recommendations"`
	Source          string   `json:"source"`
	Note            string   `json:"note,omitempty"`
}

// GuidelineRef is the truncated guideline shown on the dashboard
type GuidelineRef struct {
	Title               string `json:"title"`
	RecommendationCount int    `json:"recommendation_count"`
	Source              string `json:"source"`
}

// Ref truncates a guideline for dashboard display
func (g *Guideline) Ref() *GuidelineRef {
	if g == nil {
		return nil
	}
	return &GuidelineRef{
		Title:               g.Title,
		RecommendationCount: len(g.Recommendations),
		Source:              g.Source,
	}
}

// ReportAnalysis is the persisted aggregate for one uploaded report.
// It is immutable after persistence.
type ReportAnalysis struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ReportName    string     `json:"report_name"`
	ReportType    ReportType `json:"report_type"`
	FileName      string     `json:"file_name"`
	FilePath      string     `json:"file_path"`
	ExtractedText string     `json:"extracted_text,omitempty"`
	UploadDate    time.Time  `json:"upload_date"`
	Tags          []string   `json:"tags,omitempty"`

	PatientInfo             PatientInfo        `json:"patient_info"`
	Tests                   []TestObservation  `json:"tests"`
	AbnormalFindings        []AbnormalFinding  `json:"abnormal_findings"`
	DetectedConditions      []string           `json:"detected_conditions"`
	TrackingRecommendations []string           `json:"tracking_recommendations"`
	Summary                 string             `json:"summary"`
	MLPredictions           []PredictionResult `json:"ml_predictions"`

	Comparison *ComparisonResult `json:"comparison"`
	Guidelines []Guideline       `json:"who_guidelines,omitempty"`
}

// Prediction returns the stored prediction for a model key
func (r *ReportAnalysis) Prediction(modelKey string) (PredictionResult, bool) {
	for _, p := range r.MLPredictions {
		if p.ModelKey == modelKey {
			return p, true
		}
	}
	return PredictionResult{}, false
}

// ConditionAssessment is the derived per-condition view on the dashboard.
// It is recomputed on every request.
type ConditionAssessment struct {
	Condition       string        `json:"condition"`
	Detected        bool          `json:"detected"`
	Severity        Severity      `json:"severity"`
	Status          Status        `json:"status"`
	CurrentHealth   string        `json:"current_health"`
	Recommendations []string      `json:"recommendations"`
	ReportCount     int           `json:"report_count"`
	LastReportDate  *time.Time    `json:"last_report_date"`
	GuidelineRef    *GuidelineRef `json:"guideline_ref,omitempty"`
}

// RecentAbnormality is an abnormal finding flattened with its report
type RecentAbnormality struct {
	AbnormalFinding
	ReportID   string     `json:"report_id"`
	ReportDate time.Time  `json:"report_date"`
	ReportType ReportType `json:"report_type"`
}

// DashboardSummary holds the headline counters
type DashboardSummary struct {
	TotalReports        int `json:"total_reports"`
	DetectedConditions  int `json:"detected_conditions"`
	RecentAbnormalities int `json:"recent_abnormalities"`
}

// Dashboard is the full health-tracking view for a user
type Dashboard struct {
	Conditions              []ConditionAssessment `json:"conditions"`
	Summary                 DashboardSummary      `json:"summary"`
	RecentAbnormalities     []RecentAbnormality   `json:"recent_abnormalities"`
	TrackingRecommendations []string              `json:"tracking_recommendations"`
}

// TrendPoint is one comparison trend observed on a report date
type TrendPoint struct {
	Date           time.Time      `json:"date"`
	Trend          TrendDirection `json:"trend"`
	Recommendation string         `json:"recommendation"`
}

// ParameterTrend is the history of one parameter across reports
type ParameterTrend struct {
	Parameter string       `json:"parameter"`
	History   []TrendPoint `json:"history"`
}

// TimelineEntry is one report in a condition timeline
type TimelineEntry struct {
	Date             time.Time         `json:"date"`
	ReportID         string            `json:"report_id"`
	AbnormalFindings int               `json:"abnormal_findings"`
	Summary          string            `json:"summary"`
	Tests            []TestObservation `json:"tests"`
}

// ConditionDetail describes one condition across the user's reports
type ConditionDetail struct {
	Condition    string          `json:"condition"`
	Detected     bool            `json:"detected"`
	ReportsCount int             `json:"reports_count"`
	Guidelines   []Guideline     `json:"who_guidelines"`
	Timeline     []TimelineEntry `json:"timeline"`
	LatestReport *ReportAnalysis `json:"latest_report"`
}

// ChatResponse is the answer to a free-text question
type ChatResponse struct {
	Answer      string   `json:"answer"`
	ReportCount int      `json:"report_count"`
	Conditions  []string `json:"known_conditions"`
}

// StageEvent is published on every pipeline state transition
type StageEvent struct {
	ReportID string    `json:"report_id"`
	UserID   string    `json:"user_id"`
	Stage    Stage     `json:"stage"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
