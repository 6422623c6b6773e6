package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
)

// Insights is the deterministic interpretation of one parsed report
type Insights struct {
	PatientInfo             domain.PatientInfo
	AbnormalFindings        []domain.AbnormalFinding
	TrackingRecommendations []string
	// Conditions are catalog names flagged by out-of-band lab values
	Conditions []string
	Summary    string
}

type labRule struct {
	key       func(map[string]float64) (float64, bool)
	label     string
	unit      string
	condition string
	grade     func(float64) domain.Severity
	concern   func(float64) string
	recommend string
}

// labRules share their thresholds with the condition engine
var labRules = []labRule{
	{
		key:       glucoseValue,
		label:     "Glucose",
		unit:      "mg/dL",
		condition: "Diabetes",
		grade:     GlucoseSeverity,
		concern:   func(float64) string { return "Elevated blood glucose" },
		recommend: "Monitor blood glucose and recheck HbA1c within 3 months",
	},
	{
		key:       lookupKey(parser.KeyHemoglobin),
		label:     "Hemoglobin",
		unit:      "g/dL",
		condition: "Anemia",
		grade:     HemoglobinSeverity,
		concern:   func(float64) string { return "Low hemoglobin, possible anemia" },
		recommend: "Recheck hemoglobin in 4 to 6 weeks and review iron intake",
	},
	{
		key:       lookupKey(parser.KeyTSH),
		label:     "TSH",
		unit:      "mIU/L",
		condition: "Thyroid Disorders",
		grade:     TSHSeverity,
		concern: func(v float64) string {
			if v < 0.3 {
				return "Low TSH, possible hyperthyroidism"
			}
			return "Elevated TSH, possible hypothyroidism"
		},
		recommend: "Repeat thyroid panel (TSH, T3, T4) in 6 to 8 weeks",
	},
}

func lookupKey(key string) func(map[string]float64) (float64, bool) {
	return func(lookup map[string]float64) (float64, bool) {
		v, ok := lookup[key]
		return v, ok
	}
}

// DeriveInsights grades the known lab values of a parsed report
func DeriveInsights(parsed parser.Result, reportType domain.ReportType) Insights {
	in := Insights{
		AbnormalFindings:        []domain.AbnormalFinding{},
		TrackingRecommendations: []string{},
	}
	if age, ok := parsed.Value(parser.KeyAge); ok {
		in.PatientInfo.Age = formatValue(age)
	}

	for _, rule := range labRules {
		v, ok := rule.key(parsed.Lookup)
		if !ok {
			continue
		}
		severity := rule.grade(v)
		if !isAbnormal(severity) {
			continue
		}
		in.AbnormalFindings = append(in.AbnormalFindings, domain.AbnormalFinding{
			Test:     rule.label,
			Value:    formatValue(v) + " " + rule.unit,
			Concern:  rule.concern(v),
			Severity: severity,
		})
		in.TrackingRecommendations = append(in.TrackingRecommendations, rule.recommend)
		in.Conditions = append(in.Conditions, rule.condition)
	}

	in.Summary = fmt.Sprintf("%s report with %d test results and %d abnormal findings",
		reportTypeLabel(reportType), len(parsed.Observations), len(in.AbnormalFindings))
	return in
}

func reportTypeLabel(t domain.ReportType) string {
	if t == "" {
		t = domain.ReportTypeGeneral
	}
	label := strings.ReplaceAll(string(t), "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
