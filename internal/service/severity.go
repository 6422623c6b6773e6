package service

import (
	"sort"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
)

// GlucoseSeverity grades a blood glucose value in mg/dL
func GlucoseSeverity(v float64) domain.Severity {
	switch {
	case v >= 200:
		return domain.SeveritySevere
	case v >= 140:
		return domain.SeverityModerate
	default:
		return domain.SeverityMild
	}
}

// HemoglobinSeverity grades a hemoglobin value in g/dL
func HemoglobinSeverity(v float64) domain.Severity {
	switch {
	case v < 8:
		return domain.SeveritySevere
	case v < 12:
		return domain.SeverityModerate
	default:
		return domain.SeverityMild
	}
}

// TSHSeverity grades a TSH value in mIU/L. Both a high and a very low TSH
// are abnormal.
func TSHSeverity(v float64) domain.Severity {
	switch {
	case v > 10:
		return domain.SeveritySevere
	case v > 4.5:
		return domain.SeverityModerate
	case v < 0.3:
		return domain.SeverityModerate
	default:
		return domain.SeverityMild
	}
}

// StatusFor maps severity and detection to the dashboard status
func StatusFor(severity domain.Severity, detected bool) domain.Status {
	switch severity {
	case domain.SeveritySevere:
		return domain.StatusAttention
	case domain.SeverityModerate:
		return domain.StatusMonitor
	}
	if detected {
		return domain.StatusOK
	}
	return domain.StatusUnknown
}

func isAbnormal(s domain.Severity) bool {
	return s == domain.SeverityModerate || s == domain.SeveritySevere
}

// glucoseValue prefers fasting, then postprandial, then any other key
// mentioning glucose.
func glucoseValue(lookup map[string]float64) (float64, bool) {
	for _, key := range []string{parser.KeyGlucoseFasting, parser.KeyGlucosePostprandial, parser.KeyGlucose} {
		if v, ok := lookup[key]; ok {
			return v, true
		}
	}

	keys := make([]string, 0)
	for key := range lookup {
		if strings.Contains(key, "glucose") {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, false
	}
	sort.Strings(keys)
	return lookup[keys[0]], true
}
