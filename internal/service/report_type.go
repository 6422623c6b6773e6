package service

import (
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
)

var hormoneMarkers = []string{"tsh", "t3", "t4", "testosterone"}

type keywordType struct {
	keywords []string
	t        domain.ReportType
}

// keywordTypes are checked in order against the raw text
var keywordTypes = []keywordType{
	{[]string{"urine"}, domain.ReportTypeUrineTest},
	{[]string{"stool"}, domain.ReportTypeStoolTest},
	{[]string{"ultrasound"}, domain.ReportTypeUltrasound},
	{[]string{"x-ray", "xray"}, domain.ReportTypeXRay},
	{[]string{"mri"}, domain.ReportTypeMRI},
	{[]string{"ct"}, domain.ReportTypeCTScan},
	{[]string{"prescription"}, domain.ReportTypePrescription},
	{[]string{"diagnosis"}, domain.ReportTypeDiagnosis},
}

// DetectReportType guesses the report type. Parsed tests decide between
// hormone and blood tests; the raw text is only consulted when nothing was
// parsed.
func DetectReportType(text string, tests []domain.TestObservation) domain.ReportType {
	if len(tests) > 0 {
		for _, t := range tests {
			name := strings.ToLower(t.RawName)
			for _, marker := range hormoneMarkers {
				if strings.Contains(name, marker) {
					return domain.ReportTypeHormoneTest
				}
			}
		}
		return domain.ReportTypeBloodTest
	}

	lower := strings.ToLower(text)
	for _, kt := range keywordTypes {
		for _, kw := range kt.keywords {
			if strings.Contains(lower, kw) {
				return kt.t
			}
		}
	}
	return domain.ReportTypeGeneral
}
