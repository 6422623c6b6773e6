package domain

import "strings"

// conditionCatalog is the fixed, ordered list of tracked conditions.
var conditionCatalog = []string{
	"Periods & Ovulation",
	"PCOS/PCOD",
	"Endometriosis",
	"Pregnancy & Maternal Health",
	"Postpartum Health",
	"Menopause",
	"UTI",
	"Vaginal Health",
	"Thyroid Disorders",
	"Breast Cancer",
	"Cervical Cancer",
	"Anemia",
	"Osteoporosis",
	"Depression & Anxiety",
	"Stress/PTSD",
	"Body Image Disorder",
	"Obesity/Weight Issues",
	"Diabetes",
	"Hypertension",
	"Vitamin D & Calcium Deficiency",
	"Cardiovascular Disease",
}

// ConditionCatalog returns a copy of the condition catalog in display order
func ConditionCatalog() []string {
	out := make([]string, len(conditionCatalog))
	copy(out, conditionCatalog)
	return out
}

// FuzzyMatch reports whether either name contains the other, ignoring case.
// Empty names never match.
func FuzzyMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// MatchesAny reports whether name fuzzy-matches any entry of set
func MatchesAny(name string, set []string) bool {
	for _, s := range set {
		if FuzzyMatch(name, s) {
			return true
		}
	}
	return false
}
