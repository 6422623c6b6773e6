package service

import (
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
	"github.com/womens-health-report-analyzer/internal/prediction"
)

const noRecentData = "No recent report data available"

// ConditionInput is everything a condition handler may read
type ConditionInput struct {
	Condition       string
	ProfileDetected bool
	// Related holds the reports whose detected conditions match, newest first
	Related     []*domain.ReportAnalysis
	Latest      *domain.ReportAnalysis
	Lookup      map[string]float64
	Predictions map[string]domain.PredictionResult
}

// ConditionHandler refines the base assessment for one family of conditions
type ConditionHandler func(in ConditionInput, a *domain.ConditionAssessment)

type conditionRule struct {
	name    string
	matches func(lowerName string) bool
	assess  ConditionHandler
}

// containsAny matches a lower-cased condition name containing any of subs
func containsAny(subs ...string) func(string) bool {
	return func(lowerName string) bool {
		for _, sub := range subs {
			if strings.Contains(lowerName, sub) {
				return true
			}
		}
		return false
	}
}

// ConditionEngine scores the fixed condition catalog
type ConditionEngine struct {
	rules []conditionRule
}

// NewConditionEngine creates the engine with the built-in rule table
func NewConditionEngine() *ConditionEngine {
	e := &ConditionEngine{}
	e.initializeRules()
	return e
}

func (e *ConditionEngine) initializeRules() {
	e.addRule("pcos", containsAny("pcos"), assessPCOS)
	e.addRule("maternal", containsAny("pregnancy", "maternal"), assessMaternal)
	e.addRule("diabetes", containsAny("diabetes"), assessDiabetes)
	e.addRule("anemia", containsAny("anemia"), assessAnemia)
	e.addRule("thyroid", containsAny("thyroid"), assessThyroid)
	e.addRule("cervical", containsAny("cervical"), assessCervical)
}

func (e *ConditionEngine) addRule(name string, matches func(string) bool, assess ConditionHandler) {
	e.rules = append(e.rules, conditionRule{name: name, matches: matches, assess: assess})
}

// HandlerFor returns the name of the rule that scores a condition, or
// "default".
func (e *ConditionEngine) HandlerFor(condition string) string {
	if rule, ok := e.ruleFor(condition); ok {
		return rule.name
	}
	return "default"
}

func (e *ConditionEngine) ruleFor(condition string) (conditionRule, bool) {
	lower := strings.ToLower(condition)
	for _, rule := range e.rules {
		if rule.matches(lower) {
			return rule, true
		}
	}
	return conditionRule{}, false
}

// Assess computes one condition assessment. The first matching rule wins;
// conditions without a rule use the related-report fallback.
func (e *ConditionEngine) Assess(in ConditionInput) domain.ConditionAssessment {
	a := baseAssessment(in)

	rule, ok := e.ruleFor(in.Condition)
	if ok {
		rule.assess(in, &a)
		a.Recommendations = append([]string(nil), conditionRecommendations[rule.name]...)
	} else {
		assessDefault(in, &a)
	}

	if len(a.Recommendations) == 0 {
		a.Recommendations = genericRecommendations(in.Condition, a.Detected)
	}
	a.Status = StatusFor(a.Severity, a.Detected)
	return a
}

// AssessAll scores every catalog condition in catalog order
func (e *ConditionEngine) AssessAll(profile []string, reports []*domain.ReportAnalysis, lookup map[string]float64, predictions map[string]domain.PredictionResult) []domain.ConditionAssessment {
	var latest *domain.ReportAnalysis
	if len(reports) > 0 {
		latest = reports[0]
	}

	catalog := domain.ConditionCatalog()
	out := make([]domain.ConditionAssessment, len(catalog))
	for i, condition := range catalog {
		out[i] = e.Assess(ConditionInput{
			Condition:       condition,
			ProfileDetected: domain.MatchesAny(condition, profile),
			Related:         RelatedReports(condition, reports),
			Latest:          latest,
			Lookup:          lookup,
			Predictions:     predictions,
		})
	}
	return out
}

// RelatedReports keeps the reports whose detected conditions fuzzy-match
// the condition, preserving order.
func RelatedReports(condition string, reports []*domain.ReportAnalysis) []*domain.ReportAnalysis {
	var related []*domain.ReportAnalysis
	for _, r := range reports {
		if domain.MatchesAny(condition, r.DetectedConditions) {
			related = append(related, r)
		}
	}
	return related
}

func baseAssessment(in ConditionInput) domain.ConditionAssessment {
	a := domain.ConditionAssessment{
		Condition:     in.Condition,
		Detected:      in.ProfileDetected,
		ReportCount:   len(in.Related),
		CurrentHealth: noRecentData,
	}

	source := in.Latest
	if len(in.Related) > 0 {
		source = in.Related[0]
		date := source.UploadDate
		a.LastReportDate = &date
		if len(source.AbnormalFindings) > 0 {
			a.Severity = source.AbnormalFindings[0].Severity
		}
	}
	if source != nil && source.Summary != "" {
		a.CurrentHealth = source.Summary
	}
	return a
}

func assessPCOS(in ConditionInput, a *domain.ConditionAssessment) {
	p, ok := in.Predictions[prediction.ModelPCOS]
	if ok && p.Prediction.IsPositive() {
		a.Detected = true
		a.Severity = domain.SeverityModerate
		a.CurrentHealth = "PCOS model flagged a positive result"
		return
	}
	a.Severity = domain.SeverityMild
	if len(in.Related) > 0 {
		a.Detected = true
	}
}

func assessMaternal(in ConditionInput, a *domain.ConditionAssessment) {
	if len(in.Related) > 0 {
		a.Detected = true
	}
	p, ok := in.Predictions[prediction.ModelMaternalHealthRisk]
	if !ok {
		return
	}

	a.Detected = true
	risk := strings.ToLower(string(p.Prediction))
	switch {
	case strings.Contains(risk, "high"):
		a.Severity = domain.SeveritySevere
	case strings.Contains(risk, "mid"), strings.Contains(risk, "moderate"):
		a.Severity = domain.SeverityModerate
	case strings.Contains(risk, "low"):
		a.Severity = domain.SeverityMild
	}
	a.CurrentHealth = "Maternal health risk: " + string(p.Prediction)
}

func assessDiabetes(in ConditionInput, a *domain.ConditionAssessment) {
	if len(in.Related) > 0 {
		a.Detected = true
	}
	v, ok := glucoseValue(in.Lookup)
	if !ok {
		return
	}
	severity := GlucoseSeverity(v)
	if a.Severity == domain.SeverityNone {
		a.Severity = severity
	}
	if isAbnormal(severity) {
		a.Detected = true
	}
	a.CurrentHealth = "Latest glucose: " + formatValue(v) + " mg/dL"
}

func assessAnemia(in ConditionInput, a *domain.ConditionAssessment) {
	if len(in.Related) > 0 {
		a.Detected = true
	}
	v, ok := in.Lookup[parser.KeyHemoglobin]
	if !ok {
		return
	}
	a.Severity = HemoglobinSeverity(v)
	if isAbnormal(a.Severity) {
		a.Detected = true
	}
	a.CurrentHealth = "Latest hemoglobin: " + formatValue(v) + " g/dL"
}

func assessThyroid(in ConditionInput, a *domain.ConditionAssessment) {
	if len(in.Related) > 0 {
		a.Detected = true
	}
	v, ok := in.Lookup[parser.KeyTSH]
	if !ok {
		return
	}
	a.Severity = TSHSeverity(v)
	if isAbnormal(a.Severity) {
		a.Detected = true
	}
	a.CurrentHealth = "Latest TSH: " + formatValue(v) + " mIU/L"
}

// assessCervical has no lab signal. Detection comes only from the profile
// or related reports.
func assessCervical(in ConditionInput, a *domain.ConditionAssessment) {
	if in.ProfileDetected || len(in.Related) > 0 {
		a.Detected = true
		a.Severity = domain.SeverityModerate
	}
}

func assessDefault(in ConditionInput, a *domain.ConditionAssessment) {
	if len(in.Related) > 0 {
		a.Detected = true
	}
}

var conditionRecommendations = map[string][]string{
	"pcos": {
		"Track menstrual cycle regularity",
		"Check testosterone and insulin levels with your doctor",
		"Maintain regular physical activity and a balanced diet",
	},
	"maternal": {
		"Attend all scheduled antenatal care visits",
		"Monitor blood pressure and blood sugar regularly",
		"Take iron and folic acid supplements as prescribed",
	},
	"diabetes": {
		"Recheck fasting glucose and HbA1c",
		"Limit refined sugars and processed carbohydrates",
		"Exercise for at least 150 minutes per week",
	},
	"anemia": {
		"Increase iron-rich foods such as leafy greens and legumes",
		"Recheck hemoglobin in 4 to 6 weeks",
		"Ask your doctor about iron supplementation",
	},
	"thyroid": {
		"Repeat TSH with T3 and T4 in 6 to 8 weeks",
		"Consult an endocrinologist about abnormal results",
	},
	"cervical": {
		"Keep up regular Pap smear and HPV screening",
		"Discuss HPV vaccination with your doctor",
	},
}

func genericRecommendations(condition string, detected bool) []string {
	if detected {
		return []string{"Follow up with your healthcare provider about " + condition}
	}
	return []string{"Upload a recent report to start tracking " + condition}
}
