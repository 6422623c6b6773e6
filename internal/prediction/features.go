// Package prediction derives structured predictions from parsed test values.
package prediction

import (
	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/parser"
)

// Model keys stored with each prediction
const (
	ModelMaternalHealthRisk = "maternal_health_risk"
	ModelPCOS               = "pcos"
)

// Model describes one classification model and its feature contract
type Model struct {
	// Key names the prediction in stored results
	Key string
	// Artifact is the model name sent to the classification capability
	Artifact    string
	MinFeatures int
	Build       func(lookup map[string]float64, age *float64) domain.FeatureVector
}

// Eligible reports whether enough features are known to call the model
func (m Model) Eligible(features domain.FeatureVector) bool {
	return features.Present() >= m.MinFeatures
}

// Models returns the derivation models in invocation order
func Models() []Model {
	return []Model{
		{
			Key:         ModelMaternalHealthRisk,
			Artifact:    "Maternal_Health_Risk_Data_Set",
			MinFeatures: 4,
			Build:       MaternalFeatures,
		},
		{
			Key:         ModelPCOS,
			Artifact:    "pcos_dataset",
			MinFeatures: 3,
			Build:       PCOSFeatures,
		},
	}
}

// MaternalFeatures builds the maternal health risk feature vector
func MaternalFeatures(lookup map[string]float64, age *float64) domain.FeatureVector {
	return domain.FeatureVector{
		"Age":         age,
		"SystolicBP":  pick(lookup, parser.KeySystolicBP),
		"DiastolicBP": pick(lookup, parser.KeyDiastolicBP),
		"BS":          pick(lookup, parser.KeyGlucoseFasting, parser.KeyGlucosePostprandial, parser.KeyBloodSugar),
		"BodyTemp":    pick(lookup, parser.KeyBodyTemp),
		"HeartRate":   pick(lookup, parser.KeyHeartRate),
	}
}

// PCOSFeatures builds the PCOS feature vector. Menstrual irregularity cannot
// be read from a lab report and is always unknown.
func PCOSFeatures(lookup map[string]float64, age *float64) domain.FeatureVector {
	return domain.FeatureVector{
		"Age":                       age,
		"BMI":                       pick(lookup, parser.KeyBMI),
		"Testosterone_Level(ng/dL)": pick(lookup, parser.KeyTestosterone),
		"Antral_Follicle_Count":     pick(lookup, parser.KeyAFC),
		"Menstrual_Irregularity":    nil,
	}
}

// pick returns the value of the first key present in the lookup
func pick(lookup map[string]float64, keys ...string) *float64 {
	for _, k := range keys {
		if v, ok := lookup[k]; ok {
			v := v
			return &v
		}
	}
	return nil
}
