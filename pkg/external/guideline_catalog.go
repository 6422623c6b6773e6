package external

import (
	"context"
	"fmt"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
)

type catalogEntry struct {
	key       string
	guideline domain.Guideline
}

// whoCatalog is matched in order; the first key related to the topic wins.
var whoCatalog = []catalogEntry{
	{"maternal_health", domain.Guideline{
		Title: "WHO Maternal Health Guidelines",
		Recommendations: []string{
			"At least 8 antenatal care contacts throughout pregnancy",
			"Skilled health personnel should attend all births",
			"Postnatal care for mother and baby within 24 hours of birth",
			"Iron and folic acid supplementation during pregnancy",
			"Tetanus vaccination during pregnancy",
		},
		Source: "WHO Recommendations on Antenatal Care for a Positive Pregnancy Experience",
	}},
	{"reproductive_health", domain.Guideline{
		Title: "WHO Reproductive Health Guidelines",
		Recommendations: []string{
			"Access to contraceptive information and services",
			"Safe and effective family planning methods",
			"Prevention and treatment of sexually transmitted infections",
			"Safe abortion care where legal",
			"Prevention and management of infertility",
		},
		Source: "WHO Sexual and Reproductive Health Guidelines",
	}},
	{"menstrual_health", domain.Guideline{
		Title: "WHO Menstrual Health Guidelines",
		Recommendations: []string{
			"Access to clean, safe menstrual hygiene products",
			"Education about menstruation and menstrual health",
			"Access to private facilities for menstrual hygiene management",
			"Pain management options for menstrual discomfort",
			"Recognition of abnormal menstrual patterns requiring medical attention",
		},
		Source: "WHO Guidelines on Menstrual Health and Hygiene",
	}},
	{"nutrition", domain.Guideline{
		Title: "WHO Nutrition Guidelines for Women",
		Recommendations: []string{
			"Adequate iron intake to prevent anemia (18mg/day for women of reproductive age)",
			"Folic acid supplementation (400μg daily) for women planning pregnancy",
			"Adequate calcium intake (1000mg/day) for bone health",
			"Balanced diet with fruits, vegetables, whole grains, and lean proteins",
			"Vitamin D supplementation if deficient",
		},
		Source: "WHO Nutrition Guidelines",
	}},
	{"pregnancy", domain.Guideline{
		Title: "WHO Pregnancy Care Guidelines",
		Recommendations: []string{
			"First antenatal care visit within 12 weeks of pregnancy",
			"Minimum of 8 antenatal care contacts throughout pregnancy",
			"Daily iron and folic acid supplementation",
			"Ultrasound scan before 24 weeks of gestation",
			"Counseling on healthy eating, physical activity, and birth preparedness",
		},
		Source: "WHO Antenatal Care Recommendations",
	}},
	{"mental_health", domain.Guideline{
		Title: "WHO Mental Health Guidelines for Women",
		Recommendations: []string{
			"Screening for depression and anxiety during and after pregnancy",
			"Psychosocial support for maternal mental health",
			"Access to mental health services without stigma",
			"Support for women experiencing gender-based violence",
			"Workplace mental health support for pregnant and postpartum women",
		},
		Source: "WHO Mental Health Guidelines",
	}},
}

var generalGuideline = domain.Guideline{
	Title: "WHO Women's Health Guidelines",
	Recommendations: []string{
		"Regular health check-ups and screenings",
		"Balanced nutrition and physical activity",
		"Mental health awareness and support",
		"Access to reproductive health services",
		"Prevention and management of chronic diseases",
	},
	Source: "WHO General Women's Health Guidelines",
	Note:   "For specific guidance on your topic, consult with a healthcare professional",
}

// GuidelineCatalog serves the built-in WHO women's health guidelines
type GuidelineCatalog struct{}

// NewGuidelineCatalog creates the built-in guideline provider
func NewGuidelineCatalog() *GuidelineCatalog {
	return &GuidelineCatalog{}
}

// Lookup matches the normalized topic against catalog keys in either
// direction. Unmatched topics get the general guideline.
func (GuidelineCatalog) Lookup(ctx context.Context, topic string) (*domain.Guideline, error) {
	normalized := NormalizeTopic(topic)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty topic", domain.ErrGuidelineLookup)
	}

	for _, entry := range whoCatalog {
		if strings.Contains(normalized, entry.key) || strings.Contains(entry.key, normalized) {
			return cloneGuideline(entry.guideline), nil
		}
	}
	return cloneGuideline(generalGuideline), nil
}

func cloneGuideline(g domain.Guideline) *domain.Guideline {
	out := g
	out.Recommendations = append([]string(nil), g.Recommendations...)
	return &out
}
