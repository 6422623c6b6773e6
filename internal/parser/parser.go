// Package parser turns raw report text into structured test observations.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// testLine matches "<name><: or -><number>[unit or trailing text]".
var testLine = regexp.MustCompile(`([A-Za-z][A-Za-z \-/()%]*?)\s*[:\-]\s*([\d.]+)\s*([^\s\d][^\n]*)?`)

var (
	whitespace    = regexp.MustCompile(`\s+`)
	numericPrefix = regexp.MustCompile(`^\d*\.?\d*`)
)

const defaultCategory = "general"

// Result holds the parsed observations and a first-value-wins lookup
type Result struct {
	Lookup       map[string]float64
	Observations []domain.TestObservation
}

// Value returns the first parsed value for a canonical key
func (r Result) Value(key string) (float64, bool) {
	v, ok := r.Lookup[key]
	return v, ok
}

// Canonicalize maps a raw test name to its canonical key. Names that match
// no alias keep their normalized form.
func Canonicalize(rawName string) string {
	normalized := normalize(rawName)
	for _, entry := range aliasTable {
		for _, fragment := range entry.fragments {
			if strings.Contains(normalized, fragment) {
				return entry.key
			}
		}
	}
	return normalized
}

func normalize(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
}

// ParseTests scans text line by line. Lines without a name/value pair or
// with an unparseable number are skipped.
func ParseTests(text string) Result {
	result := Result{
		Lookup:       make(map[string]float64),
		Observations: []domain.TestObservation{},
	}
	if text == "" {
		return result
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(rawLine, "\r"))
		m := testLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		value, ok := parseLeadingFloat(m[2])
		if !ok {
			continue
		}

		name := strings.TrimSpace(m[1])
		key := Canonicalize(name)
		if _, seen := result.Lookup[key]; !seen {
			result.Lookup[key] = value
		}

		result.Observations = append(result.Observations, domain.TestObservation{
			RawName:      name,
			CanonicalKey: key,
			Value:        strconv.FormatFloat(value, 'f', -1, 64),
			Unit:         strings.TrimSpace(m[3]),
			Category:     defaultCategory,
		})
	}

	return result
}

// BuildLookup rebuilds the first-value-wins lookup from stored observations.
// Observations persisted without a canonical key are canonicalized again.
func BuildLookup(observations []domain.TestObservation) map[string]float64 {
	lookup := make(map[string]float64, len(observations))
	for _, obs := range observations {
		key := obs.CanonicalKey
		if key == "" {
			key = Canonicalize(obs.RawName)
		}
		if _, seen := lookup[key]; seen {
			continue
		}
		if v, ok := parseLeadingFloat(obs.Value); ok {
			lookup[key] = v
		}
	}
	return lookup
}

// parseLeadingFloat parses the longest numeric prefix, so "7.5.1" reads
// as 7.5 and "." is rejected.
func parseLeadingFloat(s string) (float64, bool) {
	prefix := numericPrefix.FindString(s)
	if prefix == "" || prefix == "." {
		return 0, false
	}
	prefix = strings.TrimSuffix(prefix, ".")
	if strings.HasPrefix(prefix, ".") {
		prefix = "0" + prefix
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
