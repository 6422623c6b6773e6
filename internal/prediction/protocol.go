package prediction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// Tasks understood by the classification capability
const (
	TaskClassify = "classify"
	TaskQA       = "qa"
)

// Request is the single JSON message sent to the capability
type Request struct {
	Task     string               `json:"task"`
	Model    string               `json:"model,omitempty"`
	Features domain.FeatureVector `json:"features,omitempty"`
	Query    string               `json:"query,omitempty"`
}

// Response is the single JSON message read back
type Response struct {
	Success    bool               `json:"success"`
	Prediction domain.Label       `json:"prediction,omitempty"`
	Proba      map[string]float64 `json:"proba,omitempty"`
	Answer     string             `json:"answer,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// decodeResponse parses capability output. Unparseable output and
// unsuccessful responses are classification errors.
func decodeResponse(raw []byte) (*Response, error) {
	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.failure(); err != nil {
		return nil, err
	}
	return resp, nil
}

// parseResponse only checks the message is well formed
func parseResponse(raw []byte) (*Response, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrClassification)
	}

	var resp Response
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid response %q: %v", domain.ErrClassification, truncate(trimmed, 200), err)
	}
	return &resp, nil
}

// failure reports a request the capability answered but rejected
func (r *Response) failure() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "capability reported failure"
	}
	return fmt.Errorf("%w: %s", domain.ErrClassification, msg)
}

func classificationFrom(resp *Response) *domain.Classification {
	return &domain.Classification{
		Prediction:  resp.Prediction,
		Probability: resp.Proba,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
