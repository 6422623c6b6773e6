package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// TestHelperProcess stands in for the inference script. It is only active
// when started by newHelperClassifier.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	raw, _ := io.ReadAll(os.Stdin)
	var req Request
	_ = json.Unmarshal(raw, &req)

	switch os.Getenv("HELPER_MODE") {
	case "garbage":
		fmt.Fprint(os.Stdout, "Traceback (most recent call last)")
	case "crash":
		fmt.Fprint(os.Stderr, "segfault")
		os.Exit(3)
	case "failure":
		fmt.Fprint(os.Stdout, `{"success": false, "error": "unknown model 'x'"}`)
	default:
		if req.Task == TaskQA {
			fmt.Fprintf(os.Stdout, `{"success": true, "answer": "answer to %s"}`, req.Query)
			return
		}
		// echo the number of unknown features so the test can check nulls survive
		unknown := 0
		for _, v := range req.Features {
			if v == nil {
				unknown++
			}
		}
		fmt.Fprintf(os.Stdout, `{"success": true, "prediction": "%s", "proba": {"unknown": %d}}`, req.Model, unknown)
	}
}

func newHelperClassifier(mode string) *SubprocessClassifier {
	return NewCommandClassifier(
		os.Args[0],
		[]string{"-test.run=TestHelperProcess", "--"},
		"",
		[]string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		quietLogger(),
	)
}

func TestSubprocessClassifier_Classify(t *testing.T) {
	classifier := newHelperClassifier("ok")

	features := PCOSFeatures(map[string]float64{"bmi": 30, "testosterone": 70}, floatPtr(25))
	out, err := classifier.Classify(context.Background(), "pcos_dataset", features)

	require.NoError(t, err)
	assert.Equal(t, domain.Label("pcos_dataset"), out.Prediction)
	assert.Equal(t, 2.0, out.Probability["unknown"])
}

func TestSubprocessClassifier_Answer(t *testing.T) {
	classifier := newHelperClassifier("ok")

	answer, err := classifier.Answer(context.Background(), "iron rich foods")
	require.NoError(t, err)
	assert.Equal(t, "answer to iron rich foods", answer)
}

func TestSubprocessClassifier_Errors(t *testing.T) {
	for _, mode := range []string{"garbage", "crash", "failure"} {
		t.Run(mode, func(t *testing.T) {
			classifier := newHelperClassifier(mode)

			_, err := classifier.Classify(context.Background(), "pcos_dataset", domain.FeatureVector{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrClassification)
		})
	}
}

func TestSubprocessClassifier_CancelledContext(t *testing.T) {
	classifier := newHelperClassifier("ok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := classifier.Answer(ctx, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClassification)
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(domain.PredictionConfig{Transport: "subprocess"}, quietLogger())
	assert.Error(t, err)

	b, err := NewBackend(domain.PredictionConfig{Transport: "subprocess", ScriptPath: "inference.py"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &SubprocessClassifier{}, b)

	b, err = NewBackend(domain.PredictionConfig{Transport: "http", BaseURL: "http://localhost:9000"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &HTTPClassifier{}, b)

	_, err = NewBackend(domain.PredictionConfig{Transport: "grpc"}, quietLogger())
	assert.Error(t, err)
}
