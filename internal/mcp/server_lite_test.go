package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	litecfg "github.com/womens-health-report-analyzer/internal/config"
	"github.com/womens-health-report-analyzer/internal/domain"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context, path, extension string) (string, error) {
	return f.text, f.err
}

type fakeBackend struct {
	answer string
	err    error
}

func (f fakeBackend) Classify(ctx context.Context, model string, features domain.FeatureVector) (*domain.Classification, error) {
	return nil, errors.New("no models in tests")
}

func (f fakeBackend) Answer(ctx context.Context, query string) (string, error) {
	return f.answer, f.err
}

func newTestLiteServer(t *testing.T, extractor fakeExtractor, backend fakeBackend) *LiteServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	server, err := NewLiteServer(cfg,
		WithLogger(logger),
		WithExtractor(extractor),
		WithBackend(backend),
	)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func writeReport(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("scan"), 0644))
	return path
}

func TestNewLiteServer_RegistersTools(t *testing.T) {
	server := newTestLiteServer(t, fakeExtractor{}, fakeBackend{})

	assert.Equal(t, []string{
		"analyze_report",
		"get_dashboard",
		"list_reports",
		"get_report",
		"compare_reports",
		"condition_detail",
		"lookup_guideline",
		"ask_question",
	}, server.ToolNames())

	_, err := os.Stat(filepath.Join(server.config.DataDir, "reports.db"))
	assert.NoError(t, err)
}

func TestAnalyzeReportTool(t *testing.T) {
	server := newTestLiteServer(t, fakeExtractor{text: "Hemoglobin: 7.5 g/dL"}, fakeBackend{})
	tools := server.Tools()
	ctx := context.Background()
	src := writeReport(t, "cbc.png")

	result, _, err := tools.AnalyzeReport(ctx, nil, AnalyzeReportInput{UserID: "alice", FilePath: src})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var report domain.ReportAnalysis
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &report))
	assert.Equal(t, "cbc.png", report.ReportName)
	assert.Contains(t, report.DetectedConditions, "Anemia")

	// the caller's file stays in place, the pipeline works on a copy
	_, err = os.Stat(src)
	assert.NoError(t, err)
	assert.NotEqual(t, src, report.FilePath)

	result, _, err = tools.GetDashboard(ctx, nil, UserInput{UserID: "alice"})
	require.NoError(t, err)
	var dashboard domain.Dashboard
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &dashboard))
	require.Len(t, dashboard.Conditions, 21)
	assert.True(t, dashboard.Conditions[11].Detected)

	result, _, err = tools.GetReport(ctx, nil, ReportInput{UserID: "alice", ReportID: report.ID})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, _, err = tools.ListReports(ctx, nil, UserInput{UserID: "alice"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), report.ID)

	result, _, err = tools.ConditionDetail(ctx, nil, ConditionInput{UserID: "alice", Condition: "Anemia"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"reports_count": 1`)
}

func TestAnalyzeReportTool_Failures(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		server := newTestLiteServer(t, fakeExtractor{text: "x"}, fakeBackend{})
		result, _, err := server.Tools().AnalyzeReport(context.Background(), nil,
			AnalyzeReportInput{UserID: "alice", FilePath: writeReport(t, "notes.docx")})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), domain.CodeUnsupportedType)
	})

	t.Run("missing file", func(t *testing.T) {
		server := newTestLiteServer(t, fakeExtractor{text: "x"}, fakeBackend{})
		result, _, err := server.Tools().AnalyzeReport(context.Background(), nil,
			AnalyzeReportInput{UserID: "alice", FilePath: "/does/not/exist.pdf"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), domain.CodeInvalidInput)
	})

	t.Run("extraction failure removes the staged copy", func(t *testing.T) {
		server := newTestLiteServer(t, fakeExtractor{err: domain.ErrInsufficientText}, fakeBackend{})
		src := writeReport(t, "blurry.jpg")
		result, _, err := server.Tools().AnalyzeReport(context.Background(), nil,
			AnalyzeReportInput{UserID: "alice", FilePath: src})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), domain.CodeInsufficientText)

		entries, err := os.ReadDir(server.config.UploadDir())
		require.NoError(t, err)
		assert.Empty(t, entries)
		_, err = os.Stat(src)
		assert.NoError(t, err)
	})
}

func TestLookupGuidelineTool(t *testing.T) {
	server := newTestLiteServer(t, fakeExtractor{}, fakeBackend{})
	result, _, err := server.Tools().LookupGuideline(context.Background(), nil, GuidelineInput{Topic: "Pregnancy"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "recommendations")
}

func TestAskQuestionTool(t *testing.T) {
	server := newTestLiteServer(t, fakeExtractor{}, fakeBackend{answer: "Eat iron-rich foods."})
	result, _, err := server.Tools().AskQuestion(context.Background(), nil, QuestionInput{UserID: "alice", Question: "How to raise hemoglobin?"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Eat iron-rich foods.")

	failing := newTestLiteServer(t, fakeExtractor{}, fakeBackend{err: errors.New("offline")})
	result, _, err = failing.Tools().AskQuestion(context.Background(), nil, QuestionInput{UserID: "alice", Question: "Hello?"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), domain.CodeClassification)
}

func TestCompareReportsToolNeedsComparator(t *testing.T) {
	server := newTestLiteServer(t, fakeExtractor{}, fakeBackend{})
	result, _, err := server.Tools().CompareReports(context.Background(), nil,
		CompareInput{UserID: "alice", ReportIDs: []string{"a"}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), domain.CodeInvalidInput)
}
