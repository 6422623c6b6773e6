package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/extraction"
	"github.com/womens-health-report-analyzer/internal/service"
)

// Tools exposes the analyzer services as MCP tool handlers
type Tools struct {
	Analyzer   *service.ReportAnalyzer
	Dashboard  *service.DashboardService
	History    *service.HistoryService
	Chat       *service.ChatService
	Guidelines domain.GuidelineProvider
	UploadDir  string
	MaxSize    int64
	Logger     *logrus.Logger
}

// AnalyzeReportInput is the analyze_report argument set
type AnalyzeReportInput struct {
	UserID     string `json:"user_id" jsonschema:"owner of the report"`
	FilePath   string `json:"file_path" jsonschema:"local path of a PDF, JPG or PNG report"`
	ReportName string `json:"report_name,omitempty" jsonschema:"display name, defaults to the file name"`
}

// UserInput identifies the caller
type UserInput struct {
	UserID string `json:"user_id" jsonschema:"user whose data is read"`
}

// ReportInput addresses one stored report
type ReportInput struct {
	UserID   string `json:"user_id" jsonschema:"owner of the report"`
	ReportID string `json:"report_id" jsonschema:"id returned by analyze_report"`
}

// CompareInput lists the reports to compare
type CompareInput struct {
	UserID    string   `json:"user_id" jsonschema:"owner of the reports"`
	ReportIDs []string `json:"report_ids" jsonschema:"at least two report ids"`
}

// ConditionInput names a tracked condition
type ConditionInput struct {
	UserID    string `json:"user_id" jsonschema:"owner of the reports"`
	Condition string `json:"condition" jsonschema:"condition name, matched case-insensitively"`
}

// GuidelineInput names a guideline topic
type GuidelineInput struct {
	Topic string `json:"topic" jsonschema:"topic such as maternal health or nutrition"`
}

// QuestionInput is a free-text health question
type QuestionInput struct {
	UserID   string `json:"user_id" jsonschema:"user asking the question"`
	Question string `json:"question" jsonschema:"the question text"`
}

// Register adds every tool to the server and returns their names
func (t *Tools) Register(server *mcp.Server) []string {
	var names []string
	add := func(name string) { names = append(names, name) }

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_report",
		Description: "Extract, parse and enrich a medical report file and store the analysis",
	}, t.AnalyzeReport)
	add("analyze_report")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_dashboard",
		Description: "Assess all 21 tracked women's health conditions from the user's reports",
	}, t.GetDashboard)
	add("get_dashboard")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_reports",
		Description: "List the user's analyzed reports, newest first",
	}, t.ListReports)
	add("list_reports")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_report",
		Description: "Fetch one stored report analysis",
	}, t.GetReport)
	add("get_report")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compare_reports",
		Description: "Compare two or more reports over time and identify trends",
	}, t.CompareReports)
	add("compare_reports")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "condition_detail",
		Description: "Show the reports, guidelines and timeline related to one condition",
	}, t.ConditionDetail)
	add("condition_detail")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_guideline",
		Description: "Look up WHO women's health guidance for a topic",
	}, t.LookupGuideline)
	add("lookup_guideline")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a free-text women's health question",
	}, t.AskQuestion)
	add("ask_question")

	return names
}

// AnalyzeReport copies the file into the upload area and runs the pipeline
func (t *Tools) AnalyzeReport(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeReportInput) (*mcp.CallToolResult, any, error) {
	ext := extraction.NormalizeExtension(filepath.Ext(in.FilePath))
	if !extraction.IsSupported(ext) {
		return errorResult(fmt.Errorf("%w: .%s", domain.ErrUnsupportedType, ext)), nil, nil
	}

	info, err := os.Stat(in.FilePath)
	if err != nil {
		return errorResult(domain.NewValidationError("file_path", "file is not readable", in.FilePath)), nil, nil
	}
	if t.MaxSize > 0 && info.Size() > t.MaxSize {
		return errorResult(domain.NewValidationError("file_path", "file exceeds the maximum upload size", info.Size())), nil, nil
	}

	dest, err := t.stage(in.FilePath, ext)
	if err != nil {
		return errorResult(err), nil, nil
	}

	report, err := t.Analyzer.Analyze(ctx, domain.RawDocument{
		Path:       dest,
		Extension:  ext,
		FileName:   filepath.Base(in.FilePath),
		ReportName: strings.TrimSpace(in.ReportName),
		UserID:     in.UserID,
		Size:       info.Size(),
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(report)
}

// stage copies the caller's file so the pipeline owns its copy
func (t *Tools) stage(src, ext string) (string, error) {
	if err := os.MkdirAll(t.UploadDir, 0755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening report: %w", err)
	}
	defer in.Close()

	dest := filepath.Join(t.UploadDir, uuid.NewString()+"."+ext)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("copying upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("closing upload: %w", err)
	}
	return dest, nil
}

// GetDashboard returns the condition dashboard for a user
func (t *Tools) GetDashboard(ctx context.Context, _ *mcp.CallToolRequest, in UserInput) (*mcp.CallToolResult, any, error) {
	dashboard, err := t.Dashboard.Dashboard(ctx, in.UserID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(dashboard)
}

// ListReports returns the user's reports newest first
func (t *Tools) ListReports(ctx context.Context, _ *mcp.CallToolRequest, in UserInput) (*mcp.CallToolResult, any, error) {
	reports, err := t.History.ListReports(ctx, in.UserID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(reports)
}

// GetReport returns one stored report
func (t *Tools) GetReport(ctx context.Context, _ *mcp.CallToolRequest, in ReportInput) (*mcp.CallToolResult, any, error) {
	report, err := t.History.GetReport(ctx, in.UserID, in.ReportID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(report)
}

// CompareReports compares two or more stored reports
func (t *Tools) CompareReports(ctx context.Context, _ *mcp.CallToolRequest, in CompareInput) (*mcp.CallToolResult, any, error) {
	result, err := t.History.CompareReports(ctx, in.UserID, in.ReportIDs)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(result)
}

// ConditionDetail returns the history of one condition
func (t *Tools) ConditionDetail(ctx context.Context, _ *mcp.CallToolRequest, in ConditionInput) (*mcp.CallToolResult, any, error) {
	detail, err := t.History.ConditionDetail(ctx, in.UserID, in.Condition)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(detail)
}

// LookupGuideline returns the guideline for a topic
func (t *Tools) LookupGuideline(ctx context.Context, _ *mcp.CallToolRequest, in GuidelineInput) (*mcp.CallToolResult, any, error) {
	if t.Guidelines == nil {
		return errorResult(fmt.Errorf("%w: no guideline provider configured", domain.ErrGuidelineLookup)), nil, nil
	}
	guideline, err := t.Guidelines.Lookup(ctx, in.Topic)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(guideline)
}

// AskQuestion answers a free-text question
func (t *Tools) AskQuestion(ctx context.Context, _ *mcp.CallToolRequest, in QuestionInput) (*mcp.CallToolResult, any, error) {
	resp, err := t.Chat.Chat(ctx, in.UserID, in.Question)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(resp)
}

// jsonResult renders v as indented JSON text content
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult reports a failure in-band so the calling agent can read it
func errorResult(err error) *mcp.CallToolResult {
	se := domain.AsServiceError(err, "")
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s (%s)", se.Code, se.Message, se.Details)}},
	}
}
