package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/metrics"
	"github.com/womens-health-report-analyzer/internal/repository"
	"github.com/womens-health-report-analyzer/internal/service"
	"github.com/womens-health-report-analyzer/pkg/external"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticConfig serves a fixed configuration
type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config                 { return s.cfg }
func (s staticConfig) GetServerConfig() *domain.ServerConfig     { return &s.cfg.Server }
func (s staticConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s staticConfig) Reload() error                             { return nil }
func (s staticConfig) Validate() error                           { return nil }
func (s staticConfig) GetDatabaseConnectionString() string       { return "" }
func (s staticConfig) GetRedisConnectionString() string          { return "" }
func (s staticConfig) IsProduction() bool                        { return false }
func (s staticConfig) IsDevelopment() bool                       { return true }

// textByName returns fixed text or a fixed error
type textByName struct {
	text string
	err  error
}

func (t *textByName) Extract(ctx context.Context, path, extension string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

type fixedAnswerer struct {
	answer string
	err    error
}

func (f fixedAnswerer) Answer(ctx context.Context, query string) (string, error) {
	return f.answer, f.err
}

type testServer struct {
	server    *Server
	extractor *textByName
	uploadDir string
	hub       *EventHub
}

func newTestServer(t *testing.T, qa domain.QuestionAnswerer) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	repo, err := repository.NewSQLiteStore(filepath.Join(dir, "reports.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	cfg := &domain.Config{
		Server:  domain.ServerConfig{AllowedOrigins: []string{"*"}},
		Upload:  domain.UploadConfig{Dir: filepath.Join(dir, "uploads"), MaxSizeBytes: 1024, AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"}},
		Logging: domain.LoggingConfig{Level: "info"},
		Metrics: domain.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	extractor := &textByName{text: "Hemoglobin: 7.5 g/dL\nGlucose: 95 mg/dL"}
	catalog := external.NewGuidelineCatalog()
	hub := NewEventHub([]string{"*"}, logger)
	collector := metrics.NewCollector()

	analyzer, err := service.NewReportAnalyzer(service.AnalyzerDeps{
		Extractor:  extractor,
		Guidelines: catalog,
		Repository: repo,
		Observer:   hub,
		Metrics:    collector,
	}, service.DefaultAnalyzerConfig(), logger)
	require.NoError(t, err)

	srv := NewServer(staticConfig{cfg: cfg}, Services{
		Analyzer:      analyzer,
		Dashboard:     service.NewDashboardService(repo, nil, catalog, time.Second, logger),
		History:       service.NewHistoryService(repo, nil, logger),
		Chat:          service.NewChatService(qa, repo, time.Second, logger),
		Guidelines:    catalog,
		Events:        hub,
		Metrics:       collector,
		StorageHealth: func(ctx context.Context) error { return nil },
	}, logger)

	return &testServer{server: srv, extractor: extractor, uploadDir: cfg.Upload.Dir, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) upload(t *testing.T, userID, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("report_name", "Annual checkup"))
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/api/v1/reports", userID, &buf, mw.FormDataContentType())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func uploadedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/health", "", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/metrics", "", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAPIRequiresUser(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/v1/dashboard", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadAndDashboard(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.upload(t, "alice", "blood.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Success bool                  `json:"success"`
		Report  domain.ReportAnalysis `json:"report"`
	}
	decode(t, w, &created)
	assert.True(t, created.Success)
	assert.Equal(t, "Annual checkup", created.Report.ReportName)
	assert.Equal(t, "blood.pdf", created.Report.FileName)
	assert.Equal(t, domain.ReportTypeBloodTest, created.Report.ReportType)
	require.NotEmpty(t, created.Report.Tests)
	assert.Equal(t, "hemoglobin", created.Report.Tests[0].CanonicalKey)
	assert.Contains(t, created.Report.DetectedConditions, "Anemia")
	assert.Len(t, uploadedFiles(t, ts.uploadDir), 1)

	w = ts.do(t, http.MethodGet, "/api/v1/reports", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Reports []domain.ReportAnalysis `json:"reports"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Reports, 1)

	w = ts.do(t, http.MethodGet, "/api/v1/reports/"+created.Report.ID, "alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/reports/"+created.Report.ID, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/dashboard", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var dash struct {
		Dashboard domain.Dashboard `json:"dashboard"`
	}
	decode(t, w, &dash)
	require.Len(t, dash.Dashboard.Conditions, 21)
	anemia := dash.Dashboard.Conditions[11]
	assert.Equal(t, "Anemia", anemia.Condition)
	assert.True(t, anemia.Detected)
	assert.Equal(t, domain.Severity("severe"), anemia.Severity)
	assert.Equal(t, 1, dash.Dashboard.Summary.TotalReports)

	w = ts.do(t, http.MethodGet, "/api/v1/conditions/anemia", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reports_count":1`)

	w = ts.do(t, http.MethodGet, "/api/v1/trends", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trends":[]`)

	w = ts.do(t, http.MethodDelete, "/api/v1/reports/"+created.Report.ID, "alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, uploadedFiles(t, ts.uploadDir))
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("unsupported extension", func(t *testing.T) {
		w := ts.upload(t, "alice", "notes.txt", []byte("hello"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeUnsupportedType)
	})

	t.Run("too large", func(t *testing.T) {
		w := ts.upload(t, "alice", "scan.png", bytes.Repeat([]byte("x"), 4096))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeInvalidInput)
	})

	t.Run("missing file", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/reports", "alice", strings.NewReader(""), "multipart/form-data; boundary=x")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Empty(t, uploadedFiles(t, ts.uploadDir))
}

func TestUploadExtractionFailureRemovesFile(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.err = domain.ErrInsufficientText

	w := ts.upload(t, "alice", "blurry.jpg", []byte("jpeg bytes"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), domain.CodeInsufficientText)
	assert.Empty(t, uploadedFiles(t, ts.uploadDir))

	w = ts.do(t, http.MethodGet, "/api/v1/reports", "alice", nil, "")
	assert.Contains(t, w.Body.String(), `"reports":[]`)
}

func TestCompareNeedsTwoReports(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/v1/reports/compare", "alice",
		strings.NewReader(`{"report_ids":["only-one"]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/reports/compare", "alice",
		strings.NewReader(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		ts := newTestServer(t, fixedAnswerer{answer: "Stay hydrated."})
		w := ts.do(t, http.MethodPost, "/api/v1/chat", "alice",
			strings.NewReader(`{"message":"How much water?"}`), "application/json")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Stay hydrated.")
	})

	t.Run("empty message", func(t *testing.T) {
		ts := newTestServer(t, fixedAnswerer{answer: "x"})
		w := ts.do(t, http.MethodPost, "/api/v1/chat", "alice",
			strings.NewReader(`{"message":"  "}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("capability failure", func(t *testing.T) {
		ts := newTestServer(t, fixedAnswerer{err: errors.New("model offline")})
		w := ts.do(t, http.MethodPost, "/api/v1/chat", "alice",
			strings.NewReader(`{"message":"Is this normal?"}`), "application/json")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeClassification)
	})
}

func TestGuidelineRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/v1/guidelines/maternal%20health", "alice", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "WHO Maternal Health Guidelines")
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		domain.CodeUnsupportedType:  http.StatusBadRequest,
		domain.CodeInvalidInput:     http.StatusBadRequest,
		domain.CodeInsufficientText: http.StatusUnprocessableEntity,
		domain.CodeExtraction:       http.StatusUnprocessableEntity,
		domain.CodeNotFound:         http.StatusNotFound,
		domain.CodeClassification:   http.StatusBadGateway,
		domain.CodePersistence:      http.StatusInternalServerError,
		domain.CodeInternalServer:   http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	ts := newTestServer(t, nil)
	httpServer := httptest.NewServer(ts.server.Handler())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/v1/events?user_id=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.hub.ClientCount("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.OnStage(domain.StageEvent{ReportID: "r9", UserID: "bob", Stage: domain.StageParsed, At: time.Now()})
	ts.hub.OnStage(domain.StageEvent{ReportID: "r1", UserID: "alice", Stage: domain.StageExtracting, At: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event domain.StageEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "r1", event.ReportID)
	assert.Equal(t, domain.StageExtracting, event.Stage)

	conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}
