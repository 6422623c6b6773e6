package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/extraction"
	"github.com/womens-health-report-analyzer/internal/middleware"
)

type compareRequest struct {
	ReportIDs []string `json:"report_ids"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// statusFor maps an error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case domain.CodeUnsupportedType, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeInsufficientText, domain.CodeExtraction:
		return http.StatusUnprocessableEntity
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeClassification, domain.CodeComparison, domain.CodeGuidelineLookup:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(c *gin.Context, err error) {
	se := domain.AsServiceError(err, c.GetString(middleware.RequestIDKey))
	status := statusFor(se.Code)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"request_id": se.RequestID,
			"code":       se.Code,
			"error":      err,
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": se})
}

func (s *Server) allowedExtension(ext string) bool {
	allowed := s.configManager.GetConfig().Upload.AllowedExtensions
	if len(allowed) == 0 {
		return extraction.IsSupported(ext)
	}
	for _, a := range allowed {
		if extraction.NormalizeExtension(a) == ext {
			return true
		}
	}
	return false
}

// handleUpload validates the file, stores it and runs the pipeline
func (s *Server) handleUpload(c *gin.Context) {
	if s.services.Analyzer == nil {
		s.respondError(c, fmt.Errorf("report analyzer is not configured"))
		return
	}
	cfg := s.configManager.GetConfig().Upload

	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(c, domain.NewValidationError("file", "file exceeds the maximum upload size", cfg.MaxSizeBytes))
			return
		}
		s.respondError(c, domain.NewValidationError("file", "a report file is required", nil))
		return
	}

	ext := extraction.NormalizeExtension(filepath.Ext(file.Filename))
	if !s.allowedExtension(ext) {
		s.respondError(c, fmt.Errorf("%w: .%s", domain.ErrUnsupportedType, ext))
		return
	}
	if cfg.MaxSizeBytes > 0 && file.Size > cfg.MaxSizeBytes {
		s.respondError(c, domain.NewValidationError("file", "file exceeds the maximum upload size", file.Size))
		return
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		s.respondError(c, fmt.Errorf("creating upload dir: %w", err))
		return
	}
	dest := filepath.Join(cfg.Dir, uuid.NewString()+"."+ext)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		s.respondError(c, fmt.Errorf("saving upload: %w", err))
		return
	}

	report, err := s.services.Analyzer.Analyze(c.Request.Context(), domain.RawDocument{
		Path:       dest,
		Extension:  ext,
		FileName:   filepath.Base(file.Filename),
		ReportName: strings.TrimSpace(c.PostForm("report_name")),
		UserID:     c.GetString(middleware.UserIDKey),
		Size:       file.Size,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "report": report})
}

func (s *Server) handleListReports(c *gin.Context) {
	reports, err := s.services.History.ListReports(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": reports})
}

func (s *Server) handleGetReport(c *gin.Context) {
	report, err := s.services.History.GetReport(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (s *Server) handleDeleteReport(c *gin.Context) {
	if err := s.services.History.DeleteReport(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCompareReports(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "invalid JSON body", err.Error()))
		return
	}
	result, err := s.services.History.CompareReports(c.Request.Context(), c.GetString(middleware.UserIDKey), req.ReportIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "comparison": result})
}

func (s *Server) handleDashboard(c *gin.Context) {
	dashboard, err := s.services.Dashboard.Dashboard(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dashboard": dashboard})
}

func (s *Server) handleConditionDetail(c *gin.Context) {
	detail, err := s.services.History.ConditionDetail(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("name"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "condition": detail})
}

func (s *Server) handleTrends(c *gin.Context) {
	trends, err := s.services.History.Trends(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trends": trends})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "invalid JSON body", err.Error()))
		return
	}
	resp, err := s.services.Chat.Chat(c.Request.Context(), c.GetString(middleware.UserIDKey), req.Message)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
}

func (s *Server) handleGuideline(c *gin.Context) {
	if s.services.Guidelines == nil {
		s.respondError(c, fmt.Errorf("%w: no guideline provider configured", domain.ErrGuidelineLookup))
		return
	}
	guideline, err := s.services.Guidelines.Lookup(c.Request.Context(), c.Param("topic"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": guideline})
}
