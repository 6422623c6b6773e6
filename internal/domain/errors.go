package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy of the report pipeline. Unsupported type and insufficient
// text are both extraction failures.
var (
	ErrExtraction       = errors.New("text extraction failed")
	ErrUnsupportedType  = fmt.Errorf("%w: unsupported file type", ErrExtraction)
	ErrInsufficientText = fmt.Errorf("%w: insufficient text extracted", ErrExtraction)
	ErrClassification   = errors.New("classification failed")
	ErrComparison       = errors.New("report comparison failed")
	ErrGuidelineLookup  = errors.New("guideline lookup failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error codes for different failure scenarios
const (
	CodeExtraction       = "EXTRACTION_ERROR"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"
	CodeInsufficientText = "INSUFFICIENT_TEXT"
	CodeClassification   = "CLASSIFICATION_ERROR"
	CodeComparison       = "COMPARISON_ERROR"
	CodeGuidelineLookup  = "GUIDELINE_LOOKUP_ERROR"
	CodePersistence      = "PERSISTENCE_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInternalServer   = "INTERNAL_SERVER_ERROR"
)

// ServiceError is the structured failure surfaced to callers
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Err       error     `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// AsServiceError converts any error into a ServiceError, picking the code
// and a human-readable message from the taxonomy.
func AsServiceError(err error, requestID string) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		if se.RequestID == "" {
			se.RequestID = requestID
		}
		return se
	}

	code, message := CodeFor(err), messageFor(err)
	out := NewServiceError(code, message, err.Error(), requestID)
	out.Err = err
	return out
}

// CodeFor maps an error to its code. Order matters: the extraction
// subtypes are checked before the generic extraction error.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedType):
		return CodeUnsupportedType
	case errors.Is(err, ErrInsufficientText):
		return CodeInsufficientText
	case errors.Is(err, ErrExtraction):
		return CodeExtraction
	case errors.Is(err, ErrClassification):
		return CodeClassification
	case errors.Is(err, ErrComparison):
		return CodeComparison
	case errors.Is(err, ErrGuidelineLookup):
		return CodeGuidelineLookup
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	}
	return CodeInternalServer
}

func messageFor(err error) string {
	switch CodeFor(err) {
	case CodeUnsupportedType:
		return "Unsupported file type. Upload a PDF, JPG or PNG file."
	case CodeInsufficientText:
		return "Could not extract enough text from the report. Try a clearer image or PDF."
	case CodeExtraction:
		return "Failed to extract text from the report."
	case CodeClassification:
		return "The prediction service could not answer the request."
	case CodeComparison:
		return "Report comparison failed."
	case CodeGuidelineLookup:
		return "Guideline lookup failed."
	case CodePersistence:
		return "Failed to save the report analysis."
	case CodeNotFound:
		return "Resource not found."
	case CodeInvalidInput:
		return "Invalid request."
	}
	return "Internal server error."
}

// PipelineError records the pipeline stage at which a fatal error occurred
type PipelineError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap makes validation errors match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
