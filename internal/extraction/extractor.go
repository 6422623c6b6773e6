// Package extraction turns uploaded report files into raw text.
package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// DefaultMinTextLength is the shortest trimmed text accepted from a document
const DefaultMinTextLength = 20

// DocumentTextExtractor reads the text layer of a document
type DocumentTextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// ImagePreprocessor prepares a scanned image for OCR, writing the result to dst
type ImagePreprocessor interface {
	Preprocess(ctx context.Context, src, dst string) error
}

// TextRecognizer runs OCR over an image file
type TextRecognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Adapter dispatches extraction by file extension
type Adapter struct {
	documents     DocumentTextExtractor
	preprocessor  ImagePreprocessor
	recognizer    TextRecognizer
	minTextLength int
	timeout       time.Duration
	tempDir       string
	logger        *logrus.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithMinTextLength overrides the minimum accepted text length
func WithMinTextLength(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.minTextLength = n
		}
	}
}

// WithTimeout bounds each extraction call
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithTempDir sets where preprocessed images are written
func WithTempDir(dir string) Option {
	return func(a *Adapter) {
		a.tempDir = dir
	}
}

// NewAdapter creates an extraction adapter over the given capabilities
func NewAdapter(documents DocumentTextExtractor, preprocessor ImagePreprocessor, recognizer TextRecognizer, logger *logrus.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		documents:     documents,
		preprocessor:  preprocessor,
		recognizer:    recognizer,
		minTextLength: DefaultMinTextLength,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAdapterFromConfig wires the PDF, imaging and tesseract capabilities
func NewAdapterFromConfig(cfg domain.ExtractionConfig, logger *logrus.Logger) *Adapter {
	return NewAdapter(
		NewPDFTextExtractor(cfg.PDFLicenseKey, logger),
		NewPreprocessor(cfg.ContrastIncrease, cfg.SharpenSigma),
		NewTesseractRecognizer(cfg.TesseractPath, cfg.Language),
		logger,
		WithMinTextLength(cfg.MinTextLength),
		WithTimeout(cfg.Timeout),
		WithTempDir(cfg.TempDir),
	)
}

// NormalizeExtension lower-cases an extension and strips its leading dot
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// IsSupported reports whether the extension can be extracted
func IsSupported(ext string) bool {
	switch NormalizeExtension(ext) {
	case "pdf", "jpg", "jpeg", "png":
		return true
	}
	return false
}

// Extract returns the trimmed text of the file. Every failure wraps
// domain.ErrExtraction; unknown extensions wrap domain.ErrUnsupportedType and
// short text wraps domain.ErrInsufficientText.
func (a *Adapter) Extract(ctx context.Context, path, extension string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ext := NormalizeExtension(extension)

	var (
		text string
		err  error
	)
	switch ext {
	case "pdf":
		text, err = a.documents.ExtractText(ctx, path)
	case "jpg", "jpeg", "png":
		text, err = a.extractImage(ctx, path)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedType, extension)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < a.minTextLength {
		return "", fmt.Errorf("%w: got %d characters, need at least %d", domain.ErrInsufficientText, n, a.minTextLength)
	}

	a.logger.WithFields(logrus.Fields{
		"extension":  ext,
		"characters": len(text),
	}).Debug("Text extracted")

	return text, nil
}

// extractImage preprocesses into a temporary file that is removed once OCR
// returns, whatever the outcome.
func (a *Adapter) extractImage(ctx context.Context, path string) (string, error) {
	tmp, err := os.CreateTemp(a.tempDir, "report-*_processed.png")
	if err != nil {
		return "", fmt.Errorf("creating preprocessing file: %w", err)
	}
	processed := tmp.Name()
	tmp.Close()
	defer func() {
		if err := os.Remove(processed); err != nil && !os.IsNotExist(err) {
			a.logger.WithError(err).WithField("path", processed).Warn("Failed to remove preprocessed image")
		}
	}()

	if err := a.preprocessor.Preprocess(ctx, path, processed); err != nil {
		return "", fmt.Errorf("preprocessing image: %w", err)
	}

	text, err := a.recognizer.Recognize(ctx, processed)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return text, nil
}
