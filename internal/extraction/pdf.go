package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

var licenseOnce sync.Once

// PDFTextExtractor reads the text layer of a PDF with unipdf
type PDFTextExtractor struct {
	logger *logrus.Logger
}

// NewPDFTextExtractor creates a PDF extractor. The metered license key is
// registered once per process.
func NewPDFTextExtractor(licenseKey string, logger *logrus.Logger) *PDFTextExtractor {
	if licenseKey != "" {
		licenseOnce.Do(func() {
			if err := license.SetMeteredKey(licenseKey); err != nil {
				logger.WithError(err).Warn("Failed to register PDF license key")
			}
		})
	}
	return &PDFTextExtractor{logger: logger}
}

// ExtractText concatenates the text of every readable page. Pages that fail
// to extract are skipped.
func (p *PDFTextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("creating pdf reader: %w", err)
	}

	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return "", fmt.Errorf("checking encryption: %w", err)
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil {
			return "", fmt.Errorf("decrypting pdf: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("pdf is password protected")
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("reading page count: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page, err := reader.GetPage(i)
		if err != nil {
			p.logger.WithError(err).WithField("page", i).Debug("Skipping unreadable page")
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			p.logger.WithError(err).WithField("page", i).Debug("Skipping page without text")
			continue
		}

		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
