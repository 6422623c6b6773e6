package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractRecognizer runs the tesseract CLI and reads text from stdout
type TesseractRecognizer struct {
	binary   string
	language string
}

// NewTesseractRecognizer creates an OCR capability backed by tesseract
func NewTesseractRecognizer(binary, language string) *TesseractRecognizer {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{binary: binary, language: language}
}

// Recognize returns the OCR text of an image
func (t *TesseractRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, imagePath, "stdout", "-l", t.language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
