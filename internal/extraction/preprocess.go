package extraction

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	defaultContrast = 10.0
	defaultSigma    = 1.0
)

// Preprocessor converts scans to grayscale, stretches their intensity range
// and sharpens them before OCR.
type Preprocessor struct {
	contrast float64
	sigma    float64
}

// NewPreprocessor creates an image preprocessor. Zero values select defaults.
func NewPreprocessor(contrast, sigma float64) *Preprocessor {
	if contrast == 0 {
		contrast = defaultContrast
	}
	if sigma <= 0 {
		sigma = defaultSigma
	}
	return &Preprocessor{contrast: contrast, sigma: sigma}
}

// Preprocess writes a cleaned PNG of src to dst
func (p *Preprocessor) Preprocess(ctx context.Context, src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.Grayscale(img)
	normalized := normalize(gray)
	normalized = imaging.AdjustContrast(normalized, p.contrast)
	sharpened := imaging.Sharpen(normalized, p.sigma)

	if err := imaging.Save(sharpened, dst); err != nil {
		return fmt.Errorf("saving preprocessed image: %w", err)
	}
	return nil
}

// normalize linearly stretches gray levels to the full 0-255 range
func normalize(img *image.NRGBA) *image.NRGBA {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(img.Pix); i += 4 {
		v := img.Pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return img
	}

	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8(float64(c.R-lo) * scale)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
