// Package quality scores how usable a captured frame is for verification.
package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

var errEmptyImage = errors.New("image has no pixels")

// Config holds the pass/fail thresholds for each metric.
type Config struct {
	// Brightness band on mean luminance normalized to [0,1].
	MinBrightness float64
	MaxBrightness float64
	// MaxBlur is the mean Sobel gradient magnitude a sharp frame must exceed.
	MaxBlur       float64
	MinResolution int
}

func DefaultConfig() Config {
	return Config{
		MinBrightness: 0.2,
		MaxBrightness: 0.85,
		MaxBlur:       12,
		MinResolution: 100,
	}
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	if c.MinBrightness < 0 || c.MaxBrightness > 1 || c.MinBrightness > c.MaxBrightness {
		return fmt.Errorf("brightness band [%v, %v] outside [0, 1]", c.MinBrightness, c.MaxBrightness)
	}
	if c.MaxBlur < 0 {
		return fmt.Errorf("blur threshold %v is negative", c.MaxBlur)
	}
	if c.MinResolution <= 0 {
		return fmt.Errorf("minimum resolution %d must be positive", c.MinResolution)
	}
	return nil
}

// Assessor computes QualityMetrics. Each metric is measured on its own; a
// failing measurement scores 0 and is logged.
type Assessor struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Assessor {
	return &Assessor{
		cfg:    cfg,
		logger: logger.With("component", "quality"),
	}
}

// Assess scores brightness, sharpness, contrast and resolution of img.
func (a *Assessor) Assess(ctx context.Context, img imaging.Source) domain.QualityMetrics {
	return domain.QualityMetrics{
		Brightness: a.measure(ctx, "brightness", func() (float64, error) {
			b, err := Brightness(img)
			if err != nil {
				return 0, err
			}
			return a.BrightnessScore(b), nil
		}),
		Sharpness: a.measure(ctx, "sharpness", func() (float64, error) {
			s, err := Sharpness(img)
			if err != nil {
				return 0, err
			}
			return a.SharpnessScore(s), nil
		}),
		Contrast: a.measure(ctx, "contrast", func() (float64, error) {
			c, err := Contrast(img)
			if err != nil {
				return 0, err
			}
			return ContrastScore(c), nil
		}),
		Resolution: a.measure(ctx, "resolution", func() (float64, error) {
			return a.ResolutionScore(img.Width(), img.Height()), nil
		}),
	}
}

func (a *Assessor) measure(ctx context.Context, metric string, fn func() (float64, error)) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "quality measurement panicked", "metric", metric, "panic", r)
			score = 0
		}
	}()

	score, err := fn()
	if err != nil {
		a.logger.WarnContext(ctx, "quality measurement failed", "metric", metric, "error", err)
		return 0
	}
	return score
}

// BrightnessScore is 1 inside the configured band, else 0.
func (a *Assessor) BrightnessScore(brightness float64) float64 {
	if brightness >= a.cfg.MinBrightness && brightness <= a.cfg.MaxBrightness {
		return 1
	}
	return 0
}

// SharpnessScore is 1 when the mean gradient exceeds the blur threshold.
func (a *Assessor) SharpnessScore(gradient float64) float64 {
	if gradient > a.cfg.MaxBlur {
		return 1
	}
	return 0
}

// ContrastScore maps a contrast ratio to three tiers.
func ContrastScore(contrast float64) float64 {
	switch {
	case contrast > 0.5:
		return 1
	case contrast > 0.3:
		return 0.5
	default:
		return 0
	}
}

func (a *Assessor) ResolutionScore(width, height int) float64 {
	if min(width, height) >= a.cfg.MinResolution {
		return 1
	}
	return 0
}

// Brightness returns mean luminance normalized to [0,1].
func Brightness(img imaging.Source) (float64, error) {
	if img.Width() == 0 || img.Height() == 0 {
		return 0, errEmptyImage
	}
	return imaging.MeanLuma(img, imaging.Bounds(img)) / 255, nil
}

// Contrast returns (max luma - min luma) / 255.
func Contrast(img imaging.Source) (float64, error) {
	w, h := img.Width(), img.Height()
	if w == 0 || h == 0 {
		return 0, errEmptyImage
	}

	lo, hi := uint8(255), uint8(0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := img.Luma(x, y)
			lo = min(lo, l)
			hi = max(hi, l)
		}
	}
	return float64(hi-lo) / 255, nil
}

// Sharpness returns the mean Sobel gradient magnitude over interior pixels.
func Sharpness(img imaging.Source) (float64, error) {
	w, h := img.Width(), img.Height()
	if w < 3 || h < 3 {
		return 0, fmt.Errorf("sobel needs at least 3x3 pixels, got %dx%d", w, h)
	}

	p := func(x, y int) float64 { return float64(img.Luma(x, y)) }

	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := (p(x+1, y-1) + 2*p(x+1, y) + p(x+1, y+1)) -
				(p(x-1, y-1) + 2*p(x-1, y) + p(x-1, y+1))
			gy := (p(x-1, y+1) + 2*p(x, y+1) + p(x+1, y+1)) -
				(p(x-1, y-1) + 2*p(x, y-1) + p(x+1, y-1))
			sum += math.Sqrt(gx*gx + gy*gy)
		}
	}
	return sum / float64((w-2)*(h-2)), nil
}
