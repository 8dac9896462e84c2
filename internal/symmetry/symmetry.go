// Package symmetry measures bilateral facial symmetry from landmarks.
package symmetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

var (
	ErrMissingGroup = errors.New("landmark group is empty")
	ErrMalformed    = errors.New("landmark group is malformed")
)

// Analyzer scores how symmetric a face is around its nose.
type Analyzer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With("component", "symmetry")}
}

// Score maps the raw ratio to 1, 0.8 or 0.5. Unusable landmarks score 0.
func (a *Analyzer) Score(ctx context.Context, l domain.Landmarks) float64 {
	ratio, err := Ratio(l)
	if err != nil {
		a.logger.WarnContext(ctx, "symmetry unavailable", "error", err)
		return 0
	}
	return Tier(ratio)
}

// Tier maps a symmetry ratio to its score. Symmetry alone never zeroes a
// verification.
func Tier(ratio float64) float64 {
	switch {
	case ratio > 0.9:
		return 1
	case ratio > 0.8:
		return 0.8
	default:
		return 0.5
	}
}

// Ratio returns the mean of the eye-pair and mouth-half ratios, each
// min/max of the mean distance of a side's points to the nose centroid.
// The value is unchanged under horizontal mirroring.
func Ratio(l domain.Landmarks) (float64, error) {
	center, ok := l.NoseCenter()
	if !ok {
		return 0, fmt.Errorf("nose: %w", ErrMissingGroup)
	}
	if !finite(center) {
		return 0, fmt.Errorf("nose: %w", ErrMalformed)
	}

	eyes, err := pairRatio(center, l.LeftEye, l.RightEye)
	if err != nil {
		return 0, fmt.Errorf("eyes: %w", err)
	}

	if len(l.Mouth) < 2 {
		return 0, fmt.Errorf("mouth: %w", ErrMalformed)
	}
	mid := len(l.Mouth) / 2
	mouth, err := pairRatio(center, l.Mouth[:mid], l.Mouth[len(l.Mouth)-mid:])
	if err != nil {
		return 0, fmt.Errorf("mouth: %w", err)
	}

	return (eyes + mouth) / 2, nil
}

func pairRatio(center domain.Point, left, right []domain.Point) (float64, error) {
	if len(left) == 0 || len(right) == 0 {
		return 0, ErrMissingGroup
	}

	dl, err := meanDistance(center, left)
	if err != nil {
		return 0, err
	}
	dr, err := meanDistance(center, right)
	if err != nil {
		return 0, err
	}

	hi := math.Max(dl, dr)
	if hi == 0 {
		return 0, ErrMalformed
	}
	return math.Min(dl, dr) / hi, nil
}

func meanDistance(center domain.Point, points []domain.Point) (float64, error) {
	var sum float64
	for _, p := range points {
		if !finite(p) {
			return 0, ErrMalformed
		}
		sum += center.Distance(p)
	}
	return sum / float64(len(points)), nil
}

func finite(p domain.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
