// Package liveness scores whether a detected face belongs to a present,
// live subject.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/symmetry"
)

type Config struct {
	EyeAspectRatioThreshold   float64
	ExpressionChangeThreshold float64
	// HeadPoseThreshold is the yaw and pitch limit in degrees.
	HeadPoseThreshold float64
	// BlinkFrameThreshold is the number of consecutive closed-eye frames
	// that count as a blink in a multi-frame capture.
	BlinkFrameThreshold int
}

func DefaultConfig() Config {
	return Config{
		EyeAspectRatioThreshold:   0.2,
		ExpressionChangeThreshold: 0.05,
		HeadPoseThreshold:         30,
		BlinkFrameThreshold:       2,
	}
}

func (c Config) Validate() error {
	if c.EyeAspectRatioThreshold <= 0 {
		return fmt.Errorf("eye aspect ratio threshold %v must be positive", c.EyeAspectRatioThreshold)
	}
	if c.ExpressionChangeThreshold <= 0 || c.ExpressionChangeThreshold >= 0.5 {
		return fmt.Errorf("expression change threshold %v outside (0, 0.5)", c.ExpressionChangeThreshold)
	}
	if c.HeadPoseThreshold <= 0 || c.HeadPoseThreshold > 90 {
		return fmt.Errorf("head pose threshold %v outside (0, 90]", c.HeadPoseThreshold)
	}
	if c.BlinkFrameThreshold < 1 {
		return fmt.Errorf("blink frame threshold %d must be at least 1", c.BlinkFrameThreshold)
	}
	return nil
}

// Scorer evaluates a single frame's detection.
type Scorer struct {
	cfg      Config
	symmetry *symmetry.Analyzer
	logger   *slog.Logger
}

func New(cfg Config, sym *symmetry.Analyzer, logger *slog.Logger) *Scorer {
	return &Scorer{
		cfg:      cfg,
		symmetry: sym,
		logger:   logger.With("component", "liveness"),
	}
}

// Combine is the liveness score: the mean of the three checks as 1/0 and the
// symmetry score. A failing check never raises the score.
func Combine(eyesOpen, naturalExpressions, headPose bool, faceSymmetry float64) float64 {
	return (b2f(eyesOpen) + b2f(naturalExpressions) + b2f(headPose) + faceSymmetry) / 4
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Score evaluates eyes, expressions, pose and symmetry of one detection.
func (s *Scorer) Score(ctx context.Context, det domain.DetectionResult) domain.LivenessResult {
	r := domain.LivenessResult{
		EyesOpen:           s.eyesOpen(ctx, det.Landmarks),
		NaturalExpressions: s.NaturalExpressions(det.Expressions),
		HeadPose:           s.headPose(ctx, det),
		FaceSymmetry:       s.symmetry.Score(ctx, det.Landmarks),
	}
	r.Score = Combine(r.EyesOpen, r.NaturalExpressions, r.HeadPose, r.FaceSymmetry)
	return r
}

func (s *Scorer) eyesOpen(ctx context.Context, l domain.Landmarks) bool {
	ear, err := MeanEyeAspectRatio(l)
	if err != nil {
		s.logger.DebugContext(ctx, "eye state unavailable", "error", err)
		return false
	}
	return ear >= s.cfg.EyeAspectRatioThreshold
}

// NaturalExpressions is false for an empty distribution or one pinned to a
// single label, which is typical of a static photo.
func (s *Scorer) NaturalExpressions(expr map[string]float64) bool {
	if len(expr) == 0 {
		return false
	}

	thr := s.cfg.ExpressionChangeThreshold
	top := ""
	for label, p := range expr {
		if math.IsNaN(p) {
			return false
		}
		if top == "" || p > expr[top] {
			top = label
		}
	}
	if expr[top] < 1-thr {
		return true
	}
	for label, p := range expr {
		if label != top && p > thr {
			return true
		}
	}
	return false
}

func (s *Scorer) headPose(ctx context.Context, det domain.DetectionResult) bool {
	pose := det.Pose
	if pose == nil {
		est, err := EstimatePose(det.Landmarks)
		if err != nil {
			s.logger.DebugContext(ctx, "head pose unavailable", "error", err)
			return false
		}
		pose = &est
	}
	return math.Abs(pose.Yaw) < s.cfg.HeadPoseThreshold && math.Abs(pose.Pitch) < s.cfg.HeadPoseThreshold
}

// Aggregate folds per-frame results of a capture into one. When the capture
// is long enough to hold a blink, eyes count as open only if a run of at
// least BlinkFrameThreshold closed frames was seen and the eyes were open at
// some point. Other checks need a strict majority of frames.
func (s *Scorer) Aggregate(frames []domain.LivenessResult) domain.LivenessResult {
	switch len(frames) {
	case 0:
		return domain.LivenessResult{}
	case 1:
		return frames[0]
	}

	var open, natural, pose, run, longest int
	var sym float64
	for _, f := range frames {
		if f.EyesOpen {
			open++
			run = 0
		} else {
			run++
			longest = max(longest, run)
		}
		if f.NaturalExpressions {
			natural++
		}
		if f.HeadPose {
			pose++
		}
		sym += f.FaceSymmetry
	}

	n := len(frames)
	r := domain.LivenessResult{
		NaturalExpressions: natural*2 > n,
		HeadPose:           pose*2 > n,
		FaceSymmetry:       sym / float64(n),
	}
	if n >= s.cfg.BlinkFrameThreshold+1 {
		r.EyesOpen = open > 0 && longest >= s.cfg.BlinkFrameThreshold
	} else {
		r.EyesOpen = frames[n-1].EyesOpen
	}
	r.Score = Combine(r.EyesOpen, r.NaturalExpressions, r.HeadPose, r.FaceSymmetry)
	return r
}
