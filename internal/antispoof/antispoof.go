// Package antispoof fuses presentation attack signals into a single score.
package antispoof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

type Config struct {
	TextureAnalysis bool
	MotionAnalysis  bool
	DepthAnalysis   bool

	// MotionBlockSize is the side in pixels of the blocks compared between
	// frames.
	MotionBlockSize int
	// DepthRelief is the residual depth deviation, in sensor units, that
	// scores a full 1.
	DepthRelief float64
}

// DefaultConfig enables texture only. Motion needs a multi-frame capture and
// depth needs a depth sensor.
func DefaultConfig() Config {
	return Config{
		TextureAnalysis: true,
		MotionBlockSize: 8,
		DepthRelief:     15,
	}
}

// Validate fails when no analysis is enabled.
func (c Config) Validate() error {
	if !c.TextureAnalysis && !c.MotionAnalysis && !c.DepthAnalysis {
		return domain.ErrConfiguration.WithError(errors.New("no anti-spoofing analysis enabled"))
	}
	if c.MotionAnalysis && c.MotionBlockSize < 2 {
		return domain.ErrConfiguration.WithError(fmt.Errorf("motion block size %d too small", c.MotionBlockSize))
	}
	if c.DepthAnalysis && c.DepthRelief <= 0 {
		return domain.ErrConfiguration.WithError(fmt.Errorf("depth relief %v must be positive", c.DepthRelief))
	}
	return nil
}

// Input is what the analyses look at.
type Input struct {
	// Frame is the frame the face was detected in.
	Frame imaging.Source
	// Frames is the full capture, oldest first. Motion needs at least two.
	Frames []imaging.Source
	Face   domain.DetectionResult
}

type analysis struct {
	name string
	run  func(ctx context.Context, in Input) (float64, error)
}

// Fusion runs the enabled analyses and averages their scores.
type Fusion struct {
	cfg      Config
	analyses []analysis
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Fusion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Fusion{cfg: cfg, logger: logger.With("component", "antispoof")}
	if cfg.TextureAnalysis {
		f.analyses = append(f.analyses, analysis{name: "texture", run: Texture})
	}
	if cfg.MotionAnalysis {
		f.analyses = append(f.analyses, analysis{name: "motion", run: f.motion})
	}
	if cfg.DepthAnalysis {
		f.analyses = append(f.analyses, analysis{name: "depth", run: f.depth})
	}
	return f, nil
}

// Fuse runs every enabled analysis concurrently. A failing analysis scores 0.
func (f *Fusion) Fuse(ctx context.Context, in Input) domain.AntiSpoofResult {
	scores := make([]float64, len(f.analyses))

	var g errgroup.Group
	for i, a := range f.analyses {
		g.Go(func() error {
			scores[i] = f.run(ctx, a, in)
			return nil
		})
	}
	_ = g.Wait()

	var res domain.AntiSpoofResult
	var sum float64
	for i, a := range f.analyses {
		s := scores[i]
		sum += s
		switch a.name {
		case "texture":
			res.Texture = &s
		case "motion":
			res.Motion = &s
		case "depth":
			res.Depth = &s
		}
	}
	res.Score = sum / float64(len(f.analyses))
	return res
}

func (f *Fusion) run(ctx context.Context, a analysis, in Input) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.ErrorContext(ctx, "anti-spoof analysis panicked", "analysis", a.name, "panic", r)
			score = 0
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0
	}

	score, err := a.run(ctx, in)
	if err != nil {
		f.logger.WarnContext(ctx, "anti-spoof analysis failed", "analysis", a.name, "error", err)
		return 0
	}
	return clamp01(score)
}

func (f *Fusion) motion(ctx context.Context, in Input) (float64, error) {
	return Motion(ctx, in.Frames, in.Face.Box, f.cfg.MotionBlockSize)
}

func (f *Fusion) depth(_ context.Context, in Input) (float64, error) {
	ds, ok := in.Frame.(imaging.DepthSource)
	if !ok {
		return 0, errNoDepth
	}
	return Depth(ds, in.Face.Box, f.cfg.DepthRelief)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
