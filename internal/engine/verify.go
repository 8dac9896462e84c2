package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/presenca/internal/antispoof"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// Frame is one capture of a sequence. A zero CapturedAt is treated as inside
// the time window.
type Frame struct {
	Image      imaging.Source
	CapturedAt time.Time
}

// VerifyLiveness decides whether img shows a live, present face of
// sufficient quality. Detection failures (no face, several faces, model
// unavailable) are returned as errors and nothing is scored. Exceeding the
// configured timeout returns domain.ErrTimeout.
func (e *Engine) VerifyLiveness(ctx context.Context, img imaging.Source) (*domain.VerificationDecision, error) {
	if img == nil {
		return nil, domain.ErrInvalidImage
	}
	return e.verify(ctx, []imaging.Source{img}, audit.EventLivenessVerified)
}

// VerifySequence verifies a multi-frame capture. Frames captured more than
// TimeWindow after the first are dropped. The face is taken from the last
// frame, liveness is aggregated over every frame with a single face and the
// motion analysis sees all kept frames.
func (e *Engine) VerifySequence(ctx context.Context, frames []Frame) (*domain.VerificationDecision, error) {
	images := e.window(ctx, frames)
	if len(images) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("sequence has no frames"))
	}
	return e.verify(ctx, images, audit.EventSequenceVerified)
}

func (e *Engine) window(ctx context.Context, frames []Frame) []imaging.Source {
	var first time.Time
	started := false
	images := make([]imaging.Source, 0, len(frames))

	for i, f := range frames {
		if f.Image == nil {
			continue
		}
		if !started {
			first = f.CapturedAt
			started = true
		}
		if !f.CapturedAt.IsZero() && !first.IsZero() && f.CapturedAt.Sub(first) > e.cfg.TimeWindow {
			e.logger.DebugContext(ctx, "frame outside time window",
				"index", i, "offset", f.CapturedAt.Sub(first).String())
			continue
		}
		images = append(images, f.Image)
	}
	return images
}

func (e *Engine) verify(ctx context.Context, frames []imaging.Source, event audit.EventType) (*domain.VerificationDecision, error) {
	start := e.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TimeoutDuration)
	defer cancel()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, e.timeout(ctx, fmt.Errorf("acquire slot: %w", err))
	}
	defer e.sem.Release(1)

	last := frames[len(frames)-1]
	face, err := e.DetectFace(ctx, last, domain.DetectOptions{UseGPU: e.cfg.UseGPU})
	if err != nil {
		return nil, e.timeout(ctx, err)
	}

	var (
		metrics  domain.QualityMetrics
		live     domain.LivenessResult
		spoof    domain.AntiSpoofResult
		liveUsed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics = e.quality.Assess(gctx, last)
		return gctx.Err()
	})
	g.Go(func() error {
		live, liveUsed = e.scoreLiveness(gctx, frames, face)
		return gctx.Err()
	})
	g.Go(func() error {
		spoof = e.antispoof.Fuse(gctx, antispoof.Input{Frame: last, Frames: frames, Face: face})
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, e.timeout(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.timeout(ctx, err)
	}

	decision := e.decide(metrics, live, spoof)
	decision.Detection = face
	decision.FramesUsed = liveUsed
	decision.DecidedAt = e.clock.Now()
	decision.ProcessingMs = e.elapsed(start)

	e.record(ctx, event, decision)
	return decision, nil
}

// scoreLiveness scores the last frame's face and, for sequences, every
// earlier frame holding exactly one face.
func (e *Engine) scoreLiveness(ctx context.Context, frames []imaging.Source, face domain.DetectionResult) (domain.LivenessResult, int) {
	if len(frames) == 1 {
		return e.liveness.Score(ctx, face), 1
	}

	results := make([]domain.LivenessResult, 0, len(frames))
	for i, f := range frames[:len(frames)-1] {
		det, err := e.Detect(ctx, f, domain.DetectOptions{UseGPU: e.cfg.UseGPU})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.WarnContext(ctx, "sequence frame detection failed", "index", i, "error", err)
			continue
		}
		if !det.Found || det.Ambiguous() {
			e.logger.DebugContext(ctx, "sequence frame skipped", "index", i, "faces", det.FaceCount)
			continue
		}
		results = append(results, e.liveness.Score(ctx, det.Result))
	}
	results = append(results, e.liveness.Score(ctx, face))

	return e.liveness.Aggregate(results), len(results)
}

// decide applies the three gates. IsLive holds only when every score reaches
// its minimum.
func (e *Engine) decide(q domain.QualityMetrics, l domain.LivenessResult, a domain.AntiSpoofResult) *domain.VerificationDecision {
	scores := domain.Scores{
		Liveness:     l.Score,
		AntiSpoofing: a.Score,
		Quality:      q.Overall(),
	}

	return &domain.VerificationDecision{
		RequestID: uuid.New(),
		IsLive: scores.Liveness >= e.cfg.MinLivenessScore &&
			scores.AntiSpoofing >= e.cfg.MinAntiSpoofScore &&
			scores.Quality >= e.cfg.MinQualityScore,
		Scores: scores,
		Checks: domain.Checks{
			Quality:   q,
			Liveness:  l,
			AntiSpoof: a,
		},
	}
}

func (e *Engine) record(ctx context.Context, event audit.EventType, d *domain.VerificationDecision) {
	ev := audit.FromDecision(event, d)
	ev.Model = e.modelName
	if err := e.audit.Log(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "audit log failed", "error", err)
	}

	e.logger.InfoContext(ctx, "verification decided",
		"request_id", d.RequestID.String(),
		"is_live", d.IsLive,
		"liveness", d.Scores.Liveness,
		"anti_spoofing", d.Scores.AntiSpoofing,
		"quality", d.Scores.Quality,
		"frames", d.FramesUsed,
		"processing_ms", d.ProcessingMs,
	)
}

// timeout converts an error caused by the verification deadline into
// domain.ErrTimeout.
func (e *Engine) timeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrTimeout.WithError(err)
	}
	return err
}
