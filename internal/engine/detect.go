package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/liveness"
)

// Detect runs the face model and returns the tagged result. Zero faces is
// NotFound, not an error. Faces below the confidence floor, duplicates
// overlapping above the IoU threshold and faces with eyes closer than the
// minimum distance are discarded before counting.
func (e *Engine) Detect(ctx context.Context, img imaging.Source, opts domain.DetectOptions) (domain.Detection, error) {
	det, _, err := e.detect(ctx, img, opts)
	return det, err
}

// DetectFace requires exactly one face. With RequireFrontal, a face too small
// or turned beyond the pose limit fails with domain.ErrLowQualityImage.
func (e *Engine) DetectFace(ctx context.Context, img imaging.Source, opts domain.DetectOptions) (domain.DetectionResult, error) {
	det, small, err := e.detect(ctx, img, opts)
	if err != nil {
		return domain.DetectionResult{}, err
	}

	switch {
	case !det.Found && opts.RequireFrontal && small > 0:
		return domain.DetectionResult{}, domain.ErrLowQualityImage.WithError(errors.New("face too small"))
	case !det.Found:
		return domain.DetectionResult{}, domain.ErrNoFaceDetected
	case det.Ambiguous():
		return domain.DetectionResult{}, domain.ErrAmbiguousFace.WithError(fmt.Errorf("%d faces", det.FaceCount))
	}

	if opts.RequireFrontal {
		if err := e.checkFrontal(det.Result); err != nil {
			return domain.DetectionResult{}, err
		}
	}
	return det.Result, nil
}

func (e *Engine) detect(ctx context.Context, img imaging.Source, opts domain.DetectOptions) (domain.Detection, int, error) {
	if err := e.registry.EnsureReady(ctx); err != nil {
		return domain.Detection{}, 0, err
	}

	faces, err := e.rawDetect(ctx, img, opts)
	if err != nil {
		return domain.Detection{}, 0, err
	}

	kept, small := e.filter(faces, opts)
	return domain.Detected(kept), small, nil
}

// rawDetect returns the unfiltered model output, cached by image content.
func (e *Engine) rawDetect(ctx context.Context, img imaging.Source, opts domain.DetectOptions) ([]domain.DetectionResult, error) {
	opts.UseGPU = opts.UseGPU || e.cfg.UseGPU

	compute := func(ctx context.Context) ([]domain.DetectionResult, error) {
		faces, err := e.model.Detect(ctx, img, opts)
		if err != nil {
			return nil, wrapModelError(err)
		}
		return faces, nil
	}

	if opts.SkipCache || !e.detected.Enabled() {
		return compute(ctx)
	}

	data, err := img.Encoded()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return e.detected.GetOrCompute(ctx, e.detected.Key(data), 0, compute)
}

func wrapModelError(err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("detect faces: %w", err)
}

// filter applies the confidence floor, non-maximum suppression and the eye
// distance floor. It returns the survivors, best first, and how many were
// dropped for being too small.
func (e *Engine) filter(faces []domain.DetectionResult, opts domain.DetectOptions) ([]domain.DetectionResult, int) {
	minConf := e.cfg.MinConfidence
	if opts.MinConfidence > 0 {
		minConf = opts.MinConfidence
	}
	iou := e.cfg.IoUThreshold
	if opts.IoUThreshold > 0 {
		iou = opts.IoUThreshold
	}

	candidates := make([]domain.DetectionResult, 0, len(faces))
	for _, f := range faces {
		if f.Confidence >= minConf {
			candidates = append(candidates, f)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	kept := make([]domain.DetectionResult, 0, len(candidates))
	small := 0
	for _, c := range candidates {
		if overlapsAny(c, kept, iou) {
			continue
		}
		if d, ok := eyeDistance(c.Landmarks); ok && d < e.cfg.MinEyeDistance {
			small++
			continue
		}
		kept = append(kept, c)
	}
	return kept, small
}

func overlapsAny(c domain.DetectionResult, kept []domain.DetectionResult, threshold float64) bool {
	for _, k := range kept {
		if c.Box.IoU(k.Box) > threshold {
			return true
		}
	}
	return false
}

// eyeDistance is the distance between eye centroids. ok is false when the
// model returned no eye landmarks.
func eyeDistance(l domain.Landmarks) (float64, bool) {
	left, ok := domain.Centroid(l.LeftEye)
	if !ok {
		return 0, false
	}
	right, ok := domain.Centroid(l.RightEye)
	if !ok {
		return 0, false
	}
	return left.Distance(right), true
}

// checkFrontal bounds roll and yaw by MaxPoseAngle. Pitch is judged by the
// liveness head pose check.
func (e *Engine) checkFrontal(face domain.DetectionResult) error {
	var pose domain.Pose
	if face.Pose != nil {
		pose = *face.Pose
	} else {
		p, err := liveness.EstimatePose(face.Landmarks)
		if err != nil {
			return domain.ErrLowQualityImage.WithError(fmt.Errorf("estimate pose: %w", err))
		}
		pose = p
	}

	if math.Abs(pose.Roll) > e.cfg.MaxPoseAngle || math.Abs(pose.Yaw) > e.cfg.MaxPoseAngle {
		return domain.ErrLowQualityImage.WithError(
			fmt.Errorf("face not frontal: roll %.1f, yaw %.1f", pose.Roll, pose.Yaw))
	}
	return nil
}
