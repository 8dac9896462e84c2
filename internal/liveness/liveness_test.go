package liveness

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/symmetry"
)

func pts(xy ...float64) []domain.Point {
	out := make([]domain.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, domain.Point{X: xy[i], Y: xy[i+1]})
	}
	return out
}

// eye builds a 6-point contour centred on (cx, cy) with the given opening.
func eye(cx, cy, opening float64) []domain.Point {
	return pts(
		cx-6, cy,
		cx-2, cy-opening,
		cx+2, cy-opening,
		cx+6, cy,
		cx+2, cy+opening,
		cx-2, cy+opening,
	)
}

func face(opening float64) domain.Landmarks {
	return domain.Landmarks{
		LeftEye:  eye(36, 40, opening),
		RightEye: eye(64, 40, opening),
		Nose:     pts(50, 45, 50, 52, 50, 58),
		Mouth:    pts(38, 72, 44, 70, 50, 71, 56, 70, 62, 72, 50, 76),
	}
}

func testScorer() *Scorer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultConfig(), symmetry.New(logger), logger)
}

func TestEyeAspectRatio(t *testing.T) {
	ear, err := EyeAspectRatio(eye(0, 0, 3))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ear, 1e-9)

	closed, err := EyeAspectRatio(eye(0, 0, 0.3))
	require.NoError(t, err)
	assert.Less(t, closed, 0.2)

	_, err = EyeAspectRatio(pts(0, 0, 1, 1))
	assert.Error(t, err)

	_, err = EyeAspectRatio(eye(0, 0, 3)[:1])
	assert.Error(t, err)
}

func TestEstimatePose(t *testing.T) {
	t.Run("frontal", func(t *testing.T) {
		pose, err := EstimatePose(face(3))
		require.NoError(t, err)
		assert.InDelta(t, 0, pose.Yaw, 1)
		assert.InDelta(t, 0, pose.Roll, 1e-9)
		assert.Less(t, pose.Pitch, 10.0)
	})

	t.Run("turned", func(t *testing.T) {
		l := face(3)
		for i := range l.Nose {
			l.Nose[i].X += 14
		}
		pose, err := EstimatePose(l)
		require.NoError(t, err)
		assert.InDelta(t, 45, pose.Yaw, 1e-6)
	})

	t.Run("labels swapped", func(t *testing.T) {
		l := face(3)
		l.LeftEye, l.RightEye = l.RightEye, l.LeftEye
		pose, err := EstimatePose(l)
		require.NoError(t, err)
		assert.InDelta(t, 0, pose.Roll, 1e-9)
	})

	t.Run("missing nose", func(t *testing.T) {
		l := face(3)
		l.Nose = nil
		_, err := EstimatePose(l)
		assert.Error(t, err)
	})
}

func TestCombine(t *testing.T) {
	assert.Equal(t, 1.0, Combine(true, true, true, 1))
	assert.Equal(t, 0.0, Combine(false, false, false, 0))
	assert.Equal(t, 0.625, Combine(true, true, false, 0.5))

	// Each failing check must not increase the score.
	base := Combine(true, true, true, 0.8)
	assert.Less(t, Combine(false, true, true, 0.8), base)
	assert.Less(t, Combine(true, false, true, 0.8), base)
	assert.Less(t, Combine(true, true, false, 0.8), base)
	assert.Less(t, Combine(true, true, true, 0.5), base)
}

func TestNaturalExpressions(t *testing.T) {
	s := testScorer()

	tests := []struct {
		name string
		expr map[string]float64
		want bool
	}{
		{"empty", nil, false},
		{"pinned", map[string]float64{"neutral": 0.99, "happy": 0.01, "sad": 0}, false},
		{"spread", map[string]float64{"neutral": 0.7, "happy": 0.25, "sad": 0.05}, true},
		{"dominant but secondary present", map[string]float64{"neutral": 0.96, "happy": 0.08}, true},
		{"single label below pin", map[string]float64{"neutral": 0.6}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NaturalExpressions(tt.expr))
		})
	}
}

func TestScore(t *testing.T) {
	s := testScorer()
	ctx := context.Background()
	natural := map[string]float64{"neutral": 0.7, "happy": 0.3}

	t.Run("live frontal face", func(t *testing.T) {
		r := s.Score(ctx, domain.DetectionResult{Landmarks: face(3), Expressions: natural})
		assert.True(t, r.EyesOpen)
		assert.True(t, r.NaturalExpressions)
		assert.True(t, r.HeadPose)
		assert.Equal(t, 1.0, r.FaceSymmetry)
		assert.Equal(t, 1.0, r.Score)
	})

	t.Run("closed eyes lower the score", func(t *testing.T) {
		r := s.Score(ctx, domain.DetectionResult{Landmarks: face(0.5), Expressions: natural})
		assert.False(t, r.EyesOpen)
		assert.Equal(t, 0.75, r.Score)
	})

	t.Run("provider pose wins over geometry", func(t *testing.T) {
		r := s.Score(ctx, domain.DetectionResult{
			Landmarks:   face(3),
			Expressions: natural,
			Pose:        &domain.Pose{Yaw: 50},
		})
		assert.False(t, r.HeadPose)
	})

	t.Run("missing landmarks fail closed", func(t *testing.T) {
		r := s.Score(ctx, domain.DetectionResult{Expressions: natural})
		assert.False(t, r.EyesOpen)
		assert.False(t, r.HeadPose)
		assert.Equal(t, 0.0, r.FaceSymmetry)
		assert.Equal(t, 0.25, r.Score)
	})
}

func TestAggregate(t *testing.T) {
	s := testScorer()
	open := domain.LivenessResult{EyesOpen: true, NaturalExpressions: true, HeadPose: true, FaceSymmetry: 1, Score: 1}
	closed := open
	closed.EyesOpen = false
	closed.Score = Combine(false, true, true, 1)

	tests := []struct {
		name     string
		frames   []domain.LivenessResult
		wantEyes bool
	}{
		{"single frame passes through", []domain.LivenessResult{open}, true},
		{"short capture uses last frame", []domain.LivenessResult{closed, open}, true},
		{"blink observed", []domain.LivenessResult{open, closed, closed, open}, true},
		{"no blink", []domain.LivenessResult{open, open, open, open}, false},
		{"blink too short", []domain.LivenessResult{open, closed, open, open}, false},
		{"eyes never open", []domain.LivenessResult{closed, closed, closed}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.Aggregate(tt.frames)
			assert.Equal(t, tt.wantEyes, r.EyesOpen)
			assert.Equal(t, Combine(r.EyesOpen, r.NaturalExpressions, r.HeadPose, r.FaceSymmetry), r.Score)
		})
	}

	assert.Equal(t, domain.LivenessResult{}, s.Aggregate(nil))

	mixed := s.Aggregate([]domain.LivenessResult{
		{NaturalExpressions: true, FaceSymmetry: 1},
		{NaturalExpressions: false, FaceSymmetry: 0.5},
	})
	assert.False(t, mixed.NaturalExpressions, "needs strict majority")
	assert.Equal(t, 0.75, mixed.FaceSymmetry)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.BlinkFrameThreshold = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ExpressionChangeThreshold = 0.6
	assert.Error(t, bad.Validate())
}
