package domain

import (
	"time"

	"github.com/google/uuid"
)

// QualityMetrics holds the four pixel-derived quality scores.
type QualityMetrics struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
	Contrast   float64 `json:"contrast"`
	Resolution float64 `json:"resolution"`
}

// Overall is the unweighted mean of the four sub-scores.
func (q QualityMetrics) Overall() float64 {
	return (q.Brightness + q.Sharpness + q.Contrast + q.Resolution) / 4
}

// LivenessResult is the per-frame liveness breakdown.
type LivenessResult struct {
	EyesOpen           bool    `json:"eyes_open"`
	NaturalExpressions bool    `json:"natural_expressions"`
	HeadPose           bool    `json:"head_pose"`
	FaceSymmetry       float64 `json:"face_symmetry"`
	Score              float64 `json:"score"`
}

// AntiSpoofResult is the fused anti-spoofing score. Sub-scores are nil
// when the analysis is disabled.
type AntiSpoofResult struct {
	Score   float64  `json:"score"`
	Texture *float64 `json:"texture,omitempty"`
	Motion  *float64 `json:"motion,omitempty"`
	Depth   *float64 `json:"depth,omitempty"`
}

// Scores are the three top-level gates of a decision.
type Scores struct {
	Liveness     float64 `json:"liveness"`
	AntiSpoofing float64 `json:"anti_spoofing"`
	Quality      float64 `json:"quality"`
}

// Checks is the full breakdown behind Scores.
type Checks struct {
	Quality   QualityMetrics  `json:"quality"`
	Liveness  LivenessResult  `json:"liveness"`
	AntiSpoof AntiSpoofResult `json:"anti_spoof"`
}

// VerificationDecision is the result of a liveness verification.
type VerificationDecision struct {
	RequestID    uuid.UUID       `json:"request_id"`
	IsLive       bool            `json:"is_live"`
	Scores       Scores          `json:"scores"`
	Checks       Checks          `json:"checks"`
	Detection    DetectionResult `json:"-"`
	FramesUsed   int             `json:"frames_used"`
	ProcessingMs int64           `json:"processing_ms"`
	DecidedAt    time.Time       `json:"decided_at"`
}
