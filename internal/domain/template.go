package domain

import (
	"time"

	"github.com/google/uuid"
)

// FaceTemplate representa o descritor facial cadastrado de um usuário
type FaceTemplate struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	Descriptor   []float64 `json:"-"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DistanceMetric selects how descriptors are compared.
type DistanceMetric string

const (
	MetricCosine DistanceMetric = "cosine"
	MetricL2     DistanceMetric = "l2"
)

// IdentityMatch is the outcome of comparing a probe descriptor with a template.
type IdentityMatch struct {
	UserID     string         `json:"user_id"`
	Metric     DistanceMetric `json:"metric"`
	Distance   float64        `json:"distance"`
	Similarity float64        `json:"similarity"`
	Matched    bool           `json:"matched"`
}

// AttendanceResult combines liveness and identity for an attendance mark.
type AttendanceResult struct {
	Decision *VerificationDecision `json:"decision"`
	Match    IdentityMatch         `json:"match"`
	Accepted bool                  `json:"accepted"`
}
