// Package provider defines the face model capability the engine consumes.
package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// Type names a supported face model backend.
type Type string

const (
	// TypeDeepFace is the self-hosted DeepFace API
	TypeDeepFace Type = "deepface"
	// TypeRekognition is AWS Rekognition
	TypeRekognition Type = "rekognition"
	// TypeMock is the deterministic in-process model for development
	TypeMock Type = "mock"
)

// FaceModel detects faces and extracts landmarks, descriptors, expressions
// and demographics from a frame.
type FaceModel interface {
	// Load prepares one named model. Loading a ready model is a no-op.
	Load(ctx context.Context, name string) error

	// Detect returns every face found. An empty slice means no face, not an
	// error.
	Detect(ctx context.Context, img imaging.Source, opts domain.DetectOptions) ([]domain.DetectionResult, error)
}
