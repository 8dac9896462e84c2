package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/rekognition"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

// NewFaceModel creates the FaceModel selected by configuration
//
// Environment variables:
//   - FACE_PROVIDER: "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5000")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
//   - AWS_ACCESS_KEY_ID: AWS credentials (via AWS SDK credential chain)
//   - AWS_SECRET_ACCESS_KEY: AWS credentials (via AWS SDK credential chain)
func NewFaceModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.FaceModel, error) {
	switch provider.Type(cfg.FaceProvider) {
	case provider.TypeRekognition:
		return createRekognitionProvider(ctx, cfg, logger)

	case provider.TypeDeepFace, "":
		// Default to DeepFace for dev/test environments
		return createDeepFaceProvider(cfg, logger), nil

	case provider.TypeMock:
		logger.Warn("using mock face model, every textured frame yields a synthetic face")
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s, %s)",
			cfg.FaceProvider, provider.TypeDeepFace, provider.TypeRekognition, provider.TypeMock)
	}
}

// Models returns the registry model set the configured provider can serve.
func Models(cfg *config.Config) []string {
	if provider.Type(cfg.FaceProvider) == provider.TypeRekognition {
		return rekognition.Models
	}
	return registry.DefaultModels
}

// createRekognitionProvider creates an AWS Rekognition provider instance
func createRekognitionProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.FaceModel, error) {
	rekogConfig := rekognition.Config{
		Region: cfg.AWSRegion,
	}
	if rekogConfig.Region == "" {
		rekogConfig.Region = rekognition.DefaultConfig().Region
	}

	prov, err := rekognition.NewProvider(ctx, rekogConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider: %w", err)
	}

	return prov, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config, logger *slog.Logger) provider.FaceModel {
	deepfaceConfig := deepface.DefaultConfig()

	// Use defaults for other fields (timeout, model, detector, retry)
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}

	return deepface.NewProvider(deepfaceConfig, logger)
}
