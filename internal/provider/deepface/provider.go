package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
	// minMatchIoU pairs an analyzed face with its embedding
	minMatchIoU = 0.5
)

// Provider implements provider.FaceModel using the DeepFace API.
// DeepFace reports eye centres only, so eye contours, nose and mouth groups
// stay empty and the geometric liveness checks fail closed.
type Provider struct {
	client *Client
	logger *slog.Logger
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config, logger *slog.Logger) *Provider {
	return &Provider{
		client: NewClient(config),
		logger: logger.With("component", "deepface"),
	}
}

// Load checks the service answers. Every model is hosted by the same
// DeepFace deployment.
func (p *Provider) Load(ctx context.Context, name string) error {
	switch name {
	case registry.ModelDetector, registry.ModelLandmark, registry.ModelRecognition,
		registry.ModelExpression, registry.ModelAgeGender:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return p.client.Ping(ctx)
}

// Detect runs analyze and represent concurrently and pairs their faces by
// overlap. The GPU flag is decided by the DeepFace deployment.
func (p *Provider) Detect(ctx context.Context, img imaging.Source, _ domain.DetectOptions) ([]domain.DetectionResult, error) {
	data, err := img.Encoded()
	if err != nil {
		return nil, err
	}
	imageBase64 := base64.StdEncoding.EncodeToString(data)

	var analyzed *AnalyzeResponse
	var represented *RepresentResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := p.client.Analyze(gctx, imageBase64)
		analyzed = resp
		return err
	})
	g.Go(func() error {
		resp, err := p.client.Represent(gctx, imageBase64)
		represented = resp
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]domain.DetectionResult, 0, len(analyzed.Results))
	for _, result := range analyzed.Results {
		box := toBox(result.Region)
		face := domain.DetectionResult{
			Box:         box,
			Confidence:  confidence(result, img),
			Landmarks:   eyeCentres(result.Region),
			Expressions: toProbabilities(result.Emotion),
			Age:         result.Age,
			Gender:      strings.ToLower(result.DominantGender),
		}

		if emb, ok := matchEmbedding(box, represented.Results); ok {
			face.Descriptor = emb
		}
		faces = append(faces, face)
	}

	p.logger.DebugContext(ctx, "deepface detection", "faces", len(faces))
	return faces, nil
}

func toBox(a FacialArea) domain.BoundingBox {
	return domain.BoundingBox{
		X:      float64(a.X),
		Y:      float64(a.Y),
		Width:  float64(a.W),
		Height: float64(a.H),
	}
}

// confidence prefers the detector's own score. Older deployments omit it;
// a region covering the whole frame then means nothing was detected and any
// other region is scored by its size.
func confidence(r AnalyzeResult, img imaging.Source) float64 {
	if r.FaceConfidence > 0 {
		return math.Min(r.FaceConfidence, 1)
	}
	if r.Region.X == 0 && r.Region.Y == 0 && r.Region.W >= img.Width() && r.Region.H >= img.Height() {
		return 0
	}
	return calculateConfidence(float64(r.Region.W * r.Region.H))
}

// calculateConfidence estimates confidence based on face area
// Larger faces are more likely to be accurately detected
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

func eyeCentres(a FacialArea) domain.Landmarks {
	var l domain.Landmarks
	if len(a.LeftEye) == 2 {
		l.LeftEye = []domain.Point{{X: float64(a.LeftEye[0]), Y: float64(a.LeftEye[1])}}
	}
	if len(a.RightEye) == 2 {
		l.RightEye = []domain.Point{{X: float64(a.RightEye[0]), Y: float64(a.RightEye[1])}}
	}
	return l
}

// toProbabilities converts percentages to [0, 1] with lowercase labels.
func toProbabilities(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}
	out := make(map[string]float64, len(scores))
	for label, pct := range scores {
		out[strings.ToLower(label)] = math.Max(0, math.Min(pct/100, 1))
	}
	return out
}

func matchEmbedding(box domain.BoundingBox, results []RepresentResult) ([]float64, bool) {
	best, bestIoU := -1, minMatchIoU
	for i, r := range results {
		if iou := box.IoU(toBox(r.FacialArea)); iou >= bestIoU {
			best, bestIoU = i, iou
		}
	}
	if best < 0 || len(results[best].Embedding) == 0 {
		return nil, false
	}
	return results[best].Embedding, true
}

// Ensure Provider implements provider.FaceModel
var _ provider.FaceModel = (*Provider)(nil)
