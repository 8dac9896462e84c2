package rekognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Provider implements provider.FaceModel using AWS Rekognition DetectFaces.
// Rekognition does not expose embeddings, so Descriptor is always empty.
type Provider struct {
	client *Client
	logger *slog.Logger
	probed atomic.Bool
}

// Models is the registry set Rekognition can serve. It has no recognition
// model, so enroll and mark fail with a descriptor error instead of matching
// empty descriptors.
var Models = []string{
	registry.ModelDetector,
	registry.ModelLandmark,
	registry.ModelExpression,
	registry.ModelAgeGender,
}

// Ensure Provider implements provider.FaceModel interface at compile time
var _ provider.FaceModel = (*Provider)(nil)

// NewProvider creates a new Rekognition provider
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return newProvider(client, logger), nil
}

// NewProviderWithAPI builds a provider around an existing API implementation
func NewProviderWithAPI(api API, logger *slog.Logger) *Provider {
	return newProvider(&Client{rekognition: api, config: DefaultConfig()}, logger)
}

func newProvider(client *Client, logger *slog.Logger) *Provider {
	return &Provider{
		client: client,
		logger: logger.With("component", "rekognition"),
	}
}

// Load confirms the service is reachable. All models are hosted by AWS, so
// the reachability check runs once and later loads are no-ops. Loading the
// recognition model fails: nothing here can produce a descriptor.
func (p *Provider) Load(ctx context.Context, name string) error {
	switch name {
	case registry.ModelDetector, registry.ModelLandmark, registry.ModelExpression, registry.ModelAgeGender:
	case registry.ModelRecognition:
		return fmt.Errorf("%w: %s", ErrNoDescriptors, name)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	if p.probed.Load() {
		return nil
	}
	if err := p.client.Probe(ctx); err != nil {
		return err
	}
	p.probed.Store(true)
	return nil
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// Detect runs DetectFaces with every attribute and converts the ratios
// Rekognition reports into pixels of img.
func (p *Provider) Detect(ctx context.Context, img imaging.Source, _ domain.DetectOptions) ([]domain.DetectionResult, error) {
	data, err := img.Encoded()
	if err != nil {
		return nil, err
	}
	if err := validateImage(data); err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	output, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: data},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", parseError(err))
	}

	w, h := float64(img.Width()), float64(img.Height())
	faces := make([]domain.DetectionResult, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		faces = append(faces, toDetection(detail, w, h))
	}

	p.logger.DebugContext(ctx, "rekognition detection", "faces", len(faces))
	return faces, nil
}

func toDetection(detail types.FaceDetail, w, h float64) domain.DetectionResult {
	bb := detail.BoundingBox
	res := domain.DetectionResult{
		Box: domain.BoundingBox{
			X:      f64(bb.Left) * w,
			Y:      f64(bb.Top) * h,
			Width:  f64(bb.Width) * w,
			Height: f64(bb.Height) * h,
		},
		Confidence: f64(detail.Confidence) / 100,
		Landmarks:  toLandmarks(detail.Landmarks, w, h),
	}

	if detail.Pose != nil {
		res.Pose = &domain.Pose{
			Yaw:   f64(detail.Pose.Yaw),
			Pitch: f64(detail.Pose.Pitch),
			Roll:  f64(detail.Pose.Roll),
		}
	}

	if len(detail.Emotions) > 0 {
		res.Expressions = make(map[string]float64, len(detail.Emotions))
		for _, e := range detail.Emotions {
			res.Expressions[strings.ToLower(string(e.Type))] = f64(e.Confidence) / 100
		}
	}

	if detail.AgeRange != nil {
		res.Age = float64(aws.ToInt32(detail.AgeRange.Low)+aws.ToInt32(detail.AgeRange.High)) / 2
	}
	if detail.Gender != nil {
		res.Gender = strings.ToLower(string(detail.Gender.Value))
	}

	return res
}

// Eye contours follow the 6-point order with each lid point repeated, since
// Rekognition reports a single upper and lower point per eye.
var (
	leftEyeOrder = []types.LandmarkType{
		types.LandmarkTypeLeftEyeLeft, types.LandmarkTypeLeftEyeUp, types.LandmarkTypeLeftEyeUp,
		types.LandmarkTypeLeftEyeRight, types.LandmarkTypeLeftEyeDown, types.LandmarkTypeLeftEyeDown,
	}
	rightEyeOrder = []types.LandmarkType{
		types.LandmarkTypeRightEyeRight, types.LandmarkTypeRightEyeUp, types.LandmarkTypeRightEyeUp,
		types.LandmarkTypeRightEyeLeft, types.LandmarkTypeRightEyeDown, types.LandmarkTypeRightEyeDown,
	}
	noseOrder  = []types.LandmarkType{types.LandmarkTypeNose, types.LandmarkTypeNoseLeft, types.LandmarkTypeNoseRight}
	mouthOrder = []types.LandmarkType{types.LandmarkTypeMouthLeft, types.LandmarkTypeMouthUp, types.LandmarkTypeMouthRight}
)

func toLandmarks(marks []types.Landmark, w, h float64) domain.Landmarks {
	byType := make(map[types.LandmarkType]domain.Point, len(marks))
	for _, m := range marks {
		if m.X == nil || m.Y == nil {
			continue
		}
		byType[m.Type] = domain.Point{X: f64(m.X) * w, Y: f64(m.Y) * h}
	}

	return domain.Landmarks{
		LeftEye:  group(byType, leftEyeOrder),
		RightEye: group(byType, rightEyeOrder),
		Nose:     group(byType, noseOrder),
		Mouth:    group(byType, mouthOrder),
	}
}

// group returns nil unless every point of the group is present.
func group(byType map[types.LandmarkType]domain.Point, order []types.LandmarkType) []domain.Point {
	points := make([]domain.Point, 0, len(order))
	for _, t := range order {
		p, ok := byType[t]
		if !ok {
			return nil
		}
		points = append(points, p)
	}
	return points
}

func f64(v *float32) float64 {
	return float64(aws.ToFloat32(v))
}
