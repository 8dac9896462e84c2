package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/engine"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// Verifier is the engine surface used by the verification endpoints
type Verifier interface {
	Detect(ctx context.Context, img imaging.Source, opts domain.DetectOptions) (domain.Detection, error)
	VerifyLiveness(ctx context.Context, img imaging.Source) (*domain.VerificationDecision, error)
	VerifySequence(ctx context.Context, frames []engine.Frame) (*domain.VerificationDecision, error)
}

// VerificationHandler serves liveness and detection requests
type VerificationHandler struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewVerificationHandler creates a new VerificationHandler instance
func NewVerificationHandler(verifier Verifier, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		verifier: verifier,
		logger:   logger,
	}
}

// FaceResponse is a detected face without its descriptor
type FaceResponse struct {
	Box         domain.BoundingBox `json:"box"`
	Confidence  float64            `json:"confidence"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
	Age         float64            `json:"age,omitempty"`
	Gender      string             `json:"gender,omitempty"`
	Pose        *domain.Pose       `json:"pose,omitempty"`
}

// DetectResponse response for detect endpoint
type DetectResponse struct {
	Found     bool           `json:"found"`
	FaceCount int            `json:"face_count"`
	Faces     []FaceResponse `json:"faces"`
}

// Liveness POST /v1/liveness - verify a single frame
func (h *VerificationHandler) Liveness(c *fiber.Ctx) error {
	img, err := extractImage(c)
	if err != nil {
		return err
	}

	decision, err := h.verifier.VerifyLiveness(c.UserContext(), img)
	if err != nil {
		return err
	}

	return c.JSON(decision)
}

// Sequence POST /v1/liveness/sequence - verify an ordered burst of frames
func (h *VerificationHandler) Sequence(c *fiber.Ctx) error {
	frames, err := extractFrames(c)
	if err != nil {
		return err
	}

	decision, err := h.verifier.VerifySequence(c.UserContext(), frames)
	if err != nil {
		return err
	}

	return c.JSON(decision)
}

// Detect POST /v1/detect - run face detection only
func (h *VerificationHandler) Detect(c *fiber.Ctx) error {
	img, err := extractImage(c)
	if err != nil {
		return err
	}

	opts, err := detectOptions(c)
	if err != nil {
		return err
	}

	det, err := h.verifier.Detect(c.UserContext(), img, opts)
	if err != nil {
		return err
	}

	resp := DetectResponse{
		Found:     det.Found,
		FaceCount: det.FaceCount,
		Faces:     make([]FaceResponse, 0, len(det.Faces)),
	}
	for _, f := range det.Faces {
		resp.Faces = append(resp.Faces, FaceResponse{
			Box:         f.Box,
			Confidence:  f.Confidence,
			Expressions: f.Expressions,
			Age:         f.Age,
			Gender:      f.Gender,
			Pose:        f.Pose,
		})
	}

	return c.JSON(resp)
}

func detectOptions(c *fiber.Ctx) (domain.DetectOptions, error) {
	var opts domain.DetectOptions

	if v := c.FormValue("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return opts, domain.ErrValidationFailed.WithError(errInvalidField("min_confidence"))
		}
		opts.MinConfidence = f
	}
	if v := c.FormValue("require_frontal"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, domain.ErrValidationFailed.WithError(errInvalidField("require_frontal"))
		}
		opts.RequireFrontal = b
	}

	return opts, nil
}
