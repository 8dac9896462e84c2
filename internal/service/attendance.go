package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/similarity"
)

// TemplateStore persists one face template per user.
type TemplateStore interface {
	Save(ctx context.Context, tpl *domain.FaceTemplate) error
	GetByUserID(ctx context.Context, userID string) (*domain.FaceTemplate, error)
	Delete(ctx context.Context, userID string) error
}

// Verifier is the part of engine.Engine the attendance flow depends on.
type Verifier interface {
	DetectFace(ctx context.Context, img imaging.Source, opts domain.DetectOptions) (domain.DetectionResult, error)
	VerifyLiveness(ctx context.Context, img imaging.Source) (*domain.VerificationDecision, error)
}

// QualityAssessor scores the capture used for enrollment.
type QualityAssessor interface {
	Assess(ctx context.Context, img imaging.Source) domain.QualityMetrics
}

// Attendance enrolls users and marks attendance by combining the liveness
// verdict with a descriptor match against the enrolled template.
type Attendance struct {
	templates TemplateStore
	verifier  Verifier
	quality   QualityAssessor
	cfg       config.Engine
	audit     audit.Logger
	logger    *slog.Logger
}

func NewAttendance(
	templates TemplateStore,
	verifier Verifier,
	assessor QualityAssessor,
	cfg config.Engine,
	auditLogger audit.Logger,
	logger *slog.Logger,
) *Attendance {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attendance{
		templates: templates,
		verifier:  verifier,
		quality:   assessor,
		cfg:       cfg,
		audit:     auditLogger,
		logger:    logger.With("component", "attendance"),
	}
}

// Enroll stores the descriptor of the single frontal face in img as the
// user's template, replacing any previous enrollment.
func (s *Attendance) Enroll(ctx context.Context, userID string, img imaging.Source) (*domain.FaceTemplate, error) {
	if userID == "" {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("user_id is required"))
	}
	if img == nil {
		return nil, domain.ErrInvalidImage
	}

	face, err := s.verifier.DetectFace(ctx, img, domain.DetectOptions{RequireFrontal: true})
	if err != nil {
		return nil, err
	}
	if len(face.Descriptor) == 0 {
		return nil, domain.ErrDescriptorUnavailable
	}

	q := s.quality.Assess(ctx, img).Overall()
	if q < s.cfg.MinQualityScore {
		return nil, domain.ErrLowQualityImage.WithError(
			fmt.Errorf("quality %.2f below %.2f", q, s.cfg.MinQualityScore))
	}

	tpl := &domain.FaceTemplate{
		UserID:       userID,
		Descriptor:   face.Descriptor,
		QualityScore: q,
	}
	if err := s.templates.Save(ctx, tpl); err != nil {
		return nil, fmt.Errorf("user %s: save template: %w", userID, err)
	}

	s.record(ctx, audit.Event{
		EventType: audit.EventTemplateEnrolled,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"quality": strconv.FormatFloat(q, 'f', 3, 64)},
	})
	return tpl, nil
}

// Verify runs liveness verification on img and matches the detected
// descriptor against the user's template. The mark is accepted only when
// the subject is live and the identity matches.
func (s *Attendance) Verify(ctx context.Context, userID string, img imaging.Source) (*domain.AttendanceResult, error) {
	tpl, err := s.templates.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision, err := s.verifier.VerifyLiveness(ctx, img)
	if err != nil {
		return nil, err
	}

	match, err := similarity.Match(s.cfg.Metric(), decision.Detection.Descriptor, tpl.Descriptor, similarity.Thresholds{
		MinSimilarity: s.cfg.ScoreThreshold,
		MaxDistance:   s.cfg.DistanceThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("user %s: match template: %w", userID, err)
	}
	match.UserID = userID

	result := &domain.AttendanceResult{
		Decision: decision,
		Match:    match,
		Accepted: decision.IsLive && match.Matched,
	}

	ev := audit.FromDecision(audit.EventAttendanceChecked, decision)
	ev.UserID = userID
	ev.Success = result.Accepted
	ev.Metadata = map[string]string{
		"is_live":    strconv.FormatBool(decision.IsLive),
		"matched":    strconv.FormatBool(match.Matched),
		"similarity": strconv.FormatFloat(match.Similarity, 'f', 4, 64),
	}
	s.record(ctx, ev)

	return result, nil
}

// Remove deletes the user's template.
func (s *Attendance) Remove(ctx context.Context, userID string) error {
	if err := s.templates.Delete(ctx, userID); err != nil {
		return err
	}

	s.record(ctx, audit.Event{
		EventType: audit.EventTemplateRemoved,
		UserID:    userID,
		Success:   true,
	})
	return nil
}

func (s *Attendance) record(ctx context.Context, ev audit.Event) {
	if err := s.audit.Log(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", "event_type", ev.EventType, "error", err)
	}
}
