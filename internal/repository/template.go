package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// TemplateRepository persists one enrolled face template per user in
// the face_templates table.
type TemplateRepository struct {
	pool PgxPool
}

func NewTemplateRepository(pool PgxPool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Save inserts the template or replaces the descriptor of an existing
// enrollment for the same user.
func (r *TemplateRepository) Save(ctx context.Context, tpl *domain.FaceTemplate) error {
	query := `
		INSERT INTO face_templates (id, user_id, descriptor, quality_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET descriptor = EXCLUDED.descriptor, quality_score = EXCLUDED.quality_score, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	if len(tpl.Descriptor) == 0 {
		return domain.ErrDescriptorUnavailable
	}
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		tpl.ID,
		tpl.UserID,
		toVector(tpl.Descriptor),
		tpl.QualityScore,
	).Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) GetByUserID(ctx context.Context, userID string) (*domain.FaceTemplate, error) {
	query := `
		SELECT id, user_id, descriptor, quality_score, created_at, updated_at
		FROM face_templates
		WHERE user_id = $1
	`

	var tpl domain.FaceTemplate
	var descriptor *pgvector.Vector

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&tpl.ID,
		&tpl.UserID,
		&descriptor,
		&tpl.QualityScore,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template by user_id: %w", err)
	}

	tpl.Descriptor = fromVector(descriptor)
	return &tpl, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM face_templates WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}

	return nil
}
