package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

// ClassRepository reads classes; class CRUD lives outside this service.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, subject, teacher_id, legacy_schedule, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListWithLegacySchedule returns classes still carrying a free-form schedule string.
func (r *ClassRepository) ListWithLegacySchedule(ctx context.Context) ([]models.Class, error) {
	const query = `SELECT id, name, subject, teacher_id, legacy_schedule, created_at, updated_at FROM classes WHERE legacy_schedule IS NOT NULL AND TRIM(legacy_schedule) <> '' ORDER BY created_at ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list legacy class schedules: %w", err)
	}
	return classes, nil
}

// ClearLegacySchedule drops the free-form schedule once it has been migrated.
func (r *ClassRepository) ClearLegacySchedule(ctx context.Context, id string) error {
	const query = `UPDATE classes SET legacy_schedule = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear legacy schedule: %w", err)
	}
	return nil
}
