package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const timeSlotColumns = `id, label, start_time, end_time, created_at, updated_at`

// timeSlotLockKey serialises every time-slot write: slots are a single global
// axis, so overlap checks must see all other writers.
const timeSlotLockKey = "time_slots"

// TimeSlotRepository persists the teaching-day periods.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every time slot ordered by start time.
func (r *TimeSlotRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots ORDER BY start_time ASC, end_time ASC`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindByID loads a time slot by id.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Lock serialises time-slot writers for the lifetime of tx.
func (r *TimeSlotRepository) Lock(ctx context.Context, tx sqlx.ExtContext, timeout time.Duration) error {
	return acquireAdvisoryLocks(ctx, tx, timeout, []string{timeSlotLockKey})
}

// Create inserts a time slot.
func (r *TimeSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `INSERT INTO time_slots (id, label, start_time, end_time, created_at, updated_at) VALUES (:id, :label, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// Update rewrites label and range of a time slot.
func (r *TimeSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_slots SET label = :label, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a time slot. Schedules keep their copied start/end times.
func (r *TimeSlotRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("time slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
