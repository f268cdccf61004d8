package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const (
	scheduleDetailSelect = `SELECT s.id, s.class_id, s.room_id, s.time_slot_id, s.day_of_week, s.start_time, s.end_time, s.created_at, s.updated_at, c.name AS class_name, c.teacher_id, r.name AS room_name`
	scheduleDetailFrom   = `FROM class_schedules s JOIN classes c ON c.id = s.class_id JOIN rooms r ON r.id = s.room_id`
	scheduleDayOrder     = `array_position(ARRAY['Monday','Tuesday','Wednesday','Thursday','Friday','Saturday','Sunday']::text[], s.day_of_week)`
	scheduleTimetable    = ` ORDER BY ` + scheduleDayOrder + ` ASC, s.start_time ASC, s.end_time ASC`
)

// ClassScheduleRepository provides persistence for weekly class schedules.
type ClassScheduleRepository struct {
	db *sqlx.DB
}

// NewClassScheduleRepository creates a new schedule repository.
func NewClassScheduleRepository(db *sqlx.DB) *ClassScheduleRepository {
	return &ClassScheduleRepository{db: db}
}

func (r *ClassScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns schedules with optional filtering and pagination.
func (r *ClassScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassScheduleDetail, int, error) {
	base := scheduleDetailFrom + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("s.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.DayOfWeek != "" {
		conditions = append(conditions, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"day_of_week": scheduleDayOrder,
		"start_time":  "s.start_time",
		"created_at":  "s.created_at",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = scheduleDayOrder
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s %s ORDER BY %s %s, s.start_time ASC LIMIT %d OFFSET %d", scheduleDetailSelect, base, sortBy, order, size, offset)
	var schedules []models.ClassScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// FindByID loads a schedule with its class and room.
func (r *ClassScheduleRepository) FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	query := scheduleDetailSelect + " " + scheduleDetailFrom + " WHERE s.id = $1"
	var sched models.ClassScheduleDetail
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListByRoom returns a room's weekly timetable.
func (r *ClassScheduleRepository) ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, error) {
	return r.listTimetable(ctx, "s.room_id", roomID)
}

// ListByTeacher returns the weekly timetable of every class a teacher runs.
func (r *ClassScheduleRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassScheduleDetail, error) {
	return r.listTimetable(ctx, "c.teacher_id", teacherID)
}

// ListByClass returns a class's weekly timetable.
func (r *ClassScheduleRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error) {
	return r.listTimetable(ctx, "s.class_id", classID)
}

func (r *ClassScheduleRepository) listTimetable(ctx context.Context, column, value string) ([]models.ClassScheduleDetail, error) {
	query := fmt.Sprintf("%s %s WHERE %s = $1%s", scheduleDetailSelect, scheduleDetailFrom, column, scheduleTimetable)
	var schedules []models.ClassScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, value); err != nil {
		return nil, fmt.Errorf("list timetable by %s: %w", column, err)
	}
	return schedules, nil
}

// ListForDay returns every schedule on day that shares the room, the teacher
// or the class with a proposed booking.
func (r *ClassScheduleRepository) ListForDay(ctx context.Context, exec sqlx.ExtContext, day, roomID, teacherID, classID string) ([]models.ClassScheduleDetail, error) {
	query := scheduleDetailSelect + " " + scheduleDetailFrom +
		" WHERE s.day_of_week = $1 AND (s.room_id = $2 OR c.teacher_id = $3 OR s.class_id = $4)" + scheduleTimetable
	var schedules []models.ClassScheduleDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &schedules, query, day, roomID, teacherID, classID); err != nil {
		return nil, fmt.Errorf("list schedules for day: %w", err)
	}
	return schedules, nil
}

// Lock takes the booking locks for keys for the lifetime of tx.
func (r *ClassScheduleRepository) Lock(ctx context.Context, tx sqlx.ExtContext, timeout time.Duration, keys []string) error {
	return acquireAdvisoryLocks(ctx, tx, timeout, keys)
}

// Create stores a new schedule record.
func (r *ClassScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `INSERT INTO class_schedules (id, class_id, room_id, time_slot_id, day_of_week, start_time, end_time, created_at, updated_at) VALUES (:id, :class_id, :room_id, :time_slot_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update modifies a schedule record.
func (r *ClassScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_schedules SET class_id = :class_id, room_id = :room_id, time_slot_id = :time_slot_id, day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a schedule by id.
func (r *ClassScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM class_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
