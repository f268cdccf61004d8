package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/scheduling"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type classScheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassScheduleDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
	ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassScheduleDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error)
	ListForDay(ctx context.Context, exec sqlx.ExtContext, day, roomID, teacherID, classID string) ([]models.ClassScheduleDetail, error)
	Lock(ctx context.Context, tx sqlx.ExtContext, timeout time.Duration, keys []string) error
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error
	Delete(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type timeSlotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

// ScheduleServiceConfig tunes booking transactions.
type ScheduleServiceConfig struct {
	LockTimeout time.Duration
	CacheTTL    time.Duration
}

// ScheduleService books classes into rooms so that no room, teacher or class
// is ever double-booked on the same weekday.
type ScheduleService struct {
	schedules classScheduleRepository
	classes   classReader
	rooms     roomReader
	timeSlots timeSlotReader
	tx        txProvider
	cache     *CacheService
	metrics   *MetricsService
	cfg       ScheduleServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(
	schedules classScheduleRepository,
	classes classReader,
	rooms roomReader,
	timeSlots timeSlotReader,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	cfg ScheduleServiceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		schedules: schedules,
		classes:   classes,
		rooms:     rooms,
		timeSlots: timeSlots,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// booking is a resolved and normalised schedule request.
type booking struct {
	schedule models.ClassSchedule
	class    *models.Class
	proposal scheduling.Proposal
	slot     scheduling.Slot
}

func (b *booking) teacherID() string {
	if b.class.TeacherID == nil {
		return ""
	}
	return *b.class.TeacherID
}

// lockKeys names every resource the booking occupies on its day.
func (b *booking) lockKeys() []string {
	day := b.slot.Day.String()
	keys := []string{
		"room:" + b.schedule.RoomID + ":" + day,
		"class:" + b.class.ID + ":" + day,
	}
	if teacher := b.teacherID(); teacher != "" {
		keys = append(keys, "teacher:"+teacher+":"+day)
	}
	return keys
}

func (b *booking) detail() models.ClassScheduleDetail {
	return models.ClassScheduleDetail{
		ClassSchedule: b.schedule,
		ClassName:     b.class.Name,
		TeacherID:     b.class.TeacherID,
	}
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassScheduleDetail, *models.Pagination, error) {
	if filter.DayOfWeek != "" {
		day, err := scheduling.NormalizeDay(filter.DayOfWeek)
		if err != nil {
			return nil, nil, mapSchedulingError(err, "")
		}
		filter.DayOfWeek = day.String()
	}
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return nonNilDetails(schedules), models.NewPagination(page, size, total), nil
}

// Get returns one schedule.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "schedule")
	}
	return schedule, nil
}

// ListByRoom returns the room's weekly timetable. The bool reports a cache hit.
func (s *ScheduleService) ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, bool, error) {
	var cached []models.ClassScheduleDetail
	if s.cache.Get(ctx, roomTimetableKey(roomID), &cached) {
		return nonNilDetails(cached), true, nil
	}
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		return nil, false, lookupError(err, "room")
	}

	start := time.Now()
	schedules, err := s.schedules.ListByRoom(ctx, roomID)
	s.metrics.ObserveDBQuery("schedules_by_room", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list room schedules")
	}
	schedules = nonNilDetails(schedules)
	s.cache.Set(ctx, roomTimetableKey(roomID), schedules, s.cfg.CacheTTL)
	return schedules, false, nil
}

// ListByTeacher returns the weekly timetable across every class of a teacher.
func (s *ScheduleService) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassScheduleDetail, error) {
	schedules, err := s.schedules.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher schedules")
	}
	return nonNilDetails(schedules), nil
}

// ListByClass returns the weekly timetable of a class.
func (s *ScheduleService) ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, lookupError(err, "class")
	}
	schedules, err := s.schedules.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class schedules")
	}
	return nonNilDetails(schedules), nil
}

// Check runs the booking decision without writing. Conflicts are reported in
// the result; malformed input is still an error.
func (s *ScheduleService) Check(ctx context.Context, req dto.ScheduleRequest) (*dto.ScheduleCheckResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	b, err := s.prepare(ctx, req, "")
	if err != nil {
		s.record(err)
		return nil, err
	}

	err = s.evaluate(ctx, nil, b, nil)
	s.record(err)
	result := &dto.ScheduleCheckResult{
		Available: err == nil,
		DayOfWeek: b.schedule.DayOfWeek,
		StartTime: b.schedule.StartTime,
		EndTime:   b.schedule.EndTime,
	}
	if err != nil {
		domainErr, ok := conflictDetails(err)
		if !ok {
			return nil, err
		}
		conflict := domainErr.Conflict
		result.Conflict = &conflict
	}
	return result, nil
}

// Create books a schedule after locking and re-checking every axis.
func (s *ScheduleService) Create(ctx context.Context, req dto.ScheduleRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	b, err := s.prepare(ctx, req, "")
	if err != nil {
		s.record(err)
		return nil, err
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.lock(ctx, tx, b.lockKeys()); err != nil {
			return err
		}
		if err := s.evaluate(ctx, tx, b, nil); err != nil {
			return err
		}
		if err := s.schedules.Create(ctx, tx, &b.schedule); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
		}
		return nil
	})
	s.record(err)
	if err != nil {
		return nil, err
	}

	s.invalidateRooms(ctx, b.schedule.RoomID)
	s.logger.Info("schedule created",
		zap.String("schedule_id", b.schedule.ID),
		zap.String("class_id", b.schedule.ClassID),
		zap.String("room_id", b.schedule.RoomID),
		zap.String("slot", b.schedule.DayOfWeek+" "+b.slot.Interval.String()),
	)
	return &b.schedule, nil
}

// Update moves a schedule. The schedule never conflicts with its own row.
func (s *ScheduleService) Update(ctx context.Context, id string, req dto.ScheduleRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	existing, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "schedule")
	}
	b, err := s.prepare(ctx, req, existing.ID)
	if err != nil {
		s.record(err)
		return nil, err
	}
	b.schedule.CreatedAt = existing.CreatedAt

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.lock(ctx, tx, b.lockKeys()); err != nil {
			return err
		}
		if err := s.evaluate(ctx, tx, b, nil); err != nil {
			return err
		}
		if err := s.schedules.Update(ctx, tx, &b.schedule); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
		}
		return nil
	})
	s.record(err)
	if err != nil {
		return nil, err
	}

	s.invalidateRooms(ctx, existing.RoomID, b.schedule.RoomID)
	return &b.schedule, nil
}

// Delete removes a schedule entry.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	existing, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "schedule")
	}
	if err := s.schedules.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	s.invalidateRooms(ctx, existing.RoomID)
	return nil
}

// BulkCreate books many schedules in one transaction. Items are checked
// against stored schedules and against earlier items of the same batch. With
// PartialOnError rejected items are reported and the rest are kept; otherwise
// the first rejection aborts the whole batch.
func (s *ScheduleService) BulkCreate(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BulkScheduleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk schedule payload")
	}

	var failures []dto.BulkScheduleFailure
	bookings := make([]*booking, 0, len(req.Items))
	indexes := make([]int, 0, len(req.Items))
	for i, item := range req.Items {
		b, err := s.prepare(ctx, item, "")
		if err != nil {
			s.record(err)
			if !req.PartialOnError {
				return nil, err
			}
			failures = append(failures, bulkFailure(i, err))
			continue
		}
		bookings = append(bookings, b)
		indexes = append(indexes, i)
	}

	result := &dto.BulkScheduleResult{Created: []models.ClassSchedule{}}
	if len(bookings) > 0 {
		var keys []string
		for _, b := range bookings {
			keys = append(keys, b.lockKeys()...)
		}

		var created []models.ClassSchedule
		var rejected []dto.BulkScheduleFailure
		err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			if err := s.lock(ctx, tx, keys); err != nil {
				return err
			}
			var pending []models.ClassScheduleDetail
			for n, b := range bookings {
				err := s.evaluate(ctx, tx, b, pending)
				s.record(err)
				if err != nil {
					if _, ok := conflictDetails(err); ok && req.PartialOnError {
						rejected = append(rejected, bulkFailure(indexes[n], err))
						continue
					}
					return err
				}
				if err := s.schedules.Create(ctx, tx, &b.schedule); err != nil {
					return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
				}
				pending = append(pending, b.detail())
				created = append(created, b.schedule)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		rooms := make([]string, 0, len(created))
		for _, schedule := range created {
			rooms = append(rooms, schedule.RoomID)
		}
		s.invalidateRooms(ctx, rooms...)
		if created != nil {
			result.Created = created
		}
		failures = append(failures, rejected...)
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	result.Failures = failures
	s.logger.Info("bulk schedules processed", zap.Int("created", len(result.Created)), zap.Int("failed", len(failures)))
	return result, nil
}

// prepare resolves the referenced class, room and time slot and normalises the
// day and clock range. ignoreID is the schedule being moved, if any.
func (s *ScheduleService) prepare(ctx context.Context, req dto.ScheduleRequest, ignoreID string) (*booking, error) {
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	room, err := s.rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		return nil, lookupError(err, "room")
	}

	start, end := req.StartTime, req.EndTime
	var timeSlotID *string
	if req.TimeSlotID != "" {
		slot, err := s.timeSlots.FindByID(ctx, req.TimeSlotID)
		if err != nil {
			return nil, lookupError(err, "time slot")
		}
		start, end = slot.StartTime, slot.EndTime
		id := slot.ID
		timeSlotID = &id
	}

	normalized, err := scheduling.NormalizeSlot(req.DayOfWeek, start, end)
	if err != nil {
		return nil, mapSchedulingError(err, "")
	}

	return &booking{
		schedule: models.ClassSchedule{
			ID:         ignoreID,
			ClassID:    class.ID,
			RoomID:     room.ID,
			TimeSlotID: timeSlotID,
			DayOfWeek:  normalized.Day.String(),
			StartTime:  normalized.Interval.StartClock(),
			EndTime:    normalized.Interval.EndClock(),
		},
		class: class,
		proposal: scheduling.Proposal{
			ID:        ignoreID,
			OwnerID:   class.ID,
			OwnerName: class.Name,
			Day:       req.DayOfWeek,
			Start:     start,
			End:       end,
		},
		slot: normalized,
	}, nil
}

// evaluate runs the conflict check for b against the stored schedules of its
// day plus pending, reading through exec (the locking transaction, or the pool
// when nil).
func (s *ScheduleService) evaluate(ctx context.Context, exec sqlx.ExtContext, b *booking, pending []models.ClassScheduleDetail) error {
	_, err := scheduling.Evaluate(b.proposal, func(slot scheduling.Slot) ([]scheduling.AxisSnapshot, error) {
		start := time.Now()
		rows, err := s.schedules.ListForDay(ctx, exec, slot.Day.String(), b.schedule.RoomID, b.teacherID(), b.class.ID)
		s.metrics.ObserveDBQuery("schedules_for_day", time.Since(start))
		if err != nil {
			return nil, err
		}
		return snapshotAxes(b, append(rows, pending...))
	})
	return mapSchedulingError(err, "failed to check schedule conflicts")
}

func (s *ScheduleService) lock(ctx context.Context, tx *sqlx.Tx, keys []string) error {
	start := time.Now()
	err := s.schedules.Lock(ctx, tx, s.cfg.LockTimeout, keys)
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return mapSchedulingError(err, "failed to acquire schedule locks")
	}
	return nil
}

func (s *ScheduleService) record(err error) {
	outcome := scheduleOutcome(err)
	if outcome == "" {
		return
	}
	axis := ""
	if domainErr, ok := conflictDetails(err); ok {
		axis = domainErr.Type
	}
	s.metrics.RecordScheduleCheck(outcome, axis)
}

// maxTargetedInvalidations bounds per-key deletes; larger batches drop every
// room timetable with one pattern scan.
const maxTargetedInvalidations = 16

func (s *ScheduleService) invalidateRooms(ctx context.Context, roomIDs ...string) {
	seen := make(map[string]struct{}, len(roomIDs))
	keys := make([]string, 0, len(roomIDs))
	for _, id := range roomIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, roomTimetableKey(id))
	}
	switch {
	case len(keys) > maxTargetedInvalidations:
		s.cache.Invalidate(ctx, cachePatternTimetables)
	case len(keys) > 0:
		s.cache.Delete(ctx, keys...)
	}
}

// snapshotAxes projects the day's schedules onto the room, teacher and class
// axes of b.
func snapshotAxes(b *booking, rows []models.ClassScheduleDetail) ([]scheduling.AxisSnapshot, error) {
	room := scheduling.AxisSnapshot{Axis: scheduling.AxisRoom, ResourceID: b.schedule.RoomID}
	teacher := scheduling.AxisSnapshot{Axis: scheduling.AxisTeacher, ResourceID: b.teacherID()}
	class := scheduling.AxisSnapshot{Axis: scheduling.AxisClass, ResourceID: b.class.ID}

	for _, row := range rows {
		reservation, err := reservationFromRow(row)
		if err != nil {
			return nil, err
		}
		reservation.ResourceID = row.RoomID
		room.Existing = append(room.Existing, reservation)
		if row.TeacherID != nil && *row.TeacherID != "" {
			reservation.ResourceID = *row.TeacherID
			teacher.Existing = append(teacher.Existing, reservation)
		}
		reservation.ResourceID = row.ClassID
		class.Existing = append(class.Existing, reservation)
	}
	return []scheduling.AxisSnapshot{room, teacher, class}, nil
}

// reservationFromRow normalises a stored schedule. Stored rows that no longer
// parse are reported as internal errors, not as bad client input.
func reservationFromRow(row models.ClassScheduleDetail) (scheduling.Reservation, error) {
	day, err := scheduling.NormalizeDay(row.DayOfWeek)
	if err != nil {
		return scheduling.Reservation{}, fmt.Errorf("stored schedule %s: %v", row.ID, err)
	}
	interval, err := scheduling.ParseInterval(row.StartTime, row.EndTime)
	if err != nil {
		return scheduling.Reservation{}, fmt.Errorf("stored schedule %s: %v", row.ID, err)
	}
	return scheduling.Reservation{
		ID:        row.ID,
		Day:       day,
		Interval:  interval,
		OwnerID:   row.ClassID,
		OwnerName: row.ClassName,
	}, nil
}

func bulkFailure(index int, err error) dto.BulkScheduleFailure {
	appErr := appErrors.FromError(err)
	failure := dto.BulkScheduleFailure{Index: index, Code: appErr.Code, Message: appErr.Message}
	if domainErr, ok := conflictDetails(err); ok {
		conflict := domainErr.Conflict
		failure.Conflict = &conflict
	}
	return failure
}

func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}

func nonNilDetails(items []models.ClassScheduleDetail) []models.ClassScheduleDetail {
	if items == nil {
		return []models.ClassScheduleDetail{}
	}
	return items
}
