package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type sqlTxProvider struct {
	db *sqlx.DB
}

func (p *sqlTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newSQLTxProvider(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlTxProvider{db: sqlx.NewDb(db, "sqlmock")}, mock
}

type mockClassScheduleRepo struct {
	rows       []models.ClassScheduleDetail
	classes    map[string]*models.Class
	lockedKeys [][]string
	lockErr    error
	dayQueries int
	seq        int
}

func (m *mockClassScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassScheduleDetail, int, error) {
	var out []models.ClassScheduleDetail
	for _, row := range m.rows {
		if filter.DayOfWeek != "" && row.DayOfWeek != filter.DayOfWeek {
			continue
		}
		out = append(out, row)
	}
	return out, len(out), nil
}

func (m *mockClassScheduleRepo) FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	for _, row := range m.rows {
		if row.ID == id {
			cp := row
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassScheduleRepo) ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, error) {
	var out []models.ClassScheduleDetail
	for _, row := range m.rows {
		if row.RoomID == roomID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockClassScheduleRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassScheduleDetail, error) {
	var out []models.ClassScheduleDetail
	for _, row := range m.rows {
		if row.TeacherID != nil && *row.TeacherID == teacherID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockClassScheduleRepo) ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error) {
	var out []models.ClassScheduleDetail
	for _, row := range m.rows {
		if row.ClassID == classID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockClassScheduleRepo) ListForDay(ctx context.Context, exec sqlx.ExtContext, day, roomID, teacherID, classID string) ([]models.ClassScheduleDetail, error) {
	m.dayQueries++
	var out []models.ClassScheduleDetail
	for _, row := range m.rows {
		if row.DayOfWeek != day {
			continue
		}
		sameTeacher := row.TeacherID != nil && *row.TeacherID == teacherID
		if row.RoomID == roomID || sameTeacher || row.ClassID == classID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockClassScheduleRepo) Lock(ctx context.Context, tx sqlx.ExtContext, timeout time.Duration, keys []string) error {
	m.lockedKeys = append(m.lockedKeys, keys)
	return m.lockErr
}

func (m *mockClassScheduleRepo) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error {
	m.seq++
	schedule.ID = fmt.Sprintf("new-%d", m.seq)
	m.rows = append(m.rows, m.detail(*schedule))
	return nil
}

func (m *mockClassScheduleRepo) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.ClassSchedule) error {
	for i, row := range m.rows {
		if row.ID == schedule.ID {
			m.rows[i] = m.detail(*schedule)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockClassScheduleRepo) Delete(ctx context.Context, id string) error {
	for i, row := range m.rows {
		if row.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockClassScheduleRepo) detail(schedule models.ClassSchedule) models.ClassScheduleDetail {
	detail := models.ClassScheduleDetail{ClassSchedule: schedule}
	if class, ok := m.classes[schedule.ClassID]; ok {
		detail.ClassName = class.Name
		detail.TeacherID = class.TeacherID
	}
	return detail
}

type mockClassRepo struct {
	items map[string]*models.Class
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := m.items[id]; ok {
		cp := *class
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockRoomRepo struct {
	items map[string]*models.Room
}

func (m *mockRoomRepo) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	var out []models.Room
	for _, room := range m.items {
		out = append(out, *room)
	}
	return out, len(out), nil
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := m.items[id]; ok {
		cp := *room
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for id, room := range m.items {
		if room.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if m.items == nil {
		m.items = make(map[string]*models.Room)
	}
	room.ID = "room-generated"
	cp := *room
	m.items[room.ID] = &cp
	return nil
}

type mockTimeSlotReader struct {
	items map[string]*models.TimeSlot
}

func (m *mockTimeSlotReader) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	if slot, ok := m.items[id]; ok {
		cp := *slot
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func strPtr(v string) *string {
	return &v
}

type scheduleFixture struct {
	svc     *ScheduleService
	repo    *mockClassScheduleRepo
	mock    sqlmock.Sqlmock
	metrics *MetricsService
}

// newScheduleFixture seeds Algebra I (teacher t1) in room r1 on Monday 09:00-10:30.
func newScheduleFixture(t *testing.T) scheduleFixture {
	classes := map[string]*models.Class{
		"c1": {ID: "c1", Name: "Algebra I", TeacherID: strPtr("t1")},
		"c2": {ID: "c2", Name: "Physics", TeacherID: strPtr("t2")},
		"c3": {ID: "c3", Name: "Chemistry", TeacherID: strPtr("t1")},
		"c4": {ID: "c4", Name: "Study Hall"},
	}
	repo := &mockClassScheduleRepo{classes: classes}
	repo.rows = []models.ClassScheduleDetail{repo.detail(models.ClassSchedule{
		ID: "s1", ClassID: "c1", RoomID: "r1", DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30",
	})}
	rooms := &mockRoomRepo{items: map[string]*models.Room{
		"r1": {ID: "r1", Name: "Room 101"},
		"r2": {ID: "r2", Name: "Room 102"},
	}}
	slots := &mockTimeSlotReader{items: map[string]*models.TimeSlot{
		"p2": {ID: "p2", Label: "Period 2", StartTime: "10:00", EndTime: "11:00"},
		"p3": {ID: "p3", Label: "Period 3", StartTime: "10:30", EndTime: "12:00"},
	}}
	tx, mock := newSQLTxProvider(t)
	metrics := NewMetricsService()
	svc := NewScheduleService(repo, &mockClassRepo{items: classes}, rooms, slots, tx, nil, metrics,
		ScheduleServiceConfig{LockTimeout: time.Second}, nil, zap.NewNop())
	return scheduleFixture{svc: svc, repo: repo, mock: mock, metrics: metrics}
}

func requireAppError(t *testing.T, err error, code string, status int) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.Status)
	return appErr
}

func TestScheduleServiceCreateFreeSlot(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	created, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "mon", StartTime: "11:00", EndTime: "12:30 PM",
	})
	require.NoError(t, err)
	assert.Equal(t, "Monday", created.DayOfWeek)
	assert.Equal(t, "11:00", created.StartTime)
	assert.Equal(t, "12:30", created.EndTime)
	require.Len(t, f.repo.lockedKeys, 1)
	assert.ElementsMatch(t, []string{"room:r1:Monday", "class:c2:Monday", "teacher:t2:Monday"}, f.repo.lockedKeys[0])
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, uint64(1), f.metrics.Snapshot().ScheduleChecks[ScheduleOutcomeAccepted])
}

func TestScheduleServiceCreateRoomConflict(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday", StartTime: "10:00", EndTime: "11:00",
	})
	appErr := requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
	assert.Contains(t, appErr.Message, "Algebra I")

	domainErr, ok := appErr.Details.(*models.ScheduleConflictError)
	require.True(t, ok)
	assert.Equal(t, "ROOM", domainErr.Type)
	assert.Equal(t, "s1", domainErr.Conflict.ScheduleID)
	assert.Equal(t, "c1", domainErr.Conflict.ClassID)
	assert.Equal(t, "r1", domainErr.Conflict.RoomID)
	assert.Len(t, f.repo.rows, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, uint64(1), f.metrics.Snapshot().ScheduleChecks[ScheduleOutcomeConflict])
}

func TestScheduleServiceCreateTeacherConflictInOtherRoom(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c3", RoomID: "r2", DayOfWeek: "Monday", StartTime: "10:00", EndTime: "11:00",
	})
	appErr := requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
	domainErr, ok := appErr.Details.(*models.ScheduleConflictError)
	require.True(t, ok)
	assert.Equal(t, "TEACHER", domainErr.Type)
	assert.Equal(t, "t1", domainErr.Conflict.TeacherID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceCreateWithoutTeacherSkipsTeacherAxis(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c4", RoomID: "r2", DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"room:r2:Monday", "class:c4:Monday"}, f.repo.lockedKeys[0])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceBackToBackIsAllowed(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	created, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday", TimeSlotID: "p3",
	})
	require.NoError(t, err)
	require.NotNil(t, created.TimeSlotID)
	assert.Equal(t, "p3", *created.TimeSlotID)
	assert.Equal(t, "10:30", created.StartTime)
	assert.Equal(t, "12:00", created.EndTime)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceTimeSlotOverlapConflicts(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday", TimeSlotID: "p2",
	})
	requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceInvalidRangeNeverSearches(t *testing.T) {
	f := newScheduleFixture(t)

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday", StartTime: "10:00", EndTime: "09:00",
	})
	requireAppError(t, err, appErrors.ErrInvalidRange.Code, http.StatusBadRequest)
	assert.Zero(t, f.repo.dayQueries)
	assert.Empty(t, f.repo.lockedKeys)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, uint64(1), f.metrics.Snapshot().ScheduleChecks[ScheduleOutcomeInvalid])
}

func TestScheduleServiceInvalidDayNamesField(t *testing.T) {
	f := newScheduleFixture(t)

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Funday", StartTime: "10:00", EndTime: "11:00",
	})
	appErr := requireAppError(t, err, appErrors.ErrInvalidFormat.Code, http.StatusBadRequest)
	assert.Equal(t, map[string]string{"field": "day_of_week"}, appErr.Details)

	_, err = f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday", StartTime: "25:00", EndTime: "26:00",
	})
	appErr = requireAppError(t, err, appErrors.ErrInvalidFormat.Code, http.StatusBadRequest)
	assert.Equal(t, map[string]string{"field": "start_time"}, appErr.Details)
	assert.Zero(t, f.repo.dayQueries)
}

func TestScheduleServiceValidationAndMissingReferences(t *testing.T) {
	f := newScheduleFixture(t)

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{ClassID: "c2", RoomID: "r1", DayOfWeek: "Monday"})
	requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)

	_, err = f.svc.Create(context.Background(), dto.ScheduleRequest{ClassID: "missing", RoomID: "r1", DayOfWeek: "Monday", StartTime: "10:00", EndTime: "11:00"})
	appErr := requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
	assert.Equal(t, "class not found", appErr.Message)

	_, err = f.svc.Create(context.Background(), dto.ScheduleRequest{ClassID: "c2", RoomID: "r9", DayOfWeek: "Monday", StartTime: "10:00", EndTime: "11:00"})
	appErr = requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
	assert.Equal(t, "room not found", appErr.Message)
}

func TestScheduleServiceLockTimeoutIsConflict(t *testing.T) {
	f := newScheduleFixture(t)
	f.repo.lockErr = fmt.Errorf("acquire lock: %w", &pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r2", DayOfWeek: "Friday", StartTime: "10:00", EndTime: "11:00",
	})
	appErr := requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
	assert.Contains(t, appErr.Message, "retry")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceUpdateIgnoresOwnRow(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.Update(context.Background(), "s1", dto.ScheduleRequest{
		ClassID: "c1", RoomID: "r1", DayOfWeek: "Monday", StartTime: "09:30", EndTime: "11:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", updated.ID)
	assert.Equal(t, "09:30", f.repo.rows[0].StartTime)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceUpdateMissing(t *testing.T) {
	f := newScheduleFixture(t)
	_, err := f.svc.Update(context.Background(), "nope", dto.ScheduleRequest{
		ClassID: "c1", RoomID: "r1", DayOfWeek: "Monday", StartTime: "09:30", EndTime: "11:00",
	})
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func TestScheduleServiceCheckReportsConflictWithoutWriting(t *testing.T) {
	f := newScheduleFixture(t)

	result, err := f.svc.Check(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "1", StartTime: "9:45 AM", EndTime: "10:15 AM",
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "Monday", result.DayOfWeek)
	assert.Equal(t, "09:45", result.StartTime)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, "Algebra I", result.Conflict.ClassName)

	result, err = f.svc.Check(context.Background(), dto.ScheduleRequest{
		ClassID: "c2", RoomID: "r1", DayOfWeek: "Tuesday", StartTime: "09:00", EndTime: "10:30",
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Nil(t, result.Conflict)
	assert.Len(t, f.repo.rows, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceBulkCreatePartial(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.BulkCreate(context.Background(), dto.BulkScheduleRequest{
		PartialOnError: true,
		Items: []dto.ScheduleRequest{
			{ClassID: "c2", RoomID: "r2", DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "10:00"},
			{ClassID: "c4", RoomID: "r2", DayOfWeek: "Wednesday", StartTime: "09:30", EndTime: "10:30"},
			{ClassID: "c2", RoomID: "r1", DayOfWeek: "Blursday", StartTime: "09:00", EndTime: "10:00"},
			{ClassID: "c4", RoomID: "r2", DayOfWeek: "Wednesday", StartTime: "10:00", EndTime: "11:00"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "09:00", result.Created[0].StartTime)
	assert.Equal(t, "10:00", result.Created[1].StartTime)

	require.Len(t, result.Failures, 2)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, appErrors.ErrConflict.Code, result.Failures[0].Code)
	require.NotNil(t, result.Failures[0].Conflict)
	assert.Equal(t, "Physics", result.Failures[0].Conflict.ClassName)
	assert.Equal(t, 2, result.Failures[1].Index)
	assert.Equal(t, appErrors.ErrInvalidFormat.Code, result.Failures[1].Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceBulkCreateAllOrNothing(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.BulkCreate(context.Background(), dto.BulkScheduleRequest{
		Items: []dto.ScheduleRequest{
			{ClassID: "c2", RoomID: "r2", DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "10:00"},
			{ClassID: "c4", RoomID: "r2", DayOfWeek: "Wednesday", StartTime: "09:30", EndTime: "10:30"},
		},
	})
	requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
	require.Len(t, f.repo.lockedKeys, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleServiceTimetables(t *testing.T) {
	f := newScheduleFixture(t)

	rooms, hit, err := f.svc.ListByRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, rooms, 1)

	_, _, err = f.svc.ListByRoom(context.Background(), "r9")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)

	teacher, err := f.svc.ListByTeacher(context.Background(), "t2")
	require.NoError(t, err)
	assert.NotNil(t, teacher)
	assert.Empty(t, teacher)

	classes, err := f.svc.ListByClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, classes, 1)

	_, _, err = f.svc.List(context.Background(), models.ScheduleFilter{DayOfWeek: "someday"})
	requireAppError(t, err, appErrors.ErrInvalidFormat.Code, http.StatusBadRequest)

	list, pagination, err := f.svc.List(context.Background(), models.ScheduleFilter{DayOfWeek: "MON"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestScheduleServiceDelete(t *testing.T) {
	f := newScheduleFixture(t)
	require.NoError(t, f.svc.Delete(context.Background(), "s1"))
	assert.Empty(t, f.repo.rows)

	err := f.svc.Delete(context.Background(), "s1")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}
