package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type roomServiceMock struct {
	filter models.RoomFilter
}

func (m *roomServiceMock) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	m.filter = filter
	return []models.Room{{ID: "r1", Name: "Lab A"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *roomServiceMock) Get(ctx context.Context, id string) (*models.Room, error) {
	return &models.Room{ID: id, Name: "Lab A"}, nil
}

func (m *roomServiceMock) Create(ctx context.Context, req dto.CreateRoomRequest) (*models.Room, error) {
	if req.Name == "Lab A" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room name already exists")
	}
	return &models.Room{ID: "r2", Name: req.Name, Capacity: req.Capacity}, nil
}

type roomTimetableMock struct {
	hit bool
}

func (m roomTimetableMock) ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, bool, error) {
	return []models.ClassScheduleDetail{}, m.hit, nil
}

type exporterMock struct {
	format string
}

func (m *exporterMock) RoomTimetable(ctx context.Context, roomID, format string) (*service.ExportResult, error) {
	m.format = format
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportResult{Filename: "lab-a-timetable.csv", ContentType: "text/csv", Payload: []byte("day,start\n")}, nil
}

func TestRoomHandlerTimetableSetsCacheMeta(t *testing.T) {
	handler := NewRoomHandler(&roomServiceMock{}, roomTimetableMock{hit: true}, &exporterMock{})
	c, w := newJSONContext(http.MethodGet, "/rooms/r1/schedules", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}

	handler.Timetable(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, true, decodeEnvelope(t, w).Meta["cache_hit"])
}

func TestRoomHandlerCreateDuplicate(t *testing.T) {
	handler := NewRoomHandler(&roomServiceMock{}, roomTimetableMock{}, &exporterMock{})
	c, w := newJSONContext(http.MethodPost, "/rooms", dto.CreateRoomRequest{Name: "Lab A", Capacity: 20})

	handler.Create(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	c, w = newJSONContext(http.MethodPost, "/rooms", dto.CreateRoomRequest{Name: "Lab B", Capacity: 20})
	handler.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRoomHandlerListSearch(t *testing.T) {
	rooms := &roomServiceMock{}
	handler := NewRoomHandler(rooms, roomTimetableMock{}, &exporterMock{})
	c, w := newJSONContext(http.MethodGet, "/rooms?search=lab&limit=50", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lab", rooms.filter.Search)
	assert.Equal(t, 50, rooms.filter.PageSize)
	assert.Equal(t, 1, rooms.filter.Page)
}

func TestRoomHandlerExport(t *testing.T) {
	exporter := &exporterMock{}
	handler := NewRoomHandler(&roomServiceMock{}, roomTimetableMock{}, exporter)

	c, w := newJSONContext(http.MethodGet, "/rooms/r1/schedules/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", exporter.format)
	assert.Equal(t, `attachment; filename="lab-a-timetable.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "day,start\n", w.Body.String())

	c, w = newJSONContext(http.MethodGet, "/rooms/r1/schedules/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
