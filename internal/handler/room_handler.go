package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type roomService interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, req dto.CreateRoomRequest) (*models.Room, error)
}

type roomTimetableService interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, bool, error)
}

type timetableExporter interface {
	RoomTimetable(ctx context.Context, roomID, format string) (*service.ExportResult, error)
}

// RoomHandler serves rooms and their timetables.
type RoomHandler struct {
	rooms      roomService
	timetables roomTimetableService
	exporter   timetableExporter
}

// NewRoomHandler constructs handler.
func NewRoomHandler(rooms roomService, timetables roomTimetableService, exporter timetableExporter) *RoomHandler {
	return &RoomHandler{rooms: rooms, timetables: timetables, exporter: exporter}
}

// List godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Param search query string false "Name search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	filter := models.RoomFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	rooms, pagination, err := h.rooms.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, pagination)
}

// Get godoc
// @Summary Get room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Create godoc
// @Summary Create room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req dto.CreateRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.rooms.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Timetable godoc
// @Summary Room timetable
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id}/schedules [get]
func (h *RoomHandler) Timetable(c *gin.Context) {
	schedules, hit, err := h.timetables.ListByRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, schedules, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export room timetable
// @Tags Rooms
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Room ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /rooms/{id}/schedules/export [get]
func (h *RoomHandler) Export(c *gin.Context) {
	result, err := h.exporter.RoomTimetable(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}
