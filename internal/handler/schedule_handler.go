package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type scheduleService interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassScheduleDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassScheduleDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error)
	Check(ctx context.Context, req dto.ScheduleRequest) (*dto.ScheduleCheckResult, error)
	Create(ctx context.Context, req dto.ScheduleRequest) (*models.ClassSchedule, error)
	Update(ctx context.Context, id string, req dto.ScheduleRequest) (*models.ClassSchedule, error)
	Delete(ctx context.Context, id string) error
	BulkCreate(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BulkScheduleResult, error)
}

// ScheduleHandler manages schedule endpoints.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param classId query string false "Filter by class"
// @Param roomId query string false "Filter by room"
// @Param teacherId query string false "Filter by teacher"
// @Param dayOfWeek query string false "Filter by day"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "day_of_week, start_time or created_at"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ScheduleFilter{
		ClassID:   c.Query("classId"),
		RoomID:    c.Query("roomId"),
		TeacherID: c.Query("teacherId"),
		DayOfWeek: c.Query("dayOfWeek"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	schedules, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// ListByClass godoc
// @Summary Class timetable
// @Tags Schedules
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/schedules [get]
func (h *ScheduleHandler) ListByClass(c *gin.Context) {
	schedules, err := h.service.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// ListByTeacher godoc
// @Summary Teacher timetable
// @Tags Schedules
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/{id}/schedules [get]
func (h *ScheduleHandler) ListByTeacher(c *gin.Context) {
	schedules, err := h.service.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Check godoc
// @Summary Check a booking without saving it
// @Description Returns available=false together with the first clash when the slot is taken.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleRequest true "Proposed booking"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/check [post]
func (h *ScheduleHandler) Check(c *gin.Context) {
	var req dto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Create schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req dto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// BulkCreate godoc
// @Summary Create schedules in bulk
// @Description All items are booked in one transaction. With partial_on_error rejected items are reported instead of aborting the batch.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.BulkScheduleRequest true "Bulk payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/bulk [post]
func (h *ScheduleHandler) BulkCreate(c *gin.Context) {
	var req dto.BulkScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkCreate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.ScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req dto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Delete godoc
// @Summary Delete schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return false
	}
	return true
}
