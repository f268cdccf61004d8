package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type timeSlotService interface {
	List(ctx context.Context) ([]models.TimeSlot, bool, error)
	Get(ctx context.Context, id string) (*models.TimeSlot, error)
	Create(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	Update(ctx context.Context, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	Delete(ctx context.Context, id string) error
}

// TimeSlotHandler manages the named periods of the teaching day.
type TimeSlotHandler struct {
	service timeSlotService
}

// NewTimeSlotHandler constructs handler.
func NewTimeSlotHandler(svc timeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{service: svc}
}

// List godoc
// @Summary List time slots
// @Tags TimeSlots
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-slots [get]
func (h *TimeSlotHandler) List(c *gin.Context) {
	slots, hit, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, slots, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get time slot
// @Tags TimeSlots
// @Produce json
// @Param id path string true "Time slot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /time-slots/{id} [get]
func (h *TimeSlotHandler) Get(c *gin.Context) {
	slot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create time slot
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-slots [post]
func (h *TimeSlotHandler) Create(c *gin.Context) {
	var req dto.TimeSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Update time slot
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-slots/{id} [put]
func (h *TimeSlotHandler) Update(c *gin.Context) {
	var req dto.TimeSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete time slot
// @Tags TimeSlots
// @Param id path string true "Time slot ID"
// @Success 204
// @Router /time-slots/{id} [delete]
func (h *TimeSlotHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
