package dto

import "github.com/noah-isme/tuition-api/internal/models"

// ScheduleRequest books a class into a room on a weekday. Either TimeSlotID or
// StartTime/EndTime must be set; a time slot wins when both are present.
type ScheduleRequest struct {
	ClassID    string `json:"class_id" validate:"required"`
	RoomID     string `json:"room_id" validate:"required"`
	DayOfWeek  string `json:"day_of_week" validate:"required"`
	TimeSlotID string `json:"time_slot_id"`
	StartTime  string `json:"start_time" validate:"required_without=TimeSlotID"`
	EndTime    string `json:"end_time" validate:"required_without=TimeSlotID"`
}

// BulkScheduleRequest creates many schedules in one transaction.
type BulkScheduleRequest struct {
	Items          []ScheduleRequest `json:"items" validate:"required,min=1,max=200,dive"`
	PartialOnError bool              `json:"partial_on_error"`
}

// BulkScheduleFailure reports why one bulk item was skipped.
type BulkScheduleFailure struct {
	Index    int                      `json:"index"`
	Code     string                   `json:"code"`
	Message  string                   `json:"message"`
	Conflict *models.ScheduleConflict `json:"conflict,omitempty"`
}

// BulkScheduleResult summarises a bulk create.
type BulkScheduleResult struct {
	Created  []models.ClassSchedule `json:"created"`
	Failures []BulkScheduleFailure  `json:"failures,omitempty"`
}

// ScheduleCheckResult is the outcome of a dry-run booking.
type ScheduleCheckResult struct {
	Available bool                     `json:"available"`
	DayOfWeek string                   `json:"day_of_week"`
	StartTime string                   `json:"start_time"`
	EndTime   string                   `json:"end_time"`
	Conflict  *models.ScheduleConflict `json:"conflict,omitempty"`
}
