package dto

// TimeSlotRequest creates or replaces a time slot.
type TimeSlotRequest struct {
	Label     string `json:"label" validate:"required,max=100"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}
