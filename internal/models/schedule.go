package models

import "time"

// ClassSchedule is a weekly recurring booking of a class into a room.
type ClassSchedule struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	TimeSlotID *string   `db:"time_slot_id" json:"time_slot_id,omitempty"`
	DayOfWeek  string    `db:"day_of_week" json:"day_of_week"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassScheduleDetail joins the owning class and room for timetables and
// conflict messages.
type ClassScheduleDetail struct {
	ClassSchedule
	ClassName string  `db:"class_name" json:"class_name"`
	TeacherID *string `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomName  string  `db:"room_name" json:"room_name"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	ClassID   string
	RoomID    string
	TeacherID string
	DayOfWeek string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ScheduleConflict describes an existing schedule that causes a conflict.
type ScheduleConflict struct {
	ScheduleID string `json:"schedule_id,omitempty"`
	ClassID    string `json:"class_id"`
	ClassName  string `json:"class_name"`
	RoomID     string `json:"room_id,omitempty"`
	TeacherID  string `json:"teacher_id,omitempty"`
	DayOfWeek  string `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Dimension  string `json:"dimension"`
}

// ScheduleConflictError is returned when a schedule collides with an existing one.
type ScheduleConflictError struct {
	Type     string             `json:"type"`
	Message  string             `json:"message"`
	Conflict ScheduleConflict   `json:"conflict"`
	Errors   []ScheduleConflict `json:"errors,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
