package models

import "time"

// Class represents a tuition class taught by (at most) one teacher.
type Class struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Subject        string    `db:"subject" json:"subject"`
	TeacherID      *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	LegacySchedule *string   `db:"legacy_schedule" json:"legacy_schedule,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
