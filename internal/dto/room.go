package dto

// CreateRoomRequest registers a room.
type CreateRoomRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Capacity int     `json:"capacity" validate:"required,min=1,max=1000"`
	Location *string `json:"location" validate:"omitempty,max=255"`
}
