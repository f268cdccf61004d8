package scheduling

// Axis names the resource dimension a reservation occupies.
type Axis string

const (
	AxisRoom    Axis = "ROOM"
	AxisTeacher Axis = "TEACHER"
	AxisClass   Axis = "CLASS"
)

func (a Axis) noun() string {
	switch a {
	case AxisRoom:
		return "room"
	case AxisTeacher:
		return "teacher"
	case AxisClass:
		return "class"
	}
	return "resource"
}

// Reservation is one booking of a resource on a weekday. ID is the persisted
// schedule row, empty for proposals; OwnerID and OwnerName identify the class.
type Reservation struct {
	ID         string
	ResourceID string
	Day        DayOfWeek
	Interval   TimeInterval
	OwnerID    string
	OwnerName  string
}

// FindConflicts returns, in input order, every existing reservation on the same
// resource and day whose interval overlaps the proposal. A persisted proposal
// never conflicts with its own row.
func FindConflicts(proposed Reservation, existing []Reservation) []Reservation {
	return scanConflicts(proposed, existing, 0)
}

// FirstConflict returns the first conflicting reservation in input order.
func FirstConflict(proposed Reservation, existing []Reservation) (Reservation, bool) {
	conflicts := scanConflicts(proposed, existing, 1)
	if len(conflicts) == 0 {
		return Reservation{}, false
	}
	return conflicts[0], true
}

// scanConflicts stops after limit hits; limit 0 means no limit.
func scanConflicts(proposed Reservation, existing []Reservation, limit int) []Reservation {
	var conflicts []Reservation
	for _, item := range existing {
		if !competes(proposed, item) || !Overlaps(proposed.Interval, item.Interval) {
			continue
		}
		conflicts = append(conflicts, item)
		if limit > 0 && len(conflicts) == limit {
			break
		}
	}
	return conflicts
}

func competes(proposed, item Reservation) bool {
	if proposed.ID != "" && item.ID == proposed.ID {
		return false
	}
	return item.ResourceID == proposed.ResourceID && item.Day == proposed.Day
}
