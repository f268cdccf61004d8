package scheduling

// Slot is a normalised weekday and time range.
type Slot struct {
	Day      DayOfWeek
	Interval TimeInterval
}

// Proposal is a raw booking request. ID is set when an existing schedule row
// is being moved so it is not reported as conflicting with itself.
type Proposal struct {
	ID        string
	OwnerID   string
	OwnerName string
	Day       string
	Start     string
	End       string
}

// AxisSnapshot carries the existing reservations of one resource for the
// proposal's day.
type AxisSnapshot struct {
	Axis       Axis
	ResourceID string
	Existing   []Reservation
}

// SnapshotFunc loads the reservations to check a normalised slot against.
type SnapshotFunc func(slot Slot) ([]AxisSnapshot, error)

// NormalizeSlot parses the day and the clock range, enforcing start < end.
func NormalizeSlot(day, start, end string) (Slot, error) {
	d, err := NormalizeDay(day)
	if err != nil {
		return Slot{}, err
	}
	iv, err := ParseInterval(start, end)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Day: d, Interval: iv}, nil
}

// Evaluate runs the whole booking decision: normalise, check the range, load
// snapshots and search every axis. snapshot is not called for malformed input.
func Evaluate(p Proposal, snapshot SnapshotFunc) (Slot, error) {
	slot, err := NormalizeSlot(p.Day, p.Start, p.End)
	if err != nil {
		return Slot{}, err
	}
	axes, err := snapshot(slot)
	if err != nil {
		return Slot{}, err
	}
	if err := CheckAxes(p, slot, axes); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// CheckAxes searches each axis independently and returns a *ConflictError for
// the first axis with a hit, listing every clash on that axis. Axes without a
// resource id are skipped.
func CheckAxes(p Proposal, slot Slot, axes []AxisSnapshot) error {
	for _, axis := range axes {
		if axis.ResourceID == "" {
			continue
		}
		proposed := Reservation{
			ID:         p.ID,
			ResourceID: axis.ResourceID,
			Day:        slot.Day,
			Interval:   slot.Interval,
			OwnerID:    p.OwnerID,
			OwnerName:  p.OwnerName,
		}
		if conflicts := FindConflicts(proposed, axis.Existing); len(conflicts) > 0 {
			return &ConflictError{Axis: axis.Axis, Proposed: proposed, Existing: conflicts[0], All: conflicts}
		}
	}
	return nil
}
