package scheduling

// TimeInterval is a half-open [Start, End) range in minutes since midnight.
type TimeInterval struct {
	Start int `json:"start_minutes"`
	End   int `json:"end_minutes"`
}

// NewInterval builds an interval, rejecting ranges where end is not after start.
func NewInterval(start, end int) (TimeInterval, error) {
	if start < 0 || end > MinutesPerDay || start >= end {
		return TimeInterval{}, ErrInvalidRange
	}
	return TimeInterval{Start: start, End: end}, nil
}

// ParseInterval normalises a pair of clock strings into an interval. Format
// errors name start_time or end_time; a well-formed but empty or reversed
// range yields ErrInvalidRange.
func ParseInterval(start, end string) (TimeInterval, error) {
	s, err := parseClockField("start_time", start)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := parseClockField("end_time", end)
	if err != nil {
		return TimeInterval{}, err
	}
	return NewInterval(s, e)
}

// Overlaps reports whether two half-open intervals share any minute.
// Intervals that only touch (a.End == b.Start) do not overlap.
func Overlaps(a, b TimeInterval) bool {
	return a.Start < b.End && b.Start < a.End
}

// FirstOverlap returns the index of the first interval in existing that
// overlaps iv, or -1.
func FirstOverlap(iv TimeInterval, existing []TimeInterval) int {
	for i, other := range existing {
		if Overlaps(iv, other) {
			return i
		}
	}
	return -1
}

// StartClock returns the start as "HH:MM".
func (iv TimeInterval) StartClock() string {
	return FormatClock(iv.Start)
}

// EndClock returns the end as "HH:MM".
func (iv TimeInterval) EndClock() string {
	return FormatClock(iv.End)
}

func (iv TimeInterval) String() string {
	return iv.StartClock() + "-" + iv.EndClock()
}
