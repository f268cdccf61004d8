package scheduling

import "strings"

// DayOfWeek is the canonical spelling of a weekday.
type DayOfWeek string

const (
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
	Sunday    DayOfWeek = "Sunday"
)

// Weekdays lists the canonical days in ISO order (Monday first).
var Weekdays = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var dayLookup = map[string]DayOfWeek{
	"monday": Monday, "mon": Monday, "1": Monday,
	"tuesday": Tuesday, "tue": Tuesday, "tues": Tuesday, "2": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday, "weds": Wednesday, "3": Wednesday,
	"thursday": Thursday, "thu": Thursday, "thur": Thursday, "thurs": Thursday, "4": Thursday,
	"friday": Friday, "fri": Friday, "5": Friday,
	"saturday": Saturday, "sat": Saturday, "6": Saturday,
	"sunday": Sunday, "sun": Sunday, "7": Sunday,
}

// NormalizeDay maps a free-form day string ("MON", "wednesday", "Thurs", "3")
// onto its canonical DayOfWeek.
func NormalizeDay(raw string) (DayOfWeek, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimSuffix(key, ".")
	if day, ok := dayLookup[key]; ok {
		return day, nil
	}
	return "", &FormatError{Field: "day_of_week", Value: raw}
}

// Index returns the ISO weekday number (Monday=1 .. Sunday=7), or 0 when the
// day is not canonical.
func (d DayOfWeek) Index() int {
	for i, day := range Weekdays {
		if day == d {
			return i + 1
		}
	}
	return 0
}

func (d DayOfWeek) String() string {
	return string(d)
}
