package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MinutesPerDay bounds clock values: every parsed time is in [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp]\.?[Mm]\.?)?$`)

// ParseClock converts "9:00", "09:00", "9:00 AM" or "9:00pm" into minutes
// since midnight.
func ParseClock(raw string) (int, error) {
	return parseClockField("time", raw)
}

// NormalizeTime returns the canonical 24-hour "HH:MM" spelling of raw.
func NormalizeTime(raw string) (string, error) {
	minutes, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return FormatClock(minutes), nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func parseClockField(field, raw string) (int, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, &FormatError{Field: field, Value: raw}
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if minute > 59 {
		return 0, &FormatError{Field: field, Value: raw}
	}

	if meridiem := strings.ToLower(strings.ReplaceAll(m[3], ".", "")); meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, &FormatError{Field: field, Value: raw}
		}
		hour %= 12
		if meridiem == "pm" {
			hour += 12
		}
	} else if hour > 23 {
		return 0, &FormatError{Field: field, Value: raw}
	}

	return hour*60 + minute, nil
}
