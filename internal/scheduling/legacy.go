package scheduling

import (
	"regexp"
	"strings"
)

const clockToken = `\d{1,2}:\d{2}\s*(?:[AaPp]\.?[Mm]\.?)?`

var (
	legacyRangePattern = regexp.MustCompile(`(` + clockToken + `)\s*(?:-|–|to)\s*(` + clockToken + `)`)
	legacyDaySplitter  = regexp.MustCompile(`\s*(?:,|/|&|\band\b|\s)\s*`)

	// legacyDayRange joins "Mon - Fri", "Mon – Fri" and "Mon to Fri" into
	// "Mon-Fri" so a range survives the whitespace split.
	legacyDayRange = regexp.MustCompile(`\s*(?:-|–|\b(?i:to)\b)\s*`)
)

// ParseLegacySchedule reads the free-form schedule strings stored on legacy
// class rows, e.g. "Mon, Wed 9:00 AM - 10:30 AM", "Tuesday 14:00-15:30" or
// "Mon-Fri 16:00 to 17:00; Sat 09:00-11:00", into one Slot per weekday.
func ParseLegacySchedule(raw string) ([]Slot, error) {
	segments := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' || r == '|' })
	var slots []Slot
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		loc := legacyRangePattern.FindStringSubmatchIndex(segment)
		if loc == nil {
			return nil, &FormatError{Field: "schedule", Value: segment}
		}
		iv, err := ParseInterval(segment[loc[2]:loc[3]], segment[loc[4]:loc[5]])
		if err != nil {
			return nil, err
		}
		days, err := parseLegacyDays(segment[:loc[0]] + " " + segment[loc[1]:])
		if err != nil {
			return nil, err
		}
		for _, day := range days {
			slots = append(slots, Slot{Day: day, Interval: iv})
		}
	}
	if len(slots) == 0 {
		return nil, &FormatError{Field: "schedule", Value: raw}
	}
	return slots, nil
}

func parseLegacyDays(text string) ([]DayOfWeek, error) {
	var days []DayOfWeek
	seen := make(map[DayOfWeek]struct{})
	text = legacyDayRange.ReplaceAllString(strings.TrimSpace(text), "-")
	for _, token := range legacyDaySplitter.Split(text, -1) {
		token = strings.Trim(token, " :.-")
		if token == "" {
			continue
		}
		expanded, err := expandDayToken(token)
		if err != nil {
			return nil, err
		}
		for _, day := range expanded {
			if _, ok := seen[day]; ok {
				continue
			}
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return nil, &FormatError{Field: "day_of_week", Value: text}
	}
	return days, nil
}

// expandDayToken handles single days and inclusive ranges such as "Mon-Fri".
func expandDayToken(token string) ([]DayOfWeek, error) {
	from, to, isRange := strings.Cut(token, "-")
	if !isRange {
		day, err := NormalizeDay(token)
		if err != nil {
			return nil, err
		}
		return []DayOfWeek{day}, nil
	}
	first, err := NormalizeDay(from)
	if err != nil {
		return nil, err
	}
	last, err := NormalizeDay(to)
	if err != nil {
		return nil, err
	}
	if last.Index() < first.Index() {
		return nil, &FormatError{Field: "day_of_week", Value: token}
	}
	return Weekdays[first.Index()-1 : last.Index()], nil
}
