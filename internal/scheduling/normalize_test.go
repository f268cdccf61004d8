package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDay(t *testing.T) {
	inputs := map[string]DayOfWeek{
		"MON":       Monday,
		"Monday":    Monday,
		"monday":    Monday,
		" mon. ":    Monday,
		"Tues":      Tuesday,
		"WEDNESDAY": Wednesday,
		"weds":      Wednesday,
		"Thurs":     Thursday,
		"thu":       Thursday,
		"fri":       Friday,
		"Sat":       Saturday,
		"SUNDAY":    Sunday,
		"7":         Sunday,
	}
	for raw, want := range inputs {
		got, err := NormalizeDay(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalizeDayIsIdempotent(t *testing.T) {
	for _, day := range Weekdays {
		got, err := NormalizeDay(string(day))
		require.NoError(t, err)
		assert.Equal(t, day, got)
	}

	short, err := NormalizeDay("MON")
	require.NoError(t, err)
	long, err := NormalizeDay("Monday")
	require.NoError(t, err)
	assert.Equal(t, long, short)
	assert.Equal(t, Monday, long)
}

func TestNormalizeDayRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "funday", "Mo", "8", "0"} {
		_, err := NormalizeDay(raw)
		require.ErrorIs(t, err, ErrInvalidFormat, raw)

		var formatErr *FormatError
		require.ErrorAs(t, err, &formatErr)
		assert.Equal(t, "day_of_week", formatErr.Field)
	}
}

func TestNormalizeTimeRoundTrip(t *testing.T) {
	for minutes := 0; minutes < MinutesPerDay; minutes++ {
		canonical := FormatClock(minutes)
		got, err := NormalizeTime(canonical)
		require.NoError(t, err, canonical)
		require.Equal(t, canonical, got)
	}
}

func TestParseClockFormats(t *testing.T) {
	cases := map[string]int{
		"9:00":      540,
		"09:00":     540,
		"9:00 AM":   540,
		"9:00AM":    540,
		"9:00 a.m.": 540,
		"12:00 AM":  0,
		"12:30 PM":  750,
		"1:15 pm":   795,
		"23:59":     1439,
		"00:00":     0,
	}
	for raw, want := range cases {
		got, err := ParseClock(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "9", "9:0", "24:00", "13:00 PM", "0:30 AM", "09:60", "nine", "9:00 XM"} {
		_, err := ParseClock(raw)
		require.ErrorIs(t, err, ErrInvalidFormat, raw)
	}
}
