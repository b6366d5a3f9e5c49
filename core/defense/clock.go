package defense

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// ParseClock parses an "HH:MM" time of day into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || parts[0] == "" || len(parts[0]) > 2 || !digits(parts[0]) || !digits(parts[1]) {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: hour must be between 00 and 23", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: minute must be between 00 and 59", s)
	}
	return h*60 + m, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Interval is a half-open [Start, End) range of minutes since midnight.
type Interval struct {
	Start int
	End   int
}

func (iv Interval) Valid() bool {
	return iv.Start < iv.End
}

// Overlaps reports whether both half-open intervals share at least one minute.
// Back-to-back intervals (09:00-09:30, 09:30-10:00) do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return !(iv.End <= o.Start || o.End <= iv.Start)
}

func (iv Interval) String() string {
	return FormatClock(iv.Start) + "-" + FormatClock(iv.End)
}
