package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day expressed in minutes since midnight.
type ClockTime int

// ParseClockTime parses an "HH:MM" value.
func ParseClockTime(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	hour, errHour := strconv.Atoi(parts[0])
	minute, errMinute := strconv.Atoi(parts[1])
	if errHour != nil || errMinute != nil {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("clock time %q out of range", raw)
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClock parses an "HH:MM" value and panics on malformed input. Intended for fixtures.
func MustClock(raw string) ClockTime {
	c, err := ParseClockTime(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the time as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer.
func (c ClockTime) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan implements sql.Scanner for TEXT and TIME columns.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = 0
		return nil
	case string:
		return c.UnmarshalText([]byte(trimSeconds(v)))
	case []byte:
		return c.UnmarshalText([]byte(trimSeconds(string(v))))
	case time.Time:
		*c = ClockTime(v.Hour()*60 + v.Minute())
		return nil
	default:
		return fmt.Errorf("unsupported clock time source %T", src)
	}
}

func trimSeconds(raw string) string {
	if strings.Count(raw, ":") == 2 {
		return raw[:strings.LastIndex(raw, ":")]
	}
	return raw
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start ClockTime
	End   ClockTime
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return w.Start < w.End
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && other.Start < w.End
}

// Contains reports whether other lies fully inside w.
func (w Window) Contains(other Window) bool {
	return w.Start <= other.Start && other.End <= w.End
}

// Weekday names a working day. Values use the English day name, e.g. "Monday".
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

var weekdayOrder = map[Weekday]int{
	Monday:    0,
	Tuesday:   1,
	Wednesday: 2,
	Thursday:  3,
	Friday:    4,
	Saturday:  5,
	Sunday:    6,
}

// DefaultWorkingDays is the Monday–Friday week.
func DefaultWorkingDays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// ParseWeekday normalises a day name ("monday", "MONDAY", "Mon") into a Weekday.
func ParseWeekday(raw string) (Weekday, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) < 3 {
		return "", false
	}
	for day := range weekdayOrder {
		name := strings.ToLower(string(day))
		if raw == name || raw == name[:3] {
			return day, true
		}
	}
	return "", false
}

// Index returns the position of the day within the week (Monday = 0) or -1.
func (d Weekday) Index() int {
	if idx, ok := weekdayOrder[d]; ok {
		return idx
	}
	return -1
}

// Valid reports whether d is a known day name.
func (d Weekday) Valid() bool {
	return d.Index() >= 0
}

// Date resolves the calendar date of d in the week starting at weekStart (a Monday).
func (d Weekday) Date(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, d.Index())
}
