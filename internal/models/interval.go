package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for business dates.
const DateLayout = "2006-01-02"

// MinutesPerDay bounds every Minute value.
const MinutesPerDay = 24 * 60

// Minute is a wall-clock offset from local midnight of a business date.
// It marshals as "HH:MM" and is stored as an integer column.
type Minute int

// ParseMinute parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseMinute(raw string) (Minute, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", raw)
	}
	return Minute(h*60 + m), nil
}

// MustMinute is a test and fixture helper that panics on malformed input.
func MustMinute(raw string) Minute {
	m, err := ParseMinute(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (m Minute) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Minute) UnmarshalText(text []byte) error {
	parsed, err := ParseMinute(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Interval is a half-open [Start, End) span on a single business date.
type Interval struct {
	Start Minute `db:"start_minute" json:"start" yaml:"start"`
	End   Minute `db:"end_minute" json:"end" yaml:"end"`
}

// NewInterval builds an interval from a start and a duration in minutes.
func NewInterval(start Minute, durationMinutes int) Interval {
	return Interval{Start: start, End: start + Minute(durationMinutes)}
}

// Duration returns the length in minutes.
func (i Interval) Duration() int {
	return int(i.End - i.Start)
}

// Valid reports whether the interval is non-empty and inside one day.
func (i Interval) Valid() bool {
	return i.Start >= 0 && i.End <= MinutesPerDay && i.Start < i.End
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Intersect returns the common part of two intervals.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	out := Interval{Start: maxMinute(i.Start, o.Start), End: minMinute(i.End, o.End)}
	return out, out.Start < out.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// ParseDate parses a YYYY-MM-DD business date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween returns to-from in whole days.
func DaysBetween(from, to string) (int, error) {
	f, err := ParseDate(from, time.UTC)
	if err != nil {
		return 0, err
	}
	t, err := ParseDate(to, time.UTC)
	if err != nil {
		return 0, err
	}
	return int(t.Sub(f).Hours() / 24), nil
}

// At returns the absolute instant of minute m on date in loc.
func At(date string, m Minute, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(m) * time.Minute), nil
}

func maxMinute(a, b Minute) Minute {
	if a > b {
		return a
	}
	return b
}

func minMinute(a, b Minute) Minute {
	if a < b {
		return a
	}
	return b
}
