// Package timerange converts wall-clock "HH:MM" values to minute offsets
// and tests half-open interval overlap.
package timerange

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute offset.
const MinutesPerDay = 24 * 60

var ErrInvalidFormat = errors.New("time must be in HH:MM 24-hour format")

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ToMinutes parses an "HH:MM" string into hours*60+minutes.
func ToMinutes(s string) (int, error) {
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	hh, mm, _ := strings.Cut(s, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m, nil
}

// FormatMinutes renders a minute offset as a zero padded "HH:MM" string.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
// A range ending at 10:00 does not overlap one starting at 10:00.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// Range is a parsed half-open [Start, End) interval in minutes since midnight.
type Range struct {
	Start int
	End   int
}

// ParseRange parses both ends of a wall-clock range. It does not require
// Start < End; callers decide how to report an inverted range.
func ParseRange(start, end string) (Range, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: s, End: e}, nil
}

// Minutes returns the length of the range.
func (r Range) Minutes() int {
	return r.End - r.Start
}

// Overlaps reports whether r and o intersect.
func (r Range) Overlaps(o Range) bool {
	return Overlaps(r.Start, r.End, o.Start, o.End)
}

// EndAfter returns the "HH:MM" that lies d after start, rounded to the
// minute. ok is false when the result would cross midnight.
func EndAfter(start string, d time.Duration) (end string, ok bool, err error) {
	s, err := ToMinutes(start)
	if err != nil {
		return "", false, err
	}
	e := s + int(d.Round(time.Minute)/time.Minute)
	if e >= MinutesPerDay {
		return "", false, nil
	}
	return FormatMinutes(e), true, nil
}

// At combines a "YYYY-MM-DD" date and a minute offset into an instant in loc.
func At(date string, minutes int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}
