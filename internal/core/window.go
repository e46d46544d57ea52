package core

import (
	"fmt"
	"time"
)

// Window is a date interval [Start, End], inclusive at both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: window bounds cannot be zero", ErrInvalidDate)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: window end before start", ErrInvalidDate)
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}

// MonthWindow returns the calendar month containing t, in t's location. The
// end is the last nanosecond of the month.
func MonthWindow(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// ParseMonth parses "2006-01" into the matching month window in loc.
func ParseMonth(s string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: month %q must look like 2006-01", ErrInvalidDate, s)
	}
	return MonthWindow(t), nil
}

// ParseDate accepts a plain date (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
