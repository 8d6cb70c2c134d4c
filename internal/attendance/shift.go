package attendance

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time in the organization's zone.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{t.Hour(), t.Minute(), t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// Shift is the fixed working window used for late/early classification.
type Shift struct {
	CheckInCutoff  TimeOfDay
	CheckOutCutoff TimeOfDay
	Location       *time.Location
}

// DefaultShift is 11:00 check-in, 22:00 check-out.
func DefaultShift(loc *time.Location) Shift {
	if loc == nil {
		loc = time.UTC
	}
	return Shift{CheckInCutoff: TimeOfDay{Hour: 11}, CheckOutCutoff: TimeOfDay{Hour: 22}, Location: loc}
}

func (s Shift) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// WorkDate is the organization-local calendar date of t.
func (s Shift) WorkDate(t time.Time) string {
	return t.In(s.loc()).Format(dateLayout)
}

// Classify returns the status of an event at t. Check-in strictly after the
// cutoff is late; check-out strictly before the cutoff is early.
func (s Shift) Classify(typ EventType, t time.Time) Status {
	switch typ {
	case CheckIn:
		if t.After(s.CheckInCutoff.On(t, s.loc())) {
			return Late
		}
	case CheckOut:
		if t.Before(s.CheckOutCutoff.On(t, s.loc())) {
			return Early
		}
	case Leave:
		return ApprovedLeave
	}
	return OnTime
}

// ParseDate validates a YYYY-MM-DD date in the shift's zone.
func (s Shift) ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, date, s.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}
