// Package clinic holds the clinic's scheduling constants and the date, time
// and interval helpers every other scheduling component shares.
package clinic

import (
	"fmt"
	"time"
)

const (
	DefaultTimezone  = "Asia/Kolkata"
	DefaultOpenHour  = 10
	DefaultCloseHour = 17
	DefaultSlot      = time.Hour

	// ClockLayout renders times the way patients see them ("03:00 PM").
	ClockLayout = "03:04 PM"
	// DayKeyLayout keys grouped schedules ("2026-01-25 (Sunday)").
	DayKeyLayout = "2006-01-02 (Monday)"
)

// Hours describes when the clinic sees patients. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Hours struct {
	Location   *time.Location
	OpenHour   int
	CloseHour  int
	SlotLength time.Duration
	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// NewHours validates the parameters and loads the timezone.
func NewHours(timezone string, openHour, closeHour int, slot time.Duration) (Hours, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return Hours{}, err
	}
	if openHour < 0 || closeHour > 24 || openHour >= closeHour {
		return Hours{}, fmt.Errorf("clinic: invalid working hours %d-%d", openHour, closeHour)
	}
	if slot <= 0 || time.Duration(closeHour-openHour)*time.Hour < slot {
		return Hours{}, fmt.Errorf("clinic: slot length %s does not fit working hours", slot)
	}
	return Hours{Location: loc, OpenHour: openHour, CloseHour: closeHour, SlotLength: slot}, nil
}

// DefaultHours is the 10:00-17:00 IST day in one-hour slots.
func DefaultHours() Hours {
	loc, _ := LoadLocation(DefaultTimezone)
	return Hours{Location: loc, OpenHour: DefaultOpenHour, CloseHour: DefaultCloseHour, SlotLength: DefaultSlot}
}

// LoadLocation resolves an IANA zone. Asia/Kolkata falls back to a fixed
// +05:30 zone on hosts without tzdata.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return time.FixedZone("IST", 5*3600+1800), nil
	}
	return nil, fmt.Errorf("clinic: load timezone %q: %w", name, err)
}

func (h Hours) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// CurrentTime returns now in the clinic zone.
func (h Hours) CurrentTime() time.Time {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return now().In(h.loc())
}

// Today returns clinic-local midnight of the current day.
func (h Hours) Today() time.Time {
	return StartOfDay(h.CurrentTime())
}

// ParseDate parses YYYY-MM-DD in the clinic zone.
func (h Hours) ParseDate(s string) (time.Time, error) {
	return ParseDate(s, h.loc())
}

// ParseInstant parses a date and time in the clinic zone.
func (h Hours) ParseInstant(date, timeStr string) (time.Time, error) {
	return ParseInstant(date, timeStr, h.loc())
}

// WorkingWindow returns [open, close) for the day containing t.
func (h Hours) WorkingWindow(t time.Time) Interval {
	day := StartOfDay(t.In(h.loc()))
	return Interval{
		Start: day.Add(time.Duration(h.OpenHour) * time.Hour),
		End:   day.Add(time.Duration(h.CloseHour) * time.Hour),
	}
}

// Slots enumerates the fixed candidate slots of a day in ascending order.
func (h Hours) Slots(day time.Time) []Interval {
	window := h.WorkingWindow(day)
	var out []Interval
	for start := window.Start; !start.Add(h.SlotLength).After(window.End); start = start.Add(h.SlotLength) {
		out = append(out, Interval{Start: start, End: start.Add(h.SlotLength)})
	}
	return out
}

// WithinWorkingHours reports whether iv fits entirely inside its day's window.
func (h Hours) WithinWorkingHours(iv Interval) bool {
	window := h.WorkingWindow(iv.Start)
	return !iv.Start.Before(window.Start) && !iv.End.After(window.End)
}

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatClock renders t in the clinic's patient-facing clock format.
func (h Hours) FormatClock(t time.Time) string {
	return t.In(h.loc()).Format(ClockLayout)
}
