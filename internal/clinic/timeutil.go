package clinic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrParse is wrapped by every ParseError so callers can test with errors.Is.
var ErrParse = errors.New("clinic: unparseable date or time")

// ParseError reports which input could not be understood.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("clinic: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

const dateLayout = "2006-01-02"

// Full timestamps carrying their own offset.
var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04-07:00",
	"2006-01-02 15:04:05-07:00",
}

// Full timestamps without an offset; interpreted in the clinic zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var clockLayouts24 = []string{"15:04:05", "15:04"}

var clockLayouts12 = []string{"3:04:05PM", "3:04PM", "3PM"}

// ParseDate parses YYYY-MM-DD and returns midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(s)
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Reason: "expected YYYY-MM-DD"}
	}
	return d, nil
}

// ParseInstant turns a date plus a time string into an absolute instant.
//
// timeStr may be a 24h clock ("14:00", "14:00:00"), a 12h clock ("2 PM",
// "02:00pm") or a full ISO-8601 timestamp, in which case date may be empty.
// Anything without an explicit offset is read in loc.
func ParseInstant(date, timeStr string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(timeStr)
	if raw == "" {
		return time.Time{}, &ParseError{Input: timeStr, Reason: "empty time"}
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}

	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}

	clock, ok := parseClock(raw)
	if !ok {
		return time.Time{}, &ParseError{Input: timeStr, Reason: "unrecognized time format"}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
}

func parseClock(raw string) (time.Time, bool) {
	upper := strings.ToUpper(raw)
	if strings.HasSuffix(upper, "AM") || strings.HasSuffix(upper, "PM") {
		compact := strings.ReplaceAll(upper, " ", "")
		for _, layout := range clockLayouts12 {
			if t, err := time.Parse(layout, compact); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	for _, layout := range clockLayouts24 {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// Valid reports whether Start is strictly before End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
