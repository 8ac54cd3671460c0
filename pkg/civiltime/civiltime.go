// Package civiltime converts between calendar dates perceived in one IANA
// timezone and absolute instants.
package civiltime

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a civil day in minutes-of-day units.
const MinutesPerDay = 24 * 60

const dateLayout = "2006-01-02"

// ErrInvalidTimeFormat is returned when a clock value is outside 00:00-23:59.
var ErrInvalidTimeFormat = errors.New("invalid time format")

// ErrInvalidDate is returned when a civil date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date independent of any instant.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a normalised civil date (e.g. Feb 30 becomes Mar 1/2).
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.utcMidnight().Before(other.utcMidnight())
}

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month && d.Day == other.Day
}

// Weekday returns the weekday of the date. It does not depend on a timezone.
func (d Date) Weekday() time.Weekday {
	return d.utcMidnight().Weekday()
}

func (d Date) utcMidnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so dates can be bound to DATE columns.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = Date{Year: v.Year(), Month: v.Month(), Day: v.Day()}
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("civiltime: cannot scan %T into Date", src)
	}
}

// DateOf returns the calendar date perceived in loc at the given instant.
func DateOf(instant time.Time, loc *time.Location) Date {
	local := instant.In(location(loc))
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// StartOfDay returns the instant of 00:00 on date in loc.
func StartOfDay(date Date, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, location(loc))
}

// EndOfDay returns the instant of the following 00:00 in loc, the exclusive
// upper bound of the day. Days around DST transitions are 23 or 25 hours long.
func EndOfDay(date Date, loc *time.Location) time.Time {
	next := date.AddDays(1)
	return time.Date(next.Year, next.Month, next.Day, 0, 0, 0, 0, location(loc))
}

// WeekdayOf returns 0 (Sunday) through 6 (Saturday).
func WeekdayOf(date Date, loc *time.Location) int {
	return int(StartOfDay(date, loc).Weekday())
}

// Instant converts a civil minute-of-day on date into an absolute instant.
// Minute 1440 resolves to the next day's midnight.
func Instant(date Date, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, minute/60, minute%60, 0, 0, location(loc))
}

// MinuteOfDay returns the civil minute-of-day of instant in loc.
func MinuteOfDay(instant time.Time, loc *time.Location) int {
	local := instant.In(location(loc))
	return local.Hour()*60 + local.Minute()
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || !twoDigits(parts[0]) || !twoDigits(parts[1]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	return hours*60 + minutes, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) (string, error) {
	if minutes < 0 || minutes >= MinutesPerDay {
		return "", fmt.Errorf("%w: %d minutes", ErrInvalidTimeFormat, minutes)
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}

// LoadLocation wraps time.LoadLocation with a descriptive error.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("timezone name is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
