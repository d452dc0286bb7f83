package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// ID is an opaque 128-bit identifier. Equality is by value.
type ID struct {
	value uuid.UUID
}

// NewID generates a new random ID.
func NewID() ID {
	return ID{value: uuid.New()}
}

// ParseID parses the canonical textual form of an ID.
func ParseID(s string) (ID, error) {
	v, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ID{}, WrapError("shared", "ParseID", ErrValidation, "invalid ID format", err)
	}
	return ID{value: v}, nil
}

// MustParseID is ParseID for constants and tests.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IDFromUUID wraps an already parsed UUID.
func IDFromUUID(v uuid.UUID) ID {
	return ID{value: v}
}

// UUID returns the underlying UUID.
func (id ID) UUID() uuid.UUID {
	return id.value
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// String returns the canonical textual form.
func (id ID) String() string {
	return id.value.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// CalendarDate Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateLayout is the canonical textual form of a CalendarDate.
const DateLayout = "2006-01-02"

// CalendarDate is a day in the proleptic Gregorian calendar, without time of day.
type CalendarDate struct {
	year  int
	month time.Month
	day   int
}

// NewCalendarDate creates a CalendarDate, rejecting dates that do not exist.
func NewCalendarDate(year int, month time.Month, day int) (CalendarDate, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return CalendarDate{}, NewDomainError("shared", "NewCalendarDate", ErrValidation,
			fmt.Sprintf("invalid calendar date %04d-%02d-%02d", year, int(month), day))
	}
	return CalendarDate{year: year, month: month, day: day}, nil
}

// ParseCalendarDate parses a date in YYYY-MM-DD form.
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return CalendarDate{}, WrapError("shared", "ParseCalendarDate", ErrValidation, "invalid calendar date", err)
	}
	return CalendarDateOf(t), nil
}

// MustParseCalendarDate is ParseCalendarDate for constants and tests.
func MustParseCalendarDate(s string) CalendarDate {
	d, err := ParseCalendarDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// CalendarDateOf returns the date of t in t's own location.
func CalendarDateOf(t time.Time) CalendarDate {
	return CalendarDate{year: t.Year(), month: t.Month(), day: t.Day()}
}

// IsZero reports whether the date is unset.
func (d CalendarDate) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// Year returns the year.
func (d CalendarDate) Year() int { return d.year }

// Month returns the month.
func (d CalendarDate) Month() time.Month { return d.month }

// Day returns the day of month.
func (d CalendarDate) Day() int { return d.day }

// Time returns midnight UTC of the date.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (earlier for negative n).
func (d CalendarDate) AddDays(n int) CalendarDate {
	return CalendarDateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly before other.
func (d CalendarDate) Before(other CalendarDate) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly after other.
func (d CalendarDate) After(other CalendarDate) bool {
	return d.Time().After(other.Time())
}

// Equal reports whether both dates are the same day.
func (d CalendarDate) Equal(other CalendarDate) bool {
	return d == other
}

// String returns the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// MarshalText implements encoding.TextMarshaler.
func (d CalendarDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *CalendarDate) UnmarshalText(b []byte) error {
	parsed, err := ParseCalendarDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
