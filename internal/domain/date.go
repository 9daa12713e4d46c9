package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar date with no time zone. Instants use time.Time in UTC.
type Date struct {
	civil.Date
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	return Date{civil.DateOf(t.UTC())}
}

// DateIn returns the calendar date of t in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	return Date{civil.DateOf(t.In(loc))}
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{d}, nil
}

// MustDate parses s and panics on error. Intended for literals.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Date == civil.Date{}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return d.Date.In(time.UTC)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{d.Date.AddDays(n)}
}

// AddMonths returns d shifted by n calendar months with time.AddDate normalization.
func (d Date) AddMonths(n int) Date {
	return DateOf(d.Time().AddDate(0, n, 0))
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Date.Before(o.Date) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Date.After(o.Date) }

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// DaysSince returns d - o in days.
func (d Date) DaysSince(o Date) int {
	return d.Date.DaysSince(o.Date)
}

// String returns the ISO-8601 form.
func (d Date) String() string {
	return d.Date.String()
}

// MarshalJSON encodes the date as an ISO-8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes an ISO-8601 string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for date columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = Date{civil.DateOf(v)}
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("domain.Date: cannot scan %T", src)
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// DatePtr returns a pointer to d.
func DatePtr(d Date) *Date {
	return &d
}
