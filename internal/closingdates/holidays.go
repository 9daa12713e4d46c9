package closingdates

import (
	"time"

	"bbys_backend/internal/domain"
)

// Holidays returns the closing holidays of a year: Jan 1, Jul 4, Dec 24,
// Dec 25, Dec 31, Good Friday, Memorial Day, Labor Day, Thanksgiving and
// the day after Thanksgiving.
func Holidays(year int) []domain.Date {
	thanksgiving := nthWeekday(year, time.November, time.Thursday, 4)
	return []domain.Date{
		domain.NewDate(year, time.January, 1),
		goodFriday(year),
		lastWeekday(year, time.May, time.Monday),
		domain.NewDate(year, time.July, 4),
		nthWeekday(year, time.September, time.Monday, 1),
		thanksgiving,
		thanksgiving.AddDays(1),
		domain.NewDate(year, time.December, 24),
		domain.NewDate(year, time.December, 25),
		domain.NewDate(year, time.December, 31),
	}
}

// easter is the Gregorian Easter Sunday (anonymous Gregorian algorithm).
func easter(year int) domain.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return domain.NewDate(year, time.Month(month), day)
}

func goodFriday(year int) domain.Date {
	return easter(year).AddDays(-2)
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) domain.Date {
	first := domain.NewDate(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) domain.Date {
	last := domain.DateOf(time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC))
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDays(-offset)
}
