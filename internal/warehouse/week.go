package warehouse

import (
	"fmt"
	"time"
)

// Date is a calendar day carried as midnight UTC. It serialises as
// YYYY-MM-DD, which is how week boundaries appear on the wire.
type Date time.Time

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func (d Date) Time() time.Time    { return time.Time(d) }
func (d Date) IsZero() bool       { return time.Time(d).IsZero() }
func (d Date) Equal(o Date) bool  { return time.Time(d).Equal(time.Time(o)) }
func (d Date) Before(o Date) bool { return time.Time(d).Before(time.Time(o)) }
func (d Date) String() string     { return time.Time(d).Format("2006-01-02") }

func (d Date) AddDays(n int) Date { return Date(time.Time(d).AddDate(0, 0, n)) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date %s is not a quoted string", s)
	}
	t, err := time.ParseInLocation("2006-01-02", s[1:len(s)-1], time.UTC)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	*d = Date(t)
	return nil
}

// WeekStartOf returns the ISO-week Monday of the week containing t,
// evaluated in loc (the reference deployment buckets in UTC).
func WeekStartOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	weekday := int(lt.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := lt.AddDate(0, 0, -(weekday - 1))
	y, m, d := monday.Date()
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// MostRecentCompletedWeek returns the Monday of the last fully elapsed ISO
// week in UTC relative to now.
func MostRecentCompletedWeek(now time.Time) Date {
	return WeekStartOf(now, time.UTC).AddDays(-7)
}

// ParseWeek reads a YYYY-MM-DD week identifier and requires it to be a
// Monday.
func ParseWeek(s string) (Date, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("week %q is not a YYYY-MM-DD date", s)
	}
	if t.Weekday() != time.Monday {
		return Date{}, fmt.Errorf("week %q does not start on a Monday", s)
	}
	return Date(t), nil
}
