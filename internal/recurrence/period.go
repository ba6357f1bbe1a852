package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TimeOfDay is a wall-clock time. Ranges are checked by the config layer.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// at returns the instant for y-m-d at t in loc. Out-of-range days normalize the
// same way time.Date does; callers clamp before calling when that matters.
func (t TimeOfDay) at(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, loc)
}

// Kind names a period variant.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Period is the closed set of recurrence rules: Daily, Weekly and Monthly.
//
// next returns the first instant at or after now (in now's location).
type Period interface {
	Kind() Kind
	Describe() string
	next(now time.Time) time.Time
}

// Daily fires every day at Time.
type Daily struct {
	Time TimeOfDay
}

// Weekly fires every week on Weekday at Time.
type Weekly struct {
	Time    TimeOfDay
	Weekday time.Weekday
}

// Monthly fires every month on Day at Time. Days past the end of a month are
// clamped to its last day.
type Monthly struct {
	Time TimeOfDay
	Day  int
}

func (Daily) Kind() Kind   { return KindDaily }
func (Weekly) Kind() Kind  { return KindWeekly }
func (Monthly) Kind() Kind { return KindMonthly }

func (p Daily) Describe() string { return "daily at " + p.Time.String() }

func (p Weekly) Describe() string {
	return "weekly on " + p.Weekday.String() + " at " + p.Time.String()
}

func (p Monthly) Describe() string {
	return fmt.Sprintf("monthly on day %d at %s", p.Day, p.Time.String())
}

func (p Daily) next(now time.Time) time.Time {
	loc := now.Location()
	y, m, d := now.Date()
	c := p.Time.at(y, m, d, loc)
	if c.Before(now) {
		c = p.Time.at(y, m, d+1, loc)
	}
	return c
}

func (p Weekly) next(now time.Time) time.Time {
	loc := now.Location()
	y, m, d := now.Date()
	c := p.Time.at(y, m, d, loc)
	if days := (int(p.Weekday) - int(c.Weekday()) + 7) % 7; days != 0 {
		d += days
		c = p.Time.at(y, m, d, loc)
	}
	if c.Before(now) {
		c = p.Time.at(y, m, d+7, loc)
	}
	return c
}

func (p Monthly) next(now time.Time) time.Time {
	loc := now.Location()
	y, m, _ := now.Date()
	c := p.Time.at(y, m, clampDay(y, m, p.Day), loc)
	if c.Before(now) {
		y, m = nextMonth(y, m)
		c = p.Time.at(y, m, clampDay(y, m, p.Day), loc)
	}
	return c
}

func nextMonth(y int, m time.Month) (int, time.Month) {
	if m == time.December {
		return y + 1, time.January
	}
	return y, m + 1
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(y int, m time.Month, day int) int {
	if day < 1 {
		return 1
	}
	if n := DaysIn(y, m); day > n {
		return n
	}
	return day
}

// ParseWeekday accepts full or 3-letter English weekday names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if v == full || v == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// Schedule adapts a Period and location to cron.Schedule.
type Schedule struct {
	Period   Period
	Location *time.Location
}

var _ cron.Schedule = Schedule{}

// Next returns the first occurrence strictly after t, as cron.Schedule requires.
func (s Schedule) Next(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	// cron asks for the activation after t; shift by the smallest step cron uses.
	return s.Period.next(t.In(loc).Add(time.Second).Truncate(time.Second))
}
