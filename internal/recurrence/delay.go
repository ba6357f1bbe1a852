package recurrence

import "time"

// Next returns the next occurrence of p at or after now, evaluated in loc.
// A nil loc means UTC.
func Next(p Period, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return p.next(now.In(loc))
}

// Delay returns how long to wait from now until the next occurrence of p in loc.
// It is zero only when now is exactly an occurrence.
func Delay(p Period, loc *time.Location, now time.Time) time.Duration {
	if d := Next(p, loc, now).Sub(now); d > 0 {
		return d
	}
	return 0
}

// DelayMillis is Delay in whole milliseconds.
func DelayMillis(p Period, loc *time.Location, now time.Time) int64 {
	return Delay(p, loc, now).Milliseconds()
}

// Upcoming returns the next n occurrences of p after now, in loc.
func Upcoming(p Period, loc *time.Location, now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	s := Schedule{Period: p, Location: loc}
	out := make([]time.Time, 0, n)
	t := Next(p, loc, now)
	for len(out) < n {
		out = append(out, t)
		t = s.Next(t)
	}
	return out
}
