package recurrence

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestDelayScenarios(t *testing.T) {
	t.Parallel()
	utc := time.UTC
	ny := mustLoc(t, "America/New_York")
	nine := TimeOfDay{Hour: 9}
	noon := TimeOfDay{Hour: 12}

	tests := []struct {
		name   string
		period Period
		loc    *time.Location
		now    time.Time
		want   time.Duration
	}{
		{name: "daily later today", period: Daily{Time: nine}, loc: utc,
			now: time.Date(2024, 3, 10, 8, 0, 0, 0, utc), want: time.Hour},
		{name: "daily already passed", period: Daily{Time: nine}, loc: utc,
			now: time.Date(2024, 3, 10, 9, 30, 0, 0, utc), want: 23*time.Hour + 30*time.Minute},
		{name: "daily exact match", period: Daily{Time: nine}, loc: utc,
			now: time.Date(2024, 3, 10, 9, 0, 0, 0, utc), want: 0},
		{name: "daily across spring forward", period: Daily{Time: nine}, loc: ny,
			now: time.Date(2024, 3, 9, 9, 30, 0, 0, ny), want: 22*time.Hour + 30*time.Minute},
		{name: "daily across fall back", period: Daily{Time: nine}, loc: ny,
			now: time.Date(2024, 11, 2, 9, 30, 0, 0, ny), want: 24*time.Hour + 30*time.Minute},
		{name: "weekly monday to friday", period: Weekly{Time: noon, Weekday: time.Friday}, loc: utc,
			now: time.Date(2024, 3, 11, 10, 0, 0, 0, utc), want: 4*24*time.Hour + 2*time.Hour},
		{name: "weekly same day before time", period: Weekly{Time: noon, Weekday: time.Friday}, loc: utc,
			now: time.Date(2024, 3, 15, 11, 0, 0, 0, utc), want: time.Hour},
		{name: "weekly same day after time", period: Weekly{Time: noon, Weekday: time.Friday}, loc: utc,
			now: time.Date(2024, 3, 15, 13, 0, 0, 0, utc), want: 7*24*time.Hour - time.Hour},
		{name: "weekly wraps past sunday", period: Weekly{Time: noon, Weekday: time.Monday}, loc: utc,
			now: time.Date(2024, 3, 16, 12, 0, 0, 0, utc), want: 2 * 24 * time.Hour},
		{name: "monthly later this month", period: Monthly{Time: nine, Day: 15}, loc: utc,
			now: time.Date(2024, 5, 1, 9, 0, 0, 0, utc), want: 14 * 24 * time.Hour},
		{name: "monthly december wraps", period: Monthly{Time: nine, Day: 15}, loc: utc,
			now: time.Date(2024, 12, 20, 9, 0, 0, 0, utc), want: 26 * 24 * time.Hour},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Delay(tt.period, tt.loc, tt.now)
			if got != tt.want {
				t.Fatalf("Delay = %v, want %v", got, tt.want)
			}
			if ms := DelayMillis(tt.period, tt.loc, tt.now); ms != tt.want.Milliseconds() {
				t.Fatalf("DelayMillis = %d, want %d", ms, tt.want.Milliseconds())
			}
		})
	}
}

func TestDailyDelayMillis(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	if got := DelayMillis(Daily{Time: TimeOfDay{Hour: 9}}, time.UTC, now); got != 3_600_000 {
		t.Fatalf("DelayMillis = %d, want 3600000", got)
	}
}

// Day 31 is clamped to the last day of shorter months.
func TestMonthlyClampsToLastDay(t *testing.T) {
	t.Parallel()
	nine := TimeOfDay{Hour: 9}
	p := Monthly{Time: nine, Day: 31}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "february", now: time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC),
			want: time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)},
		{name: "leap february", now: time.Date(2024, 2, 20, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)},
		{name: "after clamped day rolls to march 31", now: time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)},
		{name: "thirty day month", now: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 4, 30, 9, 0, 0, 0, time.UTC)},
		{name: "march 31 passed rolls to april 30", now: time.Date(2025, 3, 31, 9, 0, 1, 0, time.UTC),
			want: time.Date(2025, 4, 30, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Next(p, time.UTC, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
			if d := Delay(p, time.UTC, tt.now); d != tt.want.Sub(tt.now) {
				t.Fatalf("Delay = %v, want %v", d, tt.want.Sub(tt.now))
			}
		})
	}
}

func TestNextProperties(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Helsinki")
	tod := TimeOfDay{Hour: 7, Minute: 15, Second: 30}
	periods := []Period{
		Daily{Time: tod},
		Weekly{Time: tod, Weekday: time.Sunday},
		Weekly{Time: tod, Weekday: time.Wednesday},
		Monthly{Time: tod, Day: 1},
		Monthly{Time: tod, Day: 17},
		Monthly{Time: tod, Day: 31},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	for _, p := range periods {
		for now := start; now.Before(start.AddDate(1, 0, 0)); now = now.Add(5*time.Hour + 7*time.Minute) {
			next := Next(p, loc, now)
			d := Delay(p, loc, now)
			if d < 0 {
				t.Fatalf("%s at %v: negative delay %v", p.Describe(), now, d)
			}
			if next.Hour() != tod.Hour || next.Minute() != tod.Minute || next.Second() != tod.Second {
				t.Fatalf("%s at %v: next %v has wrong time of day", p.Describe(), now, next)
			}
			switch p := p.(type) {
			case Daily:
				if d >= 25*time.Hour {
					t.Fatalf("%s at %v: delay %v too long", p.Describe(), now, d)
				}
			case Weekly:
				if next.Weekday() != p.Weekday {
					t.Fatalf("%s at %v: next %v on %v", p.Describe(), now, next, next.Weekday())
				}
				if d >= 7*24*time.Hour+time.Hour {
					t.Fatalf("%s at %v: delay %v too long", p.Describe(), now, d)
				}
			case Monthly:
				want := p.Day
				if n := DaysIn(next.Year(), next.Month()); want > n {
					want = n
				}
				if next.Day() != want {
					t.Fatalf("%s at %v: next %v has day %d, want %d", p.Describe(), now, next, next.Day(), want)
				}
				if d >= 62*24*time.Hour {
					t.Fatalf("%s at %v: delay %v too long", p.Describe(), now, d)
				}
			}
		}
	}
}

func TestScheduleMatchesCron(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Helsinki")
	tests := []struct {
		name   string
		period Period
		spec   string
	}{
		{name: "daily", period: Daily{Time: TimeOfDay{Hour: 9, Minute: 30}}, spec: "CRON_TZ=Europe/Helsinki 30 9 * * *"},
		{name: "weekly", period: Weekly{Time: TimeOfDay{Hour: 18}, Weekday: time.Friday}, spec: "CRON_TZ=Europe/Helsinki 0 18 * * 5"},
		{name: "monthly", period: Monthly{Time: TimeOfDay{Hour: 6, Minute: 5}, Day: 15}, spec: "CRON_TZ=Europe/Helsinki 5 6 15 * *"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			want, err := cron.ParseStandard(tt.spec)
			if err != nil {
				t.Fatalf("ParseStandard(%q): %v", tt.spec, err)
			}
			got := Schedule{Period: tt.period, Location: loc}
			at := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
			for i := 0; i < 40; i++ {
				g, w := got.Next(at), want.Next(at)
				if !g.Equal(w) {
					t.Fatalf("Next(%v) = %v, cron says %v", at, g, w)
				}
				at = g
			}
		})
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	got := Upcoming(Daily{Time: TimeOfDay{Hour: 9}}, time.UTC, now, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, ts := range got {
		want := now.AddDate(0, 0, i)
		if !ts.Equal(want) {
			t.Fatalf("occurrence %d = %v, want %v", i, ts, want)
		}
	}
	if Upcoming(Daily{}, time.UTC, now, 0) != nil {
		t.Fatal("expected nil for n=0")
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]time.Weekday{
		"FRIDAY": time.Friday,
		"friday": time.Friday,
		"Fri":    time.Friday,
		" sun ":  time.Sunday,
		"Monday": time.Monday,
	} {
		got, err := ParseWeekday(in)
		if err != nil {
			t.Fatalf("ParseWeekday(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseWeekday(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Fatal("expected error for invalid weekday")
	}
}
