package crontool

import (
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	cases := []struct {
		opts BuildOptions
		want string
	}{
		{BuildOptions{Frequency: EveryMinute}, "* * * * *"},
		{BuildOptions{Frequency: EveryNMinutes, Interval: 15}, "*/15 * * * *"},
		{BuildOptions{Frequency: Hourly, Minute: 30}, "30 * * * *"},
		{BuildOptions{Frequency: EveryNHours, Minute: 5, Interval: 6}, "5 */6 * * *"},
		{BuildOptions{Frequency: Daily, Hour: 9}, "0 9 * * *"},
		{BuildOptions{Frequency: Weekly, Hour: 8, DayOfWeek: 1}, "0 8 * * 1"},
		{BuildOptions{Frequency: Monthly, DayOfMonth: 15}, "0 0 15 * *"},
		{BuildOptions{Frequency: Yearly, DayOfMonth: 25, Month: 12}, "0 0 25 12 *"},
		{BuildOptions{Frequency: Weekdays, Hour: 9}, "0 9 * * 1-5"},
		{BuildOptions{Frequency: Weekends, Hour: 10}, "0 10 * * 0,6"},
	}
	for _, tc := range cases {
		got, err := Build(tc.opts)
		if err != nil {
			t.Fatalf("build %+v: %v", tc.opts, err)
		}
		if got != tc.want {
			t.Fatalf("build %+v: want %q got %q", tc.opts, tc.want, got)
		}
		if err := Validate(got); err != nil {
			t.Fatalf("built expression %q does not validate: %v", got, err)
		}
	}
	if _, err := Build(BuildOptions{Frequency: Daily, Hour: 24}); err == nil {
		t.Fatalf("expected hour range error")
	}
}

func TestDescribe(t *testing.T) {
	cases := map[string]string{
		"* * * * *":   "Every minute",
		"*/5 * * * *": "Every 5 minutes, every day",
		"0 9 * * 1-5": "At 9:00 AM, on weekdays",
		"30 14 * * *": "At 2:30 PM, every day",
		"0 0 1 1 *":   "At 12:00 AM, on day 1 of the month, in January",
		"0 0 * * 1,3": "At 12:00 AM, on Monday, Wednesday",
		"0 */2 * * *": "Every 2 hours, every day",
		"not a cron":  "Invalid cron expression",
	}
	for expr, want := range cases {
		if got := Describe(expr); got != want {
			t.Fatalf("describe %q: want %q got %q", expr, want, got)
		}
	}
}

func TestNextRuns(t *testing.T) {
	from := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC) // Friday
	runs, err := NextRuns("0 9 * * 1-5", from, 3)
	if err != nil {
		t.Fatalf("next runs: %v", err)
	}
	want := []time.Time{
		time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
	}
	if len(runs) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(runs))
	}
	for i := range want {
		if !runs[i].Equal(want[i]) {
			t.Fatalf("run %d: want %v got %v", i, want[i], runs[i])
		}
	}
	if _, err := NextRuns("61 * * * *", from, 1); err == nil {
		t.Fatalf("expected invalid expression error")
	}
	if err := Validate("* * * *"); err == nil {
		t.Fatalf("expected field count error")
	}
}
