// Package crontool builds, validates and explains five-field cron expressions.
package crontool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron"
)

// MaxRuns bounds NextRuns.
const MaxRuns = 50

var (
	months   = []string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"}
	weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
)

// Frequency selects a builder shape.
type Frequency string

const (
	EveryMinute   Frequency = "every-minute"
	EveryNMinutes Frequency = "every-n-minutes"
	Hourly        Frequency = "hourly"
	EveryNHours   Frequency = "every-n-hours"
	Daily         Frequency = "daily"
	Weekly        Frequency = "weekly"
	Monthly       Frequency = "monthly"
	Yearly        Frequency = "yearly"
	Weekdays      Frequency = "weekdays"
	Weekends      Frequency = "weekends"
)

// BuildOptions are the builder inputs; zero values mean midnight, Sunday, the 1st and January.
type BuildOptions struct {
	Frequency  Frequency `json:"frequency"`
	Minute     int       `json:"minute"`
	Hour       int       `json:"hour"`
	DayOfWeek  int       `json:"dayOfWeek"`
	DayOfMonth int       `json:"dayOfMonth"`
	Month      int       `json:"month"`
	Interval   int       `json:"interval"`
}

// Build renders a cron expression from builder options.
func Build(opts BuildOptions) (string, error) {
	dom := opts.DayOfMonth
	if dom == 0 {
		dom = 1
	}
	month := opts.Month
	if month == 0 {
		month = 1
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 1
	}
	switch {
	case opts.Minute < 0 || opts.Minute > 59:
		return "", fmt.Errorf("minute %d out of range", opts.Minute)
	case opts.Hour < 0 || opts.Hour > 23:
		return "", fmt.Errorf("hour %d out of range", opts.Hour)
	case opts.DayOfWeek < 0 || opts.DayOfWeek > 6:
		return "", fmt.Errorf("day of week %d out of range", opts.DayOfWeek)
	case dom < 1 || dom > 31:
		return "", fmt.Errorf("day of month %d out of range", dom)
	case month < 1 || month > 12:
		return "", fmt.Errorf("month %d out of range", month)
	}
	m, h := opts.Minute, opts.Hour
	switch opts.Frequency {
	case EveryMinute:
		return "* * * * *", nil
	case EveryNMinutes:
		if interval > 59 {
			return "", fmt.Errorf("minute interval %d out of range", interval)
		}
		return fmt.Sprintf("*/%d * * * *", interval), nil
	case Hourly:
		return fmt.Sprintf("%d * * * *", m), nil
	case EveryNHours:
		if interval > 23 {
			return "", fmt.Errorf("hour interval %d out of range", interval)
		}
		return fmt.Sprintf("%d */%d * * *", m, interval), nil
	case Daily, "":
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case Weekly:
		return fmt.Sprintf("%d %d * * %d", m, h, opts.DayOfWeek), nil
	case Monthly:
		return fmt.Sprintf("%d %d %d * *", m, h, dom), nil
	case Yearly:
		return fmt.Sprintf("%d %d %d %d *", m, h, dom, month), nil
	case Weekdays:
		return fmt.Sprintf("%d %d * * 1-5", m, h), nil
	case Weekends:
		return fmt.Sprintf("%d %d * * 0,6", m, h), nil
	}
	return "", fmt.Errorf("unknown frequency %q", opts.Frequency)
}

// Validate parses a five-field expression.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

func parse(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, errors.New("cron expression must have 5 fields")
	}
	schedule, err := cron.ParseStandard(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NextRuns returns the next n activation times after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	schedule, err := parse(expr)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 5
	}
	if n > MaxRuns {
		n = MaxRuns
	}
	runs := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		runs = append(runs, next)
	}
	return runs, nil
}

// Describe explains an expression in plain English.
func Describe(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return "Invalid cron expression"
	}
	min, hr, dom, mon, dow := parts[0], parts[1], parts[2], parts[3], parts[4]
	if min == "*" && hr == "*" && dom == "*" && mon == "*" && dow == "*" {
		return "Every minute"
	}
	var desc []string
	switch {
	case strings.HasPrefix(min, "*/"):
		desc = append(desc, "Every "+min[2:]+" minutes")
	case min == "*":
		desc = append(desc, "Every minute")
	}
	switch {
	case strings.HasPrefix(hr, "*/"):
		desc = append(desc, "every "+hr[2:]+" hours")
	case hr != "*":
		desc = append(desc, "at "+clock(hr, min))
	case !strings.HasPrefix(min, "*"):
		desc = append(desc, "at minute "+min+" past every hour")
	}
	if dom != "*" {
		desc = append(desc, "on day "+dom+" of the month")
	}
	if mon != "*" {
		desc = append(desc, "in "+nameList(mon, months, 1))
	}
	switch {
	case dow == "1-5":
		desc = append(desc, "on weekdays")
	case dow == "0,6" || dow == "6,0":
		desc = append(desc, "on weekends")
	case dow != "*":
		desc = append(desc, "on "+nameList(dow, weekdays, 0))
	case dom == "*" && mon == "*":
		desc = append(desc, "every day")
	}
	out := strings.Join(desc, ", ")
	if out == "" {
		return expr
	}
	return strings.ToUpper(out[:1]) + out[1:]
}

func clock(hr, min string) string {
	h, err := strconv.Atoi(hr)
	if err != nil {
		return hr + ":" + min
	}
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	display := h
	switch {
	case h == 0:
		display = 12
	case h > 12:
		display = h - 12
	}
	m := "00"
	if min != "*" {
		if n, err := strconv.Atoi(min); err == nil {
			m = fmt.Sprintf("%02d", n)
		} else {
			m = min
		}
	}
	return fmt.Sprintf("%d:%s %s", display, m, period)
}

func nameList(field string, names []string, offset int) string {
	items := strings.Split(field, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		idx := n - offset
		if err != nil || idx < 0 || idx >= len(names) {
			if offset == 0 && n == 7 {
				out = append(out, names[0])
				continue
			}
			out = append(out, item)
			continue
		}
		out = append(out, names[idx])
	}
	return strings.Join(out, ", ")
}

// Preset is a named common schedule.
type Preset struct {
	Label      string `json:"label"`
	Expression string `json:"expression"`
}

// Presets lists common schedules.
func Presets() []Preset {
	return []Preset{
		{Label: "Every minute", Expression: "* * * * *"},
		{Label: "Every hour", Expression: "0 * * * *"},
		{Label: "Daily at midnight", Expression: "0 0 * * *"},
		{Label: "Daily at noon", Expression: "0 12 * * *"},
		{Label: "Weekdays at 9 AM", Expression: "0 9 * * 1-5"},
		{Label: "Weekly on Monday", Expression: "0 0 * * 1"},
	}
}
