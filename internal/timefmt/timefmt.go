// Package timefmt parses timestamps and renders them in common formats.
package timefmt

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrUnrecognized reports input that matches no supported timestamp form.
var ErrUnrecognized = errors.New("unrecognized timestamp")

var (
	unixSeconds = regexp.MustCompile(`^\d{10}$`)
	unixMillis  = regexp.MustCompile(`^\d{13}$`)
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon, 02-Jan-2006 15:04:05 MST",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Parse reads 10-digit unix seconds, 13-digit unix milliseconds or a date string.
// Strings without a zone are interpreted in loc.
func Parse(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrUnrecognized
	}
	if loc == nil {
		loc = time.Local
	}
	switch {
	case unixSeconds.MatchString(value):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).In(loc), nil
	case unixMillis.MatchString(value):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(n).In(loc), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, value)
}

// Field is one named rendering of a timestamp.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Formats renders t in every supported format. now anchors the relative field.
func Formats(t, now time.Time) []Field {
	utc := t.UTC()
	_, week := t.ISOWeek()
	return []Field{
		{"unix", strconv.FormatInt(t.Unix(), 10)},
		{"unixMs", strconv.FormatInt(t.UnixMilli(), 10)},
		{"iso8601", utc.Format("2006-01-02T15:04:05.000Z")},
		{"rfc2822", t.Format(time.RFC1123Z)},
		{"utc", utc.Format(http1123)},
		{"local", t.Format("2006-01-02 15:04:05 MST")},
		{"relative", humanize.RelTime(t, now, "ago", "from now")},
		{"date", t.Format("2006-01-02")},
		{"time", t.Format("15:04:05")},
		{"year", strconv.Itoa(t.Year())},
		{"month", fmt.Sprintf("%02d", int(t.Month()))},
		{"day", fmt.Sprintf("%02d", t.Day())},
		{"hours", fmt.Sprintf("%02d", t.Hour())},
		{"minutes", fmt.Sprintf("%02d", t.Minute())},
		{"seconds", fmt.Sprintf("%02d", t.Second())},
		{"dayOfWeek", t.Weekday().String()},
		{"dayOfYear", strconv.Itoa(t.YearDay())},
		{"weekOfYear", strconv.Itoa(week)},
		{"quarter", fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1)},
		{"sqlDateTime", t.Format("2006-01-02 15:04:05")},
		{"sqlDate", t.Format("2006-01-02")},
		{"sqlTime", t.Format("15:04:05")},
		{"httpHeader", utc.Format(http1123)},
		{"atom", t.Format(time.RFC3339)},
		{"cookie", utc.Format("Monday, 02-Jan-2006 15:04:05 GMT")},
		{"rss", t.Format(time.RFC1123Z)},
		{"w3c", t.Format(time.RFC3339)},
		{"excelSerial", strconv.FormatInt(ExcelSerial(t), 10)},
		{"julianDay", strconv.FormatInt(JulianDay(t), 10)},
	}
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

// ExcelSerial returns the spreadsheet day number (days since 1899-12-30).
func ExcelSerial(t time.Time) int64 {
	epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, t.Location())
	return int64(math.Floor(t.Sub(epoch).Hours() / 24))
}

// JulianDay returns the Julian day number of t's calendar date.
func JulianDay(t time.Time) int64 {
	month := int64(t.Month())
	a := (14 - month) / 12
	y := int64(t.Year()) + 4800 - a
	m := month + 12*a - 3
	return int64(t.Day()) + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// Lookup returns the value of a named field.
func Lookup(fields []Field, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
