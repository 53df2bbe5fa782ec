// Package timefmt holds the canonical string encodings used for stored and
// displayed timestamps. Readers parse stored values back with the exact
// layouts the writer used, so these must not change once data exists.
package timefmt

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NotAvailable is rendered in place of values that are missing or unparsable.
const NotAvailable = "n/a"

// Layouts. Note the '.' between minutes and seconds and the ',' before
// the microseconds: both are part of the persisted format.
const (
	Date       = "2006-01-02"
	Time       = "15:04.05"
	TimeMS     = "15:04.05,000000"
	DateTime   = Date + " " + Time
	DateTimeMS = Date + " " + TimeMS
)

// Format renders t with one of the layouts above.
func Format(layout string, t time.Time) string {
	return t.Format(layout)
}

// Week renders the ISO year and ISO week of t as YYYY-WW.
func Week(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-%02d", year, week)
}

// WeekDir returns the ISO year and zero-padded ISO week as separate path
// segments.
func WeekDir(t time.Time) (string, string) {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", week)
}

// Parse reads s with layout in the local time zone, which is the zone the
// writer stamps records in.
func Parse(layout, s string) (time.Time, error) {
	return time.ParseInLocation(layout, s, time.Local)
}

// ParseStored joins a stored date and time column pair and parses them.
func ParseStored(date, clock string) (time.Time, error) {
	return Parse(DateTimeMS, date+" "+clock)
}

// Elapsed renders a duration as "1w 2d 3h 4m 5s" with zero-valued leading
// units omitted. With includeMS the millisecond part is appended.
// The sign of d is ignored.
func Elapsed(d time.Duration, includeMS bool) string {
	if d < 0 {
		d = -d
	}

	var parts []string
	if includeMS {
		parts = append(parts, fmt.Sprintf("%dms", d.Milliseconds()%1000))
	}

	units := []struct {
		name   string
		factor float64
	}{
		{"s", 60}, {"m", 60}, {"h", 24}, {"d", 7}, {"w", 0},
	}

	r := math.Floor(d.Seconds())
	for _, u := range units {
		if r <= 0 {
			break
		}
		var v float64
		if u.factor == 0 {
			v, r = r, 0
		} else {
			q := math.Floor(r / u.factor)
			v, r = r-q*u.factor, q
		}
		parts = append(parts, fmt.Sprintf("%.0f%s", v, u.name))
	}

	if len(parts) == 0 || (includeMS && len(parts) == 1 && d < time.Second) {
		if includeMS {
			return "0s " + parts[0]
		}
		return "0s"
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}

// Between renders the distance between two instants regardless of order.
func Between(a, b time.Time, includeMS bool) string {
	return Elapsed(b.Sub(a), includeMS)
}

// Percentage renders count/total as "12.50%", or NotAvailable when total is 0.
func Percentage(count, total int) string {
	if total == 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%3.2f%%", 100.0*float64(count)/float64(total))
}
