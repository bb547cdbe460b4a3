// Package dataset provides the tabular collision-record model, the parsers that produce it
// and the date-range filter applied after load.
package dataset

import (
	"strings"
	"time"
)

// Column names the acquisition layer relies on
const (
	ColumnCrashDate = "crash_date"
	ColumnCrashTime = "crash_time"
	// ColumnCrashDateTime is the derived column synthesized from crash_date and crash_time
	ColumnCrashDateTime = "crash_datetime"
)

//nolint:gochecknoglobals // Fixed layout tables
var (
	dateLayouts = []string{
		"2006-01-02",
		"01/02/2006",
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	timeLayouts = []string{
		"15:04",
		"15:04:05",
		"3:04 PM",
		"3:04PM",
	}
)

// Record is a single collision row. Fields holds the raw column values as read from the
// source; CrashTime is derived and nil when crash_date or crash_time cannot be parsed.
type Record struct {
	Fields    map[string]string `json:"fields"`
	CrashTime *time.Time        `json:"crash_datetime,omitempty"`
}

// Dataset is an ordered set of records sharing one header
type Dataset struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Len returns the number of records
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}

	return len(d.Records)
}

// Get returns the raw value of a column for the record
func (r Record) Get(column string) string {
	return r.Fields[column]
}

// Day returns the calendar day of the crash. It prefers the derived crash_datetime and falls
// back to the raw crash_date field when the time component is unusable.
func (r Record) Day() (time.Time, bool) {
	if r.CrashTime != nil {
		return truncateDay(*r.CrashTime), true
	}

	d, ok := ParseDate(r.Fields[ColumnCrashDate])
	if !ok {
		return time.Time{}, false
	}

	return d, true
}

// Span returns the earliest and latest crash days in the dataset. ok is false when no record
// carries a parseable date.
func (d *Dataset) Span() (earliest, latest time.Time, ok bool) {
	if d == nil {
		return time.Time{}, time.Time{}, false
	}

	for _, r := range d.Records {
		day, has := r.Day()
		if !has {
			continue
		}

		if !ok || day.Before(earliest) {
			earliest = day
		}

		if !ok || day.After(latest) {
			latest = day
		}

		ok = true
	}

	return earliest, latest, ok
}

// Head returns up to n records from the front of the dataset
func (d *Dataset) Head(n int) []Record {
	if d == nil || n <= 0 {
		return []Record{}
	}

	if n > len(d.Records) {
		n = len(d.Records)
	}

	out := make([]Record, n)
	copy(out, d.Records[:n])

	return out
}

// NewRecord builds a record from raw fields and derives crash_datetime
func NewRecord(fields map[string]string) Record {
	r := Record{Fields: fields}
	if t, ok := CombineDateTime(fields[ColumnCrashDate], fields[ColumnCrashTime]); ok {
		r.CrashTime = &t
	}

	return r
}

// ParseDate parses a crash_date value in any of the layouts published by the source
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return truncateDay(t), true
		}
	}

	return time.Time{}, false
}

// ParseClock parses a crash_time value and returns the offset from midnight
func ParseClock(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}

		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second, true
	}

	return 0, false
}

// CombineDateTime merges a crash_date and crash_time into one instant. Both must parse.
func CombineDateTime(date, clock string) (time.Time, bool) {
	day, ok := ParseDate(date)
	if !ok {
		return time.Time{}, false
	}

	offset, ok := ParseClock(clock)
	if !ok {
		return time.Time{}, false
	}

	return day.Add(offset), true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
