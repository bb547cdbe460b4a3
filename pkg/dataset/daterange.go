package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout accepted for date-range bounds
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDateRange is returned when a range has its start after its end
	ErrInvalidDateRange = errors.New("invalid date range")
)

// DateRange is an inclusive day range. Either bound may be open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ParseDateRange builds a range from YYYY-MM-DD strings. Empty strings leave the bound open;
// two empty strings yield a nil range.
func ParseDateRange(start, end string) (*DateRange, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start == "" && end == "" {
		return nil, nil //nolint:nilnil // No range requested
	}

	r := &DateRange{}

	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return nil, fmt.Errorf("%w: start %q: %w", ErrInvalidDateRange, start, err)
		}

		r.Start = &t
	}

	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return nil, fmt.Errorf("%w: end %q: %w", ErrInvalidDateRange, end, err)
		}

		r.End = &t
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// Validate checks that start does not come after end
func (r *DateRange) Validate() error {
	if r == nil || r.Start == nil || r.End == nil {
		return nil
	}

	if truncateDay(*r.Start).After(truncateDay(*r.End)) {
		return fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidDateRange, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}

	return nil
}

// Contains reports whether day falls inside the range
func (r *DateRange) Contains(day time.Time) bool {
	if r == nil {
		return true
	}

	day = truncateDay(day)

	if r.Start != nil && day.Before(truncateDay(*r.Start)) {
		return false
	}

	if r.End != nil && day.After(truncateDay(*r.End)) {
		return false
	}

	return true
}

// Filter returns a new dataset holding only the records whose crash day is within the range.
// Records without a parseable date are dropped. A nil range returns the dataset unchanged.
func (r *DateRange) Filter(ds *Dataset) *Dataset {
	if r == nil || ds == nil {
		return ds
	}

	out := &Dataset{
		Columns: ds.Columns,
		Records: make([]Record, 0, len(ds.Records)),
	}

	for _, rec := range ds.Records {
		day, ok := rec.Day()
		if !ok {
			continue
		}

		if r.Contains(day) {
			out.Records = append(out.Records, rec)
		}
	}

	return out
}

// String renders the range for logs
func (r *DateRange) String() string {
	if r == nil {
		return "all"
	}

	bound := func(t *time.Time) string {
		if t == nil {
			return "*"
		}
		return t.Format(DateLayout)
	}

	return bound(r.Start) + ".." + bound(r.End)
}
