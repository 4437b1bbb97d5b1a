package domain

import (
	"fmt"
	"strings"
	"time"
)

const maxReportSpan = 366 * 24 * time.Hour

// ParseDateRange turns inclusive YYYY-MM-DD bounds into a half-open UTC range.
// Empty bounds default to the day of now.
func ParseDateRange(fromDate string, toDate string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := strings.TrimSpace(fromDate); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidRequest)
		}
		from = parsed.UTC()
	}
	last := from
	if v := strings.TrimSpace(toDate); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidRequest)
		}
		last = parsed.UTC()
	}
	if last.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", ErrInvalidRequest)
	}
	if last.Sub(from) > maxReportSpan {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds one year", ErrInvalidRequest)
	}
	return from, last.Add(24 * time.Hour), nil
}
