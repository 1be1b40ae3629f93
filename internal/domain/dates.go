package domain

import (
	"fmt"
	"time"
)

// WallDateFormat is the storage format for date-only fields. Wall dates are
// interpreted in the system's configured timezone; instants are stored as
// Unix seconds in UTC.
const WallDateFormat = "2006-01-02"

// ParseWallDate parses a YYYY-MM-DD wall date in the given location.
func ParseWallDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(WallDateFormat, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatWallDate renders a time as a YYYY-MM-DD wall date.
func FormatWallDate(t time.Time) string {
	return t.Format(WallDateFormat)
}

// DaysBetween returns the whole calendar days from a to b (b - a), truncated
// toward zero. Both are treated as midnights of their wall dates.
func DaysBetween(a, b time.Time) int {
	aMid := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location())
	bMid := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	return int(bMid.Sub(aMid).Hours() / 24)
}

// CeilDiv is integer division rounding up, for whole-period counts.
func CeilDiv(n, div int) int {
	if div <= 0 {
		return n
	}
	return (n + div - 1) / div
}
