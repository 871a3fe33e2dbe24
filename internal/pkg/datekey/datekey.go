// Package datekey provides the canonical calendar-date identity used
// throughout the habit and battle engines. A Key is a timezone-naive
// YYYY-MM-DD string built from local wall-clock date fields, so two
// keys are equal exactly when they name the same local calendar day,
// and lexicographic order matches chronological order.
package datekey

import (
	"errors"
	"fmt"
	"time"
)

// Key is a calendar date in YYYY-MM-DD form.
type Key string

// Layout is the wire format of a Key.
const Layout = "2006-01-02"

// ErrInvalidKey is returned when a string does not parse as a Key.
var ErrInvalidKey = errors.New("invalid date key")

// FromTime builds a Key from t's local date fields in loc.
// The date fields are read in loc, never via a UTC round trip, so a
// key built near midnight names the day the user's clock shows.
func FromTime(t time.Time, loc *time.Location) Key {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Key(fmt.Sprintf("%04d-%02d-%02d", y, int(m), d))
}

// Parse validates s and returns it as a Key.
func Parse(s string) (Key, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	// time.Parse accepts some non-canonical spellings; require the
	// round trip to be exact so map keys stay unique.
	if t.Format(Layout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key(s), nil
}

// Time returns the midnight instant of k in loc.
func (k Key) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// String returns the YYYY-MM-DD form.
func (k Key) String() string { return string(k) }

// IsZero reports whether k is empty (no date set).
func (k Key) IsZero() bool { return k == "" }

// Compare returns -1, 0, or 1 as k is before, equal to, or after other.
// String comparison is chronological for this format.
func (k Key) Compare(other Key) int {
	switch {
	case k < other:
		return -1
	case k > other:
		return 1
	default:
		return 0
	}
}

// Before reports whether k is strictly earlier than other.
func (k Key) Before(other Key) bool { return k < other }

// After reports whether k is strictly later than other.
func (k Key) After(other Key) bool { return k > other }

// AddDays returns the key n calendar days after k (n may be negative).
func (k Key) AddDays(n int) Key {
	t := k.Time(time.UTC)
	return FromTime(t.AddDate(0, 0, n), time.UTC)
}

// Next returns the following calendar day.
func (k Key) Next() Key { return k.AddDays(1) }

// Prev returns the preceding calendar day.
func (k Key) Prev() Key { return k.AddDays(-1) }

// IsFuture reports whether k falls after the reference day. Comparison
// is at date-only granularity: time of day never matters.
func (k Key) IsFuture(today Key) bool { return k.After(today) }

// DaysUntil returns the number of calendar days from k to other
// (negative when other precedes k).
func (k Key) DaysUntil(other Key) int {
	a := k.Time(time.UTC)
	b := other.Time(time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Range returns the keys from start to end inclusive, in order.
// Returns nil when end precedes start.
func Range(start, end Key) []Key {
	if end.Before(start) {
		return nil
	}
	var keys []Key
	for k := start; !k.After(end); k = k.Next() {
		keys = append(keys, k)
	}
	return keys
}

// Today returns the key for the current local day. now is injectable
// so callers can pin "today" in tests.
func Today(now func() time.Time, loc *time.Location) Key {
	if now == nil {
		now = time.Now
	}
	return FromTime(now(), loc)
}
