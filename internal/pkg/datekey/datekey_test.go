package datekey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFromTime_LocalFields(t *testing.T) {
	// 2024-03-10 23:30 in UTC+13 is still 2024-03-10 locally even
	// though the UTC instant is already 2024-03-10T10:30Z of the same
	// day; the reverse case is the one that bites: a local time late
	// in the evening must not roll forward through a UTC conversion.
	loc := time.FixedZone("UTC+13", 13*3600)
	late := time.Date(2024, 3, 10, 23, 30, 0, 0, loc)
	assert.Equal(t, Key("2024-03-10"), FromTime(late, loc))

	// Same instant viewed in UTC is the previous calendar day.
	assert.Equal(t, Key("2024-03-10"), FromTime(late.UTC(), loc))
	assert.Equal(t, Key("2024-03-10"), FromTime(late, loc))

	west := time.FixedZone("UTC-8", -8*3600)
	early := time.Date(2024, 3, 10, 0, 15, 0, 0, west)
	assert.Equal(t, Key("2024-03-10"), FromTime(early, west))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-01-10", false},
		{"2024-12-31", false},
		{"2024-1-10", true},
		{"2024-01-32", true},
		{"not-a-date", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in, k.String())
		})
	}
}

func TestCompareAndOrdering(t *testing.T) {
	a := Key("2024-01-09")
	b := Key("2024-01-10")

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, b.IsFuture(a))
	assert.False(t, a.IsFuture(a))
}

func TestAddDays(t *testing.T) {
	tests := []struct {
		name string
		k    Key
		n    int
		want Key
	}{
		{"simple", "2024-06-04", 1, "2024-06-05"},
		{"backward", "2024-06-04", -3, "2024-06-01"},
		{"month boundary", "2024-01-31", 1, "2024-02-01"},
		{"leap day", "2024-02-28", 1, "2024-02-29"},
		{"non-leap year", "2023-02-28", 1, "2023-03-01"},
		{"year boundary", "2023-12-31", 1, "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.k.AddDays(tt.n))
		})
	}
}

func TestRange(t *testing.T) {
	keys := Range("2024-03-09", "2024-03-15")
	require.Len(t, keys, 7)
	assert.Equal(t, Key("2024-03-09"), keys[0])
	assert.Equal(t, Key("2024-03-15"), keys[6])

	assert.Nil(t, Range("2024-03-15", "2024-03-09"))
	assert.Equal(t, []Key{"2024-03-09"}, Range("2024-03-09", "2024-03-09"))
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 7, Key("2024-03-08").DaysUntil("2024-03-15"))
	assert.Equal(t, -7, Key("2024-03-15").DaysUntil("2024-03-08"))
	assert.Equal(t, 0, Key("2024-03-15").DaysUntil("2024-03-15"))
}

func TestToday_PinnedClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	now := func() time.Time {
		return time.Date(2024, 3, 15, 23, 45, 0, 0, loc)
	}
	assert.Equal(t, Key("2024-03-15"), Today(now, loc))
}

// TestOrderingMatchesChronologyProperty checks that lexicographic
// comparison of keys agrees with comparison of the underlying dates
// for any pair of dates.
func TestOrderingMatchesChronologyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		d1 := rapid.IntRange(0, 365*60).Draw(t, "d1")
		d2 := rapid.IntRange(0, 365*60).Draw(t, "d2")

		t1 := base.AddDate(0, 0, d1)
		t2 := base.AddDate(0, 0, d2)
		k1 := FromTime(t1, time.UTC)
		k2 := FromTime(t2, time.UTC)

		switch {
		case t1.Before(t2):
			if !k1.Before(k2) {
				t.Fatalf("%s not before %s", k1, k2)
			}
		case t2.Before(t1):
			if !k2.Before(k1) {
				t.Fatalf("%s not before %s", k2, k1)
			}
		default:
			if k1 != k2 {
				t.Fatalf("same day produced distinct keys %s and %s", k1, k2)
			}
		}
	})
}

// TestAddDaysRoundTripProperty checks AddDays(n).AddDays(-n) is the
// identity and that one key per day is produced.
func TestAddDaysRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)
		off := rapid.IntRange(-3650, 3650).Draw(t, "off")
		n := rapid.IntRange(-400, 400).Draw(t, "n")

		k := FromTime(base.AddDate(0, 0, off), time.UTC)
		moved := k.AddDays(n)

		if got := moved.AddDays(-n); got != k {
			t.Fatalf("round trip %s +%d -%d = %s", k, n, n, got)
		}
		if got := k.DaysUntil(moved); got != n {
			t.Fatalf("DaysUntil(%s, %s) = %d, want %d", k, moved, got, n)
		}
	})
}
