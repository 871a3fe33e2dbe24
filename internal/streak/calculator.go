// Package streak derives completion metrics from habit histories.
// Everything here is a pure function over a set of habits and a date
// range: no mutation, no I/O, no ambient clock. Absent data counts as
// zero rather than an error, so views can always render.
package streak

import (
	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
)

// DefaultMaxLookback caps the backward walk of CurrentStreak so it
// terminates even when history data is corrupt.
const DefaultMaxLookback = 1000

// Heat levels for the completion heatmap.
const (
	HeatEmpty  = "empty"
	HeatLow    = "low"
	HeatMedium = "medium"
	HeatHigh   = "high"
)

// StatusUndone is reported for an active habit with no history entry
// on the requested day.
const StatusUndone = "undone"

// HabitDay is one habit's standing on a particular day.
type HabitDay struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Color    string `json:"color"`
	Status   string `json:"status"`
	Done     bool   `json:"done"`
}

// DayStats summarizes one day across a habit set. Total counts only
// habits active on the day, never the full habit list.
type DayStats struct {
	Day    datekey.Key `json:"date"`
	Total  int         `json:"total"`
	Done   int         `json:"done"`
	Habits []HabitDay  `json:"habits"`
}

// Percentage returns done/total as a percentage, 0 when total is 0.
func (s DayStats) Percentage() float64 {
	return Percentage(s.Done, s.Total)
}

// Percentage returns done/total*100, defined as 0 when total is 0.
func Percentage(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// FilterActive returns the habits whose start/end window contains day.
func FilterActive(habits []*model.Habit, day datekey.Key) []*model.Habit {
	var active []*model.Habit
	for _, h := range habits {
		if h.ActiveOn(day) {
			active = append(active, h)
		}
	}
	return active
}

// CompletionForDate computes the day's completion stats. Habits not
// active on the day are excluded from the total, not just from the
// listing.
func CompletionForDate(habits []*model.Habit, day datekey.Key) DayStats {
	stats := DayStats{Day: day}
	for _, h := range habits {
		if !h.ActiveOn(day) {
			continue
		}
		status := h.StatusOn(day)
		done := model.IsDone(status)
		if status == "" {
			status = StatusUndone
		}
		stats.Total++
		if done {
			stats.Done++
		}
		stats.Habits = append(stats.Habits, HabitDay{
			ID:       h.ID,
			Name:     h.Name,
			Category: h.Category,
			Color:    h.Color,
			Status:   status,
			Done:     done,
		})
	}
	return stats
}

// CurrentStreak counts consecutive days, walking backward from
// reference, on which at least one active habit was completed. The
// reference day itself gets grace: if it has no completions yet the
// walk starts from the day before, so an unmarked morning does not
// zero an ongoing streak. A day with no active habits breaks the
// streak like an explicit miss.
//
// maxLookback bounds the walk; pass 0 for DefaultMaxLookback.
func CurrentStreak(habits []*model.Habit, reference datekey.Key, maxLookback int) int {
	if len(habits) == 0 {
		return 0
	}
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}

	// An empty earliest bound leaves the cap as the only stop.
	earliest := earliestStart(habits)

	streak := 0
	day := reference
	for streak < maxLookback && !day.Before(earliest) {
		if CompletionForDate(habits, day).Done == 0 {
			if streak == 0 && day == reference {
				day = day.Prev()
				continue
			}
			break
		}
		streak++
		day = day.Prev()
	}
	return streak
}

// LongestStreak scans [start, end] once and returns the longest run of
// consecutive days with at least one completion.
func LongestStreak(habits []*model.Habit, start, end datekey.Key) int {
	longest, run := 0, 0
	for day := start; !day.After(end); day = day.Next() {
		if CompletionForDate(habits, day).Done > 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// DayProgress is one point of a trailing-series view.
type DayProgress struct {
	Day        datekey.Key `json:"date"`
	Done       int         `json:"done"`
	Total      int         `json:"total"`
	Percentage float64     `json:"percentage"`
}

// Series returns the trailing n-day view ending at end, inclusive,
// oldest first. It is parameterized by end rather than "now" so
// historical weeks render the same as the current one.
func Series(habits []*model.Habit, end datekey.Key, n int) []DayProgress {
	if n <= 0 {
		return nil
	}
	series := make([]DayProgress, 0, n)
	for day := end.AddDays(-(n - 1)); !day.After(end); day = day.Next() {
		stats := CompletionForDate(habits, day)
		series = append(series, DayProgress{
			Day:        day,
			Done:       stats.Done,
			Total:      stats.Total,
			Percentage: stats.Percentage(),
		})
	}
	return series
}

// WeeklySeries is the seven-day trailing view used by dashboards.
func WeeklySeries(habits []*model.Habit, end datekey.Key) []DayProgress {
	return Series(habits, end, 7)
}

// HeatLevel buckets a day's completion count for heatmap display.
func HeatLevel(done int) string {
	switch {
	case done <= 0:
		return HeatEmpty
	case done == 1:
		return HeatLow
	case done == 2:
		return HeatMedium
	default:
		return HeatHigh
	}
}

// HeatCell is one day of the heatmap view.
type HeatCell struct {
	Day   datekey.Key `json:"date"`
	Done  int         `json:"done"`
	Level string      `json:"level"`
}

// Heatmap returns per-day completion intensity over [start, end].
func Heatmap(habits []*model.Habit, start, end datekey.Key) []HeatCell {
	var cells []HeatCell
	for day := start; !day.After(end); day = day.Next() {
		done := CompletionForDate(habits, day).Done
		cells = append(cells, HeatCell{Day: day, Done: done, Level: HeatLevel(done)})
	}
	return cells
}

func earliestStart(habits []*model.Habit) datekey.Key {
	var earliest datekey.Key
	for _, h := range habits {
		if h.StartDate.IsZero() {
			continue
		}
		if earliest.IsZero() || h.StartDate.Before(earliest) {
			earliest = h.StartDate
		}
	}
	return earliest
}
