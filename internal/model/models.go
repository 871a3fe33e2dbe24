// Package model defines the data models for the habit tracker.
package model

import (
	"time"

	"rehabit-server/internal/pkg/datekey"
)

// User represents a registered account. Authentication lives upstream;
// the engine only needs identity and the username used for opponent
// lookup when a battle is created.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Completion statuses recorded in a habit's history. Absent dates mean
// "no entry", which is distinct from an explicit skip.
const (
	StatusDone    = "done"
	StatusPartial = "partial"
	StatusSkipped = "skipped"

	// StatusCompleted is a legacy synonym for done still present in
	// old history entries.
	StatusCompleted = "completed"
)

// IsDone reports whether a history status counts as a completion.
func IsDone(status string) bool {
	return status == StatusDone || status == StatusCompleted
}

// ValidStatus reports whether status is one of the recordable values.
func ValidStatus(status string) bool {
	switch status {
	case StatusDone, StatusPartial, StatusSkipped, StatusCompleted:
		return true
	}
	return false
}

// Habit represents a tracked behavior with a sparse per-date
// completion log.
type Habit struct {
	ID          string `db:"id" json:"id"`
	UserID      string `db:"user_id" json:"userId"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category"`
	// Frequency is informational only; the calculator treats every
	// habit as daily.
	Frequency string      `db:"frequency" json:"frequency"`
	Color     string      `db:"color" json:"color"`
	StartDate datekey.Key `db:"start_date" json:"startDate"`
	// EndDate is empty for open-ended habits.
	EndDate datekey.Key `db:"end_date" json:"endDate,omitempty"`
	// BattleID links a companion habit back to its battle. Empty for
	// ordinary habits. The link is one-directional; the battle does
	// not reference habit ids.
	BattleID string `db:"battle_id" json:"battleId,omitempty"`
	// History maps DateKey -> status.
	History map[datekey.Key]string `db:"history" json:"history"`
	// Notes maps DateKey -> free text, independent of History.
	Notes     map[datekey.Key]string `db:"notes" json:"notes"`
	CreatedAt time.Time              `db:"created_at" json:"createdAt"`
}

// ActiveOn reports whether the habit's start/end window contains day.
// This is the single gate for whether a date counts toward totals,
// streaks, or display.
func (h *Habit) ActiveOn(day datekey.Key) bool {
	if day.Before(h.StartDate) {
		return false
	}
	if !h.EndDate.IsZero() && day.After(h.EndDate) {
		return false
	}
	return true
}

// StatusOn returns the recorded status for day, or "" when absent.
func (h *Habit) StatusOn(day datekey.Key) string {
	return h.History[day]
}

// DoneOn reports whether the habit was completed on day.
func (h *Habit) DoneOn(day datekey.Key) bool {
	return IsDone(h.History[day])
}

// Battle statuses.
const (
	BattleActive    = "active"
	BattleCompleted = "completed"
)

// StreakEntry is one row of a participant's append-only audit log.
// There is at most one entry per participant per calendar day.
type StreakEntry struct {
	Day       datekey.Key `db:"day" json:"day"`
	Completed bool        `db:"completed" json:"completed"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

// BattleParticipant holds one side's streak and point state.
type BattleParticipant struct {
	UserID   string `db:"user_id" json:"userId"`
	Username string `db:"username" json:"username"`
	// CurrentStreak counts consecutive completed days; a skip resets
	// it to zero rather than decrementing.
	CurrentStreak int `db:"current_streak" json:"currentStreak"`
	TotalPoints   int `db:"total_points" json:"totalPoints"`
	// LastUpdate is the instant of the most recent daily transition;
	// nil before the first one.
	LastUpdate *time.Time `db:"last_update" json:"lastUpdate"`
	// LastUpdateDay is LastUpdate's calendar day. It is the value the
	// once-per-day guard compares against, both in SQL and in memory.
	LastUpdateDay datekey.Key `db:"last_update_day" json:"lastUpdateDay,omitempty"`
	StreakHistory []StreakEntry `json:"streakHistory"`
}

// UpdatedOn reports whether the participant already took today's
// transition.
func (p *BattleParticipant) UpdatedOn(day datekey.Key) bool {
	return p.LastUpdateDay == day
}

// EntryOn returns the audit-log entry for day, or nil.
func (p *BattleParticipant) EntryOn(day datekey.Key) *StreakEntry {
	for i := range p.StreakHistory {
		if p.StreakHistory[i].Day == day {
			return &p.StreakHistory[i]
		}
	}
	return nil
}

// Battle represents a timed pairwise streak competition.
type Battle struct {
	ID string `db:"id" json:"id"`
	// HabitLabel is free text describing the tracked behavior; it is
	// not a habit id. Companion habits link back via Habit.BattleID.
	HabitLabel string      `db:"habit_label" json:"habitLabel"`
	Duration   int         `db:"duration" json:"duration"`
	Stake      int         `db:"stake" json:"stake"`
	Status     string      `db:"status" json:"status"`
	StartDate  datekey.Key `db:"start_date" json:"startDate"`
	EndDate    datekey.Key `db:"end_date" json:"endDate"`
	CreatedBy  string      `db:"created_by" json:"createdBy"`
	// WinnerID is set at settlement, which is an unimplemented
	// extension point.
	WinnerID     string              `db:"winner_id" json:"winnerId,omitempty"`
	Participants []BattleParticipant `json:"participants"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
}

// Participant returns the participant entry for userID, or nil when
// the user is not part of the battle.
func (b *Battle) Participant(userID string) *BattleParticipant {
	for i := range b.Participants {
		if b.Participants[i].UserID == userID {
			return &b.Participants[i]
		}
	}
	return nil
}

// Opponent returns the other participant, or nil when userID is not a
// participant or the battle is malformed.
func (b *Battle) Opponent(userID string) *BattleParticipant {
	if b.Participant(userID) == nil {
		return nil
	}
	for i := range b.Participants {
		if b.Participants[i].UserID != userID {
			return &b.Participants[i]
		}
	}
	return nil
}

// Notification types.
const (
	NotificationNudge = "nudge"
)

// Notification is a one-way message produced by battle actions and
// consumed by a separate read surface.
type Notification struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	Type       string    `db:"type" json:"type"`
	Title      string    `db:"title" json:"title"`
	Message    string    `db:"message" json:"message"`
	BattleID   string    `db:"battle_id" json:"battleId,omitempty"`
	FromUserID string    `db:"from_user_id" json:"fromUserId,omitempty"`
	Read       bool      `db:"read" json:"read"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
