// Package battle implements the participant state machine for streak
// battles. The rules are pure functions over participant state; the
// repository layer is responsible for making their application atomic.
//
// Each participant takes at most one streak transition per calendar
// day. A completed day increments the streak and awards points; a
// skipped day resets the streak and awards nothing. Once a day's
// transition has been taken, the only permitted change for that day is
// a correction, which amends the recorded outcome without replaying
// the streak arithmetic.
package battle

import (
	"errors"
	"time"

	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
)

// Default scoring values, overridable via config.
const (
	DefaultCompletionPoints = 10
	DefaultDisplayBonus     = 5
)

// Errors returned by the state machine.
var (
	// ErrAlreadyUpdated signals that the participant has taken today's
	// transition. The direct mark action surfaces this to the caller;
	// the reconciler downgrades it to a correction instead.
	ErrAlreadyUpdated = errors.New("streak already updated for today")

	// ErrNoEntryForDay signals a correction for a day with no recorded
	// transition.
	ErrNoEntryForDay = errors.New("no streak entry recorded for day")
)

// Rules holds the scoring parameters.
type Rules struct {
	CompletionPoints int
	DisplayBonus     int
}

// DefaultRules returns the standard scoring.
func DefaultRules() Rules {
	return Rules{
		CompletionPoints: DefaultCompletionPoints,
		DisplayBonus:     DefaultDisplayBonus,
	}
}

// Apply takes the daily transition for p on day: streak and points on
// completion, streak reset on a skip, and one audit-log entry either
// way. Returns ErrAlreadyUpdated when day's transition was already
// taken.
func (r Rules) Apply(p *model.BattleParticipant, day datekey.Key, completed bool, now time.Time) error {
	if p.UpdatedOn(day) {
		return ErrAlreadyUpdated
	}

	if completed {
		p.CurrentStreak++
		p.TotalPoints += r.CompletionPoints
	} else {
		p.CurrentStreak = 0
	}

	p.LastUpdate = &now
	p.LastUpdateDay = day
	p.StreakHistory = append(p.StreakHistory, model.StreakEntry{
		Day:       day,
		Completed: completed,
		CreatedAt: now,
	})
	return nil
}

// Amend corrects day's already-recorded outcome. Points are awarded
// only when the flag flips from not-completed to completed, so
// repeating the same correction is idempotent and points are never
// clawed back. The streak count is left alone: it reflects the
// transition that was taken, and retroactive streak recomputation is
// out of scope.
//
// Returns the points delta applied (zero or CompletionPoints).
func (r Rules) Amend(p *model.BattleParticipant, day datekey.Key, completed bool) (int, error) {
	entry := p.EntryOn(day)
	if entry == nil {
		return 0, ErrNoEntryForDay
	}

	delta := 0
	if completed && !entry.Completed {
		delta = r.CompletionPoints
		p.TotalPoints += delta
	}
	entry.Completed = completed
	return delta, nil
}

// Bonus returns the display-only bonus for userID on day: awarded when
// the user has completed and the opponent has not. It is evaluated at
// query time and never persisted; settlement is a separate concern.
func (r Rules) Bonus(b *model.Battle, userID string, day datekey.Key) int {
	self := b.Participant(userID)
	opponent := b.Opponent(userID)
	if self == nil || opponent == nil {
		return 0
	}

	selfEntry := self.EntryOn(day)
	if selfEntry == nil || !selfEntry.Completed {
		return 0
	}
	if e := opponent.EntryOn(day); e != nil && e.Completed {
		return 0
	}
	return r.DisplayBonus
}
