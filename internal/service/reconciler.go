package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rehabit-server/internal/battle"
	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
	"rehabit-server/internal/pkg/lock"
	"rehabit-server/internal/repository"
)

// Reconciler keeps a battle-linked habit's entry for today and the
// corresponding battle participant state from diverging. Three entry
// points feed it (the direct battle action, a habit edit, and the
// explicit sync call) in any order, possibly retried. The first
// arrival for a day takes the real transition; later arrivals become
// corrections that amend the recorded outcome without replaying the
// streak arithmetic, so replays are idempotent.
type Reconciler struct {
	battleRepo *repository.BattleRepository
	habitRepo  *repository.HabitRepository
	rules      battle.Rules
	locks      *lock.KeyedLock
	lockWait   time.Duration
	now        func() time.Time
	loc        *time.Location
	logger     zerolog.Logger
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(
	battleRepo *repository.BattleRepository,
	habitRepo *repository.HabitRepository,
	rules battle.Rules,
	locks *lock.KeyedLock,
	lockWait time.Duration,
	now func() time.Time,
	loc *time.Location,
	logger zerolog.Logger,
) *Reconciler {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Reconciler{
		battleRepo: battleRepo,
		habitRepo:  habitRepo,
		rules:      rules,
		locks:      locks,
		lockWait:   lockWait,
		now:        now,
		loc:        loc,
		logger:     logger,
	}
}

// Reconcile applies completedToday to the battle participant state:
// a fresh daily transition when today's has not been taken, a
// same-day correction otherwise. It then writes the habit's entry for
// today so both sides of the link agree. Battle state is persisted
// before the habit entry; either half is safe to retry.
//
// The (battle, user) lock serializes the read-decide-write against
// the other entry points in this process; the repository's
// conditional update backstops the guard across processes.
func (r *Reconciler) Reconcile(ctx context.Context, habitID, battleID, userID string, completedToday bool) (*model.Battle, error) {
	return r.reconcile(ctx, habitID, battleID, userID, completedToday, true)
}

// SyncBattle is the explicit sync entry point, addressed by battle
// rather than habit. The companion habit is resolved here; if the
// user deleted it, the battle side is still reconciled and the habit
// write is skipped.
func (r *Reconciler) SyncBattle(ctx context.Context, battleID, userID string, completedToday bool) (*model.Battle, error) {
	h, err := r.habitRepo.GetByBattleAndUser(ctx, battleID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrHabitNotFound) {
			return r.reconcile(ctx, "", battleID, userID, completedToday, false)
		}
		return nil, fmt.Errorf("failed to resolve battle habit: %w", err)
	}
	return r.reconcile(ctx, h.ID, battleID, userID, completedToday, true)
}

// ReconcileFromHabitWrite is the entry point for the habit-edit path:
// the habit row already holds today's entry, so only the battle side
// is touched. Writing the habit again here would clobber a richer
// status (partial) with the synthetic completed/skipped spelling.
func (r *Reconciler) ReconcileFromHabitWrite(ctx context.Context, habitID, battleID, userID string, completedToday bool) (*model.Battle, error) {
	return r.reconcile(ctx, habitID, battleID, userID, completedToday, false)
}

func (r *Reconciler) reconcile(ctx context.Context, habitID, battleID, userID string, completedToday, writeHabit bool) (*model.Battle, error) {
	key := lock.Participant(battleID, userID)
	if !r.locks.LockWithTimeout(ctx, key, r.lockWait) {
		return nil, lock.ErrLockTimeout
	}
	defer r.locks.Unlock(key)

	b, err := r.battleRepo.GetByID(ctx, battleID)
	if err != nil {
		if errors.Is(err, repository.ErrBattleNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to load battle: %w", err)
	}

	participant := b.Participant(userID)
	if participant == nil {
		return nil, ErrNotAParticipant
	}

	today := datekey.Today(r.now, r.loc)

	if !participant.UpdatedOn(today) {
		err = r.battleRepo.ApplyStreak(ctx, battleID, userID, today, completedToday, r.rules.CompletionPoints, r.now())
		if errors.Is(err, battle.ErrAlreadyUpdated) {
			// Another process won the day's transition between our
			// read and write; downgrade to a correction.
			err = r.battleRepo.AmendStreak(ctx, battleID, userID, today, completedToday, r.rules.CompletionPoints)
		}
	} else {
		err = r.battleRepo.AmendStreak(ctx, battleID, userID, today, completedToday, r.rules.CompletionPoints)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotAParticipant) {
			return nil, ErrNotAParticipant
		}
		return nil, fmt.Errorf("failed to reconcile battle state: %w", err)
	}

	// Habit side second: the entry is an idempotent upsert, so a
	// retry after a crash between the two writes converges.
	if writeHabit {
		status := model.StatusSkipped
		if completedToday {
			status = model.StatusCompleted
		}
		if err := r.habitRepo.SetStatus(ctx, habitID, today, status); err != nil {
			if errors.Is(err, repository.ErrHabitNotFound) {
				return nil, ErrHabitNotFound
			}
			return nil, fmt.Errorf("failed to write habit entry: %w", err)
		}
	}

	r.logger.Info().
		Str("battle_id", battleID).
		Str("user_id", userID).
		Str("day", today.String()).
		Bool("completed", completedToday).
		Msg("battle synced from habit")

	return r.battleRepo.GetByID(ctx, battleID)
}
