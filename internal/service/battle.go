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

// BattleHabitColor marks companion habits in the client palette.
const BattleHabitColor = "#d6304c"

// DefaultBattleDuration is the battle length in days when the creator
// does not choose one.
const DefaultBattleDuration = 7

// BattleService handles streak battle lifecycle: creation with
// companion habits, the direct daily update path, nudges, and the
// read views with their display bonus.
type BattleService struct {
	battleRepo *repository.BattleRepository
	habitRepo  *repository.HabitRepository
	userRepo   *repository.UserRepository
	notifRepo  *repository.NotificationRepository
	rules      battle.Rules
	locks      *lock.KeyedLock
	lockWait   time.Duration
	duration   int
	now        func() time.Time
	loc        *time.Location
	logger     zerolog.Logger
}

// NewBattleService creates a new BattleService instance.
func NewBattleService(
	battleRepo *repository.BattleRepository,
	habitRepo *repository.HabitRepository,
	userRepo *repository.UserRepository,
	notifRepo *repository.NotificationRepository,
	rules battle.Rules,
	locks *lock.KeyedLock,
	lockWait time.Duration,
	defaultDuration int,
	now func() time.Time,
	loc *time.Location,
	logger zerolog.Logger,
) *BattleService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultBattleDuration
	}
	return &BattleService{
		battleRepo: battleRepo,
		habitRepo:  habitRepo,
		userRepo:   userRepo,
		notifRepo:  notifRepo,
		rules:      rules,
		locks:      locks,
		lockWait:   lockWait,
		duration:   defaultDuration,
		now:        now,
		loc:        loc,
		logger:     logger,
	}
}

func (s *BattleService) today() datekey.Key {
	return datekey.Today(s.now, s.loc)
}

// companionHabit builds the habit auto-created for each participant.
// Its window spans the battle, and BattleID links it back.
func companionHabit(userID, habitLabel, opponentName string, start, end datekey.Key) *model.Habit {
	return &model.Habit{
		UserID:      userID,
		Name:        fmt.Sprintf("%s (vs %s)", habitLabel, opponentName),
		Description: fmt.Sprintf("Streak battle with %s. Compete to maintain your daily streak!", opponentName),
		Category:    "Fitness",
		Frequency:   "daily",
		Color:       BattleHabitColor,
		StartDate:   start,
		EndDate:     end,
		History:     map[datekey.Key]string{},
		Notes:       map[datekey.Key]string{},
	}
}

// Create starts a battle against opponentUsername and creates one
// companion habit per participant, all in one transaction.
func (s *BattleService) Create(ctx context.Context, userID, opponentUsername, habitLabel string, durationDays, stake int) (*model.Battle, error) {
	creator, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load creator: %w", err)
	}

	opponent, err := s.userRepo.GetByUsername(ctx, opponentUsername)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load opponent: %w", err)
	}
	if opponent.ID == userID {
		return nil, ErrSelfBattle
	}

	if durationDays <= 0 {
		durationDays = s.duration
	}

	start := s.today()
	end := start.AddDays(durationDays)

	b := &model.Battle{
		HabitLabel: habitLabel,
		Duration:   durationDays,
		Stake:      stake,
		Status:     model.BattleActive,
		StartDate:  start,
		EndDate:    end,
		CreatedBy:  userID,
		Participants: []model.BattleParticipant{
			{UserID: creator.ID},
			{UserID: opponent.ID},
		},
	}
	habits := []*model.Habit{
		companionHabit(creator.ID, habitLabel, opponent.Username, start, end),
		companionHabit(opponent.ID, habitLabel, creator.Username, start, end),
	}

	created, err := s.battleRepo.Create(ctx, b, habits)
	if err != nil {
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	s.logger.Info().
		Str("battle_id", created.ID).
		Str("creator", creator.Username).
		Str("opponent", opponent.Username).
		Int("duration", durationDays).
		Msg("battle created")

	return created, nil
}

// UpdateStreak is the direct daily action from the battle view. A
// second attempt for the same day is rejected with
// ErrAlreadyUpdatedToday so the caller can show "already recorded";
// corrections belong to the sync path. On success the linked habit's
// entry for today is written through so both sides agree.
func (s *BattleService) UpdateStreak(ctx context.Context, battleID, userID string, completed bool) (*model.Battle, error) {
	key := lock.Participant(battleID, userID)
	if !s.locks.LockWithTimeout(ctx, key, s.lockWait) {
		return nil, lock.ErrLockTimeout
	}
	defer s.locks.Unlock(key)

	today := s.today()

	err := s.battleRepo.ApplyStreak(ctx, battleID, userID, today, completed, s.rules.CompletionPoints, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBattleNotFound):
			return nil, ErrBattleNotFound
		case errors.Is(err, repository.ErrNotAParticipant):
			return nil, ErrNotAParticipant
		case errors.Is(err, battle.ErrAlreadyUpdated):
			return nil, ErrAlreadyUpdatedToday
		}
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}

	// Write-through to the companion habit. A missing habit (deleted
	// by the user) is tolerated; the battle side stays authoritative.
	status := model.StatusSkipped
	if completed {
		status = model.StatusCompleted
	}
	if h, err := s.habitRepo.GetByBattleAndUser(ctx, battleID, userID); err == nil {
		if err := s.habitRepo.SetStatus(ctx, h.ID, today, status); err != nil {
			s.logger.Error().Err(err).Str("habit_id", h.ID).Msg("failed to write habit entry from battle")
		}
	} else if !errors.Is(err, repository.ErrHabitNotFound) {
		return nil, fmt.Errorf("failed to find battle habit: %w", err)
	}

	s.logger.Info().
		Str("battle_id", battleID).
		Str("user_id", userID).
		Bool("completed", completed).
		Msg("battle streak updated")

	return s.battleRepo.GetByID(ctx, battleID)
}

// Get retrieves one battle, requiring the caller to be a participant.
func (s *BattleService) Get(ctx context.Context, battleID, userID string) (*model.Battle, error) {
	b, err := s.battleRepo.GetByID(ctx, battleID)
	if err != nil {
		if errors.Is(err, repository.ErrBattleNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to get battle: %w", err)
	}
	if b.Participant(userID) == nil {
		return nil, ErrNotAParticipant
	}
	return b, nil
}

// ListActive retrieves the caller's active battles.
func (s *BattleService) ListActive(ctx context.Context, userID string) ([]*model.Battle, error) {
	return s.battleRepo.ListActiveByUser(ctx, userID)
}

// DisplayBonus returns the render-time bonus for userID today:
// non-zero when they have completed and their opponent has not. It is
// never written to stored points.
func (s *BattleService) DisplayBonus(b *model.Battle, userID string) int {
	return s.rules.Bonus(b, userID, s.today())
}

// DaysRemaining returns how many days of the battle are left, never
// negative.
func (s *BattleService) DaysRemaining(b *model.Battle) int {
	remaining := s.today().DaysUntil(b.EndDate)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Nudge sends a fire-and-forget poke to the opponent. Delivery and
// read state are the notification surface's concern.
func (s *BattleService) Nudge(ctx context.Context, battleID, fromUserID string) error {
	b, err := s.Get(ctx, battleID, fromUserID)
	if err != nil {
		return err
	}
	opponent := b.Opponent(fromUserID)
	if opponent == nil {
		return ErrNotAParticipant
	}

	sender := b.Participant(fromUserID)
	_, err = s.notifRepo.Create(ctx, &model.Notification{
		UserID:     opponent.UserID,
		Type:       model.NotificationNudge,
		Title:      "Battle nudge",
		Message:    fmt.Sprintf("%s nudged you to keep your streak in %q!", sender.Username, b.HabitLabel),
		BattleID:   battleID,
		FromUserID: fromUserID,
	})
	if err != nil {
		return fmt.Errorf("failed to create nudge notification: %w", err)
	}

	s.logger.Info().
		Str("battle_id", battleID).
		Str("from", fromUserID).
		Str("to", opponent.UserID).
		Msg("nudge sent")
	return nil
}
