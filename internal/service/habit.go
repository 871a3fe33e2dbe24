package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
	"rehabit-server/internal/repository"
	"rehabit-server/internal/streak"
)

// DefaultHabitColor matches the original client palette.
const DefaultHabitColor = "#da746f"

// HabitService handles habit lifecycle and the read-side views built
// on the streak calculator. When a battle-linked habit's entry for
// today changes, the service hands off to the reconciler so the battle
// side stays consistent.
type HabitService struct {
	habitRepo   *repository.HabitRepository
	reconciler  *Reconciler
	maxLookback int
	now         func() time.Time
	loc         *time.Location
	logger      zerolog.Logger
}

// NewHabitService creates a new HabitService instance. now and loc
// are injectable so tests can pin "today".
func NewHabitService(
	habitRepo *repository.HabitRepository,
	reconciler *Reconciler,
	maxLookback int,
	now func() time.Time,
	loc *time.Location,
	logger zerolog.Logger,
) *HabitService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	if maxLookback <= 0 {
		maxLookback = streak.DefaultMaxLookback
	}
	return &HabitService{
		habitRepo:   habitRepo,
		reconciler:  reconciler,
		maxLookback: maxLookback,
		now:         now,
		loc:         loc,
		logger:      logger,
	}
}

func (s *HabitService) today() datekey.Key {
	return datekey.Today(s.now, s.loc)
}

// CreateHabitInput carries the user-editable habit attributes.
type CreateHabitInput struct {
	Name        string
	Description string
	Category    string
	Frequency   string
	Color       string
	StartDate   datekey.Key
	EndDate     datekey.Key
}

// Create validates and persists a new habit. The start date defaults
// to today; an end date before the start date is rejected before
// anything is written.
func (s *HabitService) Create(ctx context.Context, userID string, in CreateHabitInput) (*model.Habit, error) {
	if in.StartDate.IsZero() {
		in.StartDate = s.today()
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return nil, ErrInvalidDateRange
	}
	if in.Frequency == "" {
		in.Frequency = "daily"
	}
	if in.Color == "" {
		in.Color = DefaultHabitColor
	}

	h, err := s.habitRepo.Create(ctx, &model.Habit{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Frequency:   in.Frequency,
		Color:       in.Color,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		History:     map[datekey.Key]string{},
		Notes:       map[datekey.Key]string{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	s.logger.Info().Str("habit_id", h.ID).Str("user_id", userID).Str("name", h.Name).Msg("habit created")
	return h, nil
}

// Get retrieves a habit, enforcing ownership.
func (s *HabitService) Get(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	h, err := s.habitRepo.GetByID(ctx, habitID)
	if err != nil {
		if errors.Is(err, repository.ErrHabitNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	if h.UserID != userID {
		return nil, ErrNotOwner
	}
	return h, nil
}

// List retrieves all of a user's habits, battle habits included.
func (s *HabitService) List(ctx context.Context, userID string) ([]*model.Habit, error) {
	return s.habitRepo.GetByUser(ctx, userID)
}

// MarkStatus records a completion status for one day. The write path
// never guards on the habit's active window; display-time filters do
// that. If the habit is battle-linked and today's effective completion
// changed, the reconciler propagates the change to the battle.
func (s *HabitService) MarkStatus(ctx context.Context, userID, habitID string, day datekey.Key, status string) (*model.Habit, error) {
	if !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	h, err := s.Get(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}

	oldStatus := h.StatusOn(day)
	if err := s.habitRepo.SetStatus(ctx, habitID, day, status); err != nil {
		return nil, fmt.Errorf("failed to mark habit: %w", err)
	}
	h.History[day] = status

	if h.BattleID != "" && day == s.today() && oldStatus != status {
		if _, err := s.reconciler.ReconcileFromHabitWrite(ctx, habitID, h.BattleID, userID, model.IsDone(status)); err != nil {
			// The habit write landed; a reconciliation failure must
			// not roll it back. The next sync call retries safely.
			s.logger.Error().Err(err).
				Str("habit_id", habitID).
				Str("battle_id", h.BattleID).
				Msg("failed to sync battle from habit")
		}
	}

	return h, nil
}

// RecordNote upserts the note for one day, independent of history.
func (s *HabitService) RecordNote(ctx context.Context, userID, habitID string, day datekey.Key, text string) error {
	if _, err := s.Get(ctx, userID, habitID); err != nil {
		return err
	}
	return s.habitRepo.SetNote(ctx, habitID, day, text)
}

// UpdateHabitInput carries a full habit edit, history map included.
type UpdateHabitInput struct {
	Name        string
	Description string
	Category    string
	Frequency   string
	Color       string
	StartDate   datekey.Key
	EndDate     datekey.Key
	History     map[datekey.Key]string
	Notes       map[datekey.Key]string
}

// Update applies a full habit edit. Today's completion status is
// diffed before and after the write; when it changed on a
// battle-linked habit, the reconciler carries the change across.
func (s *HabitService) Update(ctx context.Context, userID, habitID string, in UpdateHabitInput) (*model.Habit, error) {
	h, err := s.Get(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}

	if !in.EndDate.IsZero() && !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return nil, ErrInvalidDateRange
	}

	today := s.today()
	oldToday := h.StatusOn(today)

	h.Name = in.Name
	h.Description = in.Description
	h.Category = in.Category
	h.Frequency = in.Frequency
	h.Color = in.Color
	if !in.StartDate.IsZero() {
		h.StartDate = in.StartDate
	}
	h.EndDate = in.EndDate
	if in.History != nil {
		h.History = in.History
	}
	if in.Notes != nil {
		h.Notes = in.Notes
	}

	updated, err := s.habitRepo.Update(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to update habit: %w", err)
	}

	newToday := updated.StatusOn(today)
	if updated.BattleID != "" && oldToday != newToday {
		if _, err := s.reconciler.ReconcileFromHabitWrite(ctx, habitID, updated.BattleID, userID, model.IsDone(newToday)); err != nil {
			s.logger.Error().Err(err).
				Str("habit_id", habitID).
				Str("battle_id", updated.BattleID).
				Msg("failed to sync battle from habit edit")
		}
	}

	return updated, nil
}

// Delete removes a habit. An associated battle is left untouched, so
// its audit log survives the habit.
func (s *HabitService) Delete(ctx context.Context, userID, habitID string) error {
	if err := s.habitRepo.Delete(ctx, habitID, userID); err != nil {
		if errors.Is(err, repository.ErrHabitNotFound) {
			return ErrHabitNotFound
		}
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	s.logger.Info().Str("habit_id", habitID).Str("user_id", userID).Msg("habit deleted")
	return nil
}

// Dashboard returns the completion stats for one day across the
// user's habits. Only habits active on the day count.
func (s *HabitService) Dashboard(ctx context.Context, userID string, day datekey.Key) (streak.DayStats, error) {
	habits, err := s.habitRepo.GetByUser(ctx, userID)
	if err != nil {
		return streak.DayStats{Day: day}, fmt.Errorf("failed to load habits: %w", err)
	}
	return streak.CompletionForDate(habits, day), nil
}

// Stats returns the user's current streak and habit count.
func (s *HabitService) Stats(ctx context.Context, userID string) (int, int, error) {
	habits, err := s.habitRepo.GetByUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load habits: %w", err)
	}
	return streak.CurrentStreak(habits, s.today(), s.maxLookback), len(habits), nil
}

// Weekly returns the trailing seven-day series ending at end, which
// may be any day, not only today.
func (s *HabitService) Weekly(ctx context.Context, userID string, end datekey.Key) ([]streak.DayProgress, error) {
	habits, err := s.habitRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load habits: %w", err)
	}
	return streak.WeeklySeries(habits, end), nil
}

// HeatmapYear returns the heatmap cells for a calendar year along
// with the longest streak inside it.
func (s *HabitService) HeatmapYear(ctx context.Context, userID string, year int) ([]streak.HeatCell, int, error) {
	habits, err := s.habitRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load habits: %w", err)
	}
	start := datekey.Key(fmt.Sprintf("%04d-01-01", year))
	end := datekey.Key(fmt.Sprintf("%04d-12-31", year))
	return streak.Heatmap(habits, start, end), streak.LongestStreak(habits, start, end), nil
}
