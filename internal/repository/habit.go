package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
)

// HabitRepository handles habit data persistence. A habit's sparse
// completion history and notes live in JSONB maps keyed by date, so a
// single-day upsert is one statement and never rewrites the whole map.
type HabitRepository struct {
	pool *pgxpool.Pool
}

// NewHabitRepository creates a new HabitRepository instance.
func NewHabitRepository(pool *pgxpool.Pool) *HabitRepository {
	return &HabitRepository{pool: pool}
}

const habitColumns = `id, user_id, name, description, category, frequency, color,
		start_date, end_date, battle_id, history, notes, created_at`

func scanHabit(row pgx.Row) (*model.Habit, error) {
	var (
		h        model.Habit
		endDate  *string
		battleID *string
		history  map[string]string
		notes    map[string]string
	)
	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Name,
		&h.Description,
		&h.Category,
		&h.Frequency,
		&h.Color,
		&h.StartDate,
		&endDate,
		&battleID,
		&history,
		&notes,
		&h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate != nil {
		h.EndDate = datekey.Key(*endDate)
	}
	if battleID != nil {
		h.BattleID = *battleID
	}
	h.History = make(map[datekey.Key]string, len(history))
	for k, v := range history {
		h.History[datekey.Key(k)] = v
	}
	h.Notes = make(map[datekey.Key]string, len(notes))
	for k, v := range notes {
		h.Notes[datekey.Key(k)] = v
	}
	return &h, nil
}

func historyToJSON(m map[datekey.Key]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func nullableKey(k datekey.Key) *string {
	if k.IsZero() {
		return nil
	}
	s := string(k)
	return &s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// insertHabit writes a habit row through q, which may be a pool or an
// open transaction (battle creation inserts companion habits in the
// same transaction as the battle).
func insertHabit(ctx context.Context, q querier, h *model.Habit) (*model.Habit, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO habits (id, user_id, name, description, category, frequency, color,
			start_date, end_date, battle_id, history, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING ` + habitColumns

	return scanHabit(q.QueryRow(ctx, query,
		h.ID,
		h.UserID,
		h.Name,
		h.Description,
		h.Category,
		h.Frequency,
		h.Color,
		string(h.StartDate),
		nullableKey(h.EndDate),
		nullableString(h.BattleID),
		historyToJSON(h.History),
		historyToJSON(h.Notes),
	))
}

// Create persists a new habit, generating an id when absent.
func (r *HabitRepository) Create(ctx context.Context, h *model.Habit) (*model.Habit, error) {
	created, err := insertHabit(ctx, r.pool, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}
	return created, nil
}

// GetByID retrieves a habit by id.
// Returns ErrHabitNotFound if the habit does not exist.
func (r *HabitRepository) GetByID(ctx context.Context, id string) (*model.Habit, error) {
	const query = `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`

	h, err := scanHabit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

// GetByUser retrieves all habits owned by userID, battle habits
// included, newest first.
func (r *HabitRepository) GetByUser(ctx context.Context, userID string) ([]*model.Habit, error) {
	const query = `SELECT ` + habitColumns + ` FROM habits
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get habits: %w", err)
	}
	defer rows.Close()

	var habits []*model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}

	return habits, nil
}

// GetByBattleAndUser finds the companion habit linking userID to
// battleID. Used by the reconciler to locate the habit side of a
// battle update.
func (r *HabitRepository) GetByBattleAndUser(ctx context.Context, battleID, userID string) (*model.Habit, error) {
	const query = `SELECT ` + habitColumns + ` FROM habits
		WHERE battle_id = $1 AND user_id = $2`

	h, err := scanHabit(r.pool.QueryRow(ctx, query, battleID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to get battle habit: %w", err)
	}
	return h, nil
}

// Update rewrites a habit's mutable attributes, history and notes
// included. Single-day changes should prefer SetStatus / SetNote.
func (r *HabitRepository) Update(ctx context.Context, h *model.Habit) (*model.Habit, error) {
	const query = `
		UPDATE habits
		SET name = $2, description = $3, category = $4, frequency = $5, color = $6,
			start_date = $7, end_date = $8, history = $9, notes = $10
		WHERE id = $1
		RETURNING ` + habitColumns

	updated, err := scanHabit(r.pool.QueryRow(ctx, query,
		h.ID,
		h.Name,
		h.Description,
		h.Category,
		h.Frequency,
		h.Color,
		string(h.StartDate),
		nullableKey(h.EndDate),
		historyToJSON(h.History),
		historyToJSON(h.Notes),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to update habit: %w", err)
	}
	return updated, nil
}

// SetStatus upserts the history entry for one day. Last write wins;
// there is no guard on the habit's active window here, by design the
// write path trusts the caller.
func (r *HabitRepository) SetStatus(ctx context.Context, habitID string, day datekey.Key, status string) error {
	const query = `
		UPDATE habits
		SET history = jsonb_set(history, ARRAY[$2::text], to_jsonb($3::text))
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, habitID, string(day), status)
	if err != nil {
		return fmt.Errorf("failed to set habit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHabitNotFound
	}
	return nil
}

// SetNote upserts the note for one day, independent of history.
func (r *HabitRepository) SetNote(ctx context.Context, habitID string, day datekey.Key, text string) error {
	const query = `
		UPDATE habits
		SET notes = jsonb_set(notes, ARRAY[$2::text], to_jsonb($3::text))
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, habitID, string(day), text)
	if err != nil {
		return fmt.Errorf("failed to set habit note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHabitNotFound
	}
	return nil
}

// Delete removes a habit owned by userID. Deletion does not cascade
// to an associated battle; the battle keeps its audit log.
func (r *HabitRepository) Delete(ctx context.Context, habitID, userID string) error {
	const query = `DELETE FROM habits WHERE id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, habitID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHabitNotFound
	}
	return nil
}
