package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rehabit-server/internal/battle"
	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
)

// BattleRepository handles streak battle persistence. Participant
// state and the append-only audit log are relational rows so the
// once-per-day guard can be a conditional UPDATE and duplicate daily
// transitions are rejected by the storage layer itself, regardless of
// which process attempts them.
type BattleRepository struct {
	pool *pgxpool.Pool
}

// NewBattleRepository creates a new BattleRepository instance.
func NewBattleRepository(pool *pgxpool.Pool) *BattleRepository {
	return &BattleRepository{pool: pool}
}

const battleColumns = `id, habit_label, duration, stake, status,
		start_date, end_date, created_by, winner_id, created_at`

func scanBattle(row pgx.Row) (*model.Battle, error) {
	var (
		b       model.Battle
		endDate *string
		winner  *string
	)
	err := row.Scan(
		&b.ID,
		&b.HabitLabel,
		&b.Duration,
		&b.Stake,
		&b.Status,
		&b.StartDate,
		&endDate,
		&b.CreatedBy,
		&winner,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate != nil {
		b.EndDate = datekey.Key(*endDate)
	}
	if winner != nil {
		b.WinnerID = *winner
	}
	return &b, nil
}

// Create persists a battle, its two participants, and their companion
// habits in a single transaction, so a battle never exists without
// both habit links.
func (r *BattleRepository) Create(ctx context.Context, b *model.Battle, habits []*model.Habit) (*model.Battle, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const battleQuery = `
		INSERT INTO battles (id, habit_label, duration, stake, status,
			start_date, end_date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err = tx.Exec(ctx, battleQuery,
		b.ID,
		b.HabitLabel,
		b.Duration,
		b.Stake,
		b.Status,
		string(b.StartDate),
		nullableKey(b.EndDate),
		b.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	const participantQuery = `
		INSERT INTO battle_participants (battle_id, user_id, current_streak, total_points)
		VALUES ($1, $2, 0, 0)`

	for i := range b.Participants {
		if _, err := tx.Exec(ctx, participantQuery, b.ID, b.Participants[i].UserID); err != nil {
			return nil, fmt.Errorf("failed to create participant: %w", err)
		}
	}

	for _, h := range habits {
		h.BattleID = b.ID
		if _, err := insertHabit(ctx, tx, h); err != nil {
			return nil, fmt.Errorf("failed to create battle habit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit battle creation: %w", err)
	}

	return r.GetByID(ctx, b.ID)
}

// GetByID retrieves a battle with its participants and their full
// audit logs. Returns ErrBattleNotFound if the battle does not exist.
func (r *BattleRepository) GetByID(ctx context.Context, id string) (*model.Battle, error) {
	const query = `SELECT ` + battleColumns + ` FROM battles WHERE id = $1`

	b, err := scanBattle(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to get battle: %w", err)
	}

	if err := r.loadParticipants(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListActiveByUser retrieves the active battles userID participates
// in, newest first.
func (r *BattleRepository) ListActiveByUser(ctx context.Context, userID string) ([]*model.Battle, error) {
	const query = `
		SELECT ` + battleColumns + ` FROM battles b
		WHERE b.status = 'active'
		  AND EXISTS (
			SELECT 1 FROM battle_participants p
			WHERE p.battle_id = b.id AND p.user_id = $1
		  )
		ORDER BY b.start_date DESC, b.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list battles: %w", err)
	}
	defer rows.Close()

	var battles []*model.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		battles = append(battles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating battles: %w", err)
	}

	for _, b := range battles {
		if err := r.loadParticipants(ctx, b); err != nil {
			return nil, err
		}
	}
	return battles, nil
}

func (r *BattleRepository) loadParticipants(ctx context.Context, b *model.Battle) error {
	const participantQuery = `
		SELECT p.user_id, u.username, p.current_streak, p.total_points,
			p.last_update, p.last_update_day
		FROM battle_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.battle_id = $1
		ORDER BY u.username`

	rows, err := r.pool.Query(ctx, participantQuery, b.ID)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	b.Participants = nil
	for rows.Next() {
		var (
			p   model.BattleParticipant
			day *string
		)
		if err := rows.Scan(&p.UserID, &p.Username, &p.CurrentStreak, &p.TotalPoints, &p.LastUpdate, &day); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		if day != nil {
			p.LastUpdateDay = datekey.Key(*day)
		}
		b.Participants = append(b.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating participants: %w", err)
	}

	const historyQuery = `
		SELECT user_id, day, completed, created_at
		FROM battle_streak_history
		WHERE battle_id = $1
		ORDER BY day`

	histRows, err := r.pool.Query(ctx, historyQuery, b.ID)
	if err != nil {
		return fmt.Errorf("failed to get streak history: %w", err)
	}
	defer histRows.Close()

	for histRows.Next() {
		var (
			userID string
			entry  model.StreakEntry
		)
		if err := histRows.Scan(&userID, &entry.Day, &entry.Completed, &entry.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan streak entry: %w", err)
		}
		if p := b.Participant(userID); p != nil {
			p.StreakHistory = append(p.StreakHistory, entry)
		}
	}
	if err := histRows.Err(); err != nil {
		return fmt.Errorf("error iterating streak history: %w", err)
	}

	return nil
}

// ApplyStreak takes the daily transition for one participant. The
// WHERE clause is the once-per-day guard: concurrent or repeated calls
// for the same day update zero rows and return
// battle.ErrAlreadyUpdated, so points and streak are applied exactly
// once per day no matter how many entry points race.
func (r *BattleRepository) ApplyStreak(ctx context.Context, battleID, userID string, day datekey.Key, completed bool, points int, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Resolve first so a missing battle or participant surfaces as
	// its own error rather than as "already updated".
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM battles WHERE id = $1)`, battleID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check battle: %w", err)
	}
	if !exists {
		return ErrBattleNotFound
	}
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM battle_participants WHERE battle_id = $1 AND user_id = $2)`,
		battleID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !exists {
		return ErrNotAParticipant
	}

	const update = `
		UPDATE battle_participants
		SET current_streak = CASE WHEN $4 THEN current_streak + 1 ELSE 0 END,
			total_points = total_points + CASE WHEN $4 THEN $5 ELSE 0 END,
			last_update = $6,
			last_update_day = $3
		WHERE battle_id = $1 AND user_id = $2
		  AND (last_update_day IS NULL OR last_update_day <> $3)`

	tag, err := tx.Exec(ctx, update, battleID, userID, string(day), completed, points, now)
	if err != nil {
		return fmt.Errorf("failed to apply streak update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return battle.ErrAlreadyUpdated
	}

	const insertEntry = `
		INSERT INTO battle_streak_history (battle_id, user_id, day, completed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (battle_id, user_id, day) DO NOTHING`

	if _, err := tx.Exec(ctx, insertEntry, battleID, userID, string(day), completed, now); err != nil {
		return fmt.Errorf("failed to append streak entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit streak update: %w", err)
	}
	return nil
}

// AmendStreak corrects the already-recorded entry for day. Points are
// awarded only when the flag flips from not-completed to completed,
// so replaying the same correction is a no-op. The streak count is
// deliberately untouched.
func (r *BattleRepository) AmendStreak(ctx context.Context, battleID, userID string, day datekey.Key, completed bool, points int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var wasCompleted bool
	err = tx.QueryRow(ctx, `
		SELECT completed FROM battle_streak_history
		WHERE battle_id = $1 AND user_id = $2 AND day = $3
		FOR UPDATE`,
		battleID, userID, string(day),
	).Scan(&wasCompleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return battle.ErrNoEntryForDay
		}
		return fmt.Errorf("failed to load streak entry: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE battle_streak_history SET completed = $4
		WHERE battle_id = $1 AND user_id = $2 AND day = $3`,
		battleID, userID, string(day), completed,
	); err != nil {
		return fmt.Errorf("failed to amend streak entry: %w", err)
	}

	if completed && !wasCompleted {
		if _, err := tx.Exec(ctx, `
			UPDATE battle_participants
			SET total_points = total_points + $3
			WHERE battle_id = $1 AND user_id = $2`,
			battleID, userID, points,
		); err != nil {
			return fmt.Errorf("failed to award correction points: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit streak correction: %w", err)
	}
	return nil
}

// MarkCompleted closes a battle and records the winner. Settlement
// (stake payout) is an extension point; nothing calls this
// automatically.
func (r *BattleRepository) MarkCompleted(ctx context.Context, battleID, winnerID string) error {
	const query = `
		UPDATE battles SET status = 'completed', winner_id = $2
		WHERE id = $1 AND status = 'active'`

	tag, err := r.pool.Exec(ctx, query, battleID, nullableString(winnerID))
	if err != nil {
		return fmt.Errorf("failed to complete battle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBattleNotFound
	}
	return nil
}
