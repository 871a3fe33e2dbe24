// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rehabit-server/internal/battle"
	"rehabit-server/internal/model"
	"rehabit-server/internal/pkg/datekey"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runTestMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runTestMigrations applies the database schema
func runTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS habits (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category VARCHAR(100) NOT NULL DEFAULT '',
			frequency VARCHAR(50) NOT NULL DEFAULT 'daily',
			color VARCHAR(20) NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			end_date TEXT,
			battle_id TEXT,
			history JSONB NOT NULL DEFAULT '{}',
			notes JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS battles (
			id TEXT PRIMARY KEY,
			habit_label VARCHAR(255) NOT NULL,
			duration INT NOT NULL,
			stake INT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			created_by TEXT NOT NULL REFERENCES users(id),
			winner_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS battle_participants (
			battle_id TEXT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			current_streak INT NOT NULL DEFAULT 0,
			total_points INT NOT NULL DEFAULT 0,
			last_update TIMESTAMPTZ,
			last_update_day TEXT,
			PRIMARY KEY (battle_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS battle_streak_history (
			battle_id TEXT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			completed BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (battle_id, user_id, day)
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(50) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			battle_id TEXT,
			from_user_id TEXT,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createTestBattle seeds two users and an active battle with one
// companion habit per participant, returning the loaded battle.
func createTestBattle(t *testing.T, pool *pgxpool.Pool) (*model.Battle, *model.User, *model.User) {
	t.Helper()
	ctx := context.Background()

	users := NewUserRepository(pool)
	alice, err := users.Create(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	battles := NewBattleRepository(pool)
	b, err := battles.Create(ctx, &model.Battle{
		HabitLabel: "Morning run",
		Duration:   7,
		Stake:      50,
		Status:     model.BattleActive,
		StartDate:  "2024-03-01",
		EndDate:    "2024-03-08",
		CreatedBy:  alice.ID,
		Participants: []model.BattleParticipant{
			{UserID: alice.ID},
			{UserID: bob.ID},
		},
	}, []*model.Habit{
		{UserID: alice.ID, Name: "Morning run (vs bob)", StartDate: "2024-03-01", EndDate: "2024-03-08"},
		{UserID: bob.ID, Name: "Morning run (vs alice)", StartDate: "2024-03-01", EndDate: "2024-03-08"},
	})
	require.NoError(t, err)
	return b, alice, bob
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// ============================================================================
// HabitRepository Tests
// ============================================================================

func TestHabitRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	alice, err := users.Create(ctx, "alice", "")
	require.NoError(t, err)

	repo := NewHabitRepository(pool)
	h, err := repo.Create(ctx, &model.Habit{
		UserID:    alice.ID,
		Name:      "Read",
		Frequency: "daily",
		Color:     "#da746f",
		StartDate: "2024-03-01",
		History:   map[datekey.Key]string{"2024-03-01": model.StatusDone},
		Notes:     map[datekey.Key]string{"2024-03-01": "ch. 3"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)

	got, err := repo.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read", got.Name)
	assert.Equal(t, model.StatusDone, got.History["2024-03-01"])
	assert.Equal(t, "ch. 3", got.Notes["2024-03-01"])
	assert.True(t, got.EndDate.IsZero())
	assert.Empty(t, got.BattleID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestHabitRepository_SetStatus_SingleDayUpsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	alice, err := users.Create(ctx, "alice", "")
	require.NoError(t, err)

	repo := NewHabitRepository(pool)
	h, err := repo.Create(ctx, &model.Habit{
		UserID:    alice.ID,
		Name:      "Read",
		StartDate: "2024-03-01",
		History:   map[datekey.Key]string{"2024-03-01": model.StatusDone},
	})
	require.NoError(t, err)

	// New day lands alongside the old one.
	require.NoError(t, repo.SetStatus(ctx, h.ID, "2024-03-02", model.StatusPartial))
	// Same-day overwrite replaces, not duplicates.
	require.NoError(t, repo.SetStatus(ctx, h.ID, "2024-03-02", model.StatusSkipped))

	got, err := repo.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.History["2024-03-01"])
	assert.Equal(t, model.StatusSkipped, got.History["2024-03-02"])
	assert.Len(t, got.History, 2)

	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", "2024-03-02", model.StatusDone), ErrHabitNotFound)
}

func TestHabitRepository_UpdateAndDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	alice, err := users.Create(ctx, "alice", "")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob", "")
	require.NoError(t, err)

	repo := NewHabitRepository(pool)
	h, err := repo.Create(ctx, &model.Habit{UserID: alice.ID, Name: "Read", StartDate: "2024-03-01"})
	require.NoError(t, err)

	h.Name = "Read fiction"
	h.EndDate = "2024-06-01"
	h.History = map[datekey.Key]string{"2024-03-05": model.StatusDone}
	updated, err := repo.Update(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "Read fiction", updated.Name)
	assert.Equal(t, datekey.Key("2024-06-01"), updated.EndDate)
	assert.Equal(t, model.StatusDone, updated.History["2024-03-05"])

	// Delete is scoped to the owner.
	assert.ErrorIs(t, repo.Delete(ctx, h.ID, bob.ID), ErrHabitNotFound)
	require.NoError(t, repo.Delete(ctx, h.ID, alice.ID))
	_, err = repo.GetByID(ctx, h.ID)
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

// ============================================================================
// BattleRepository Tests
// ============================================================================

func TestBattleRepository_CreateWithCompanionHabits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	b, alice, bob := createTestBattle(t, pool)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, model.BattleActive, b.Status)
	require.Len(t, b.Participants, 2)
	for _, p := range b.Participants {
		assert.Zero(t, p.CurrentStreak)
		assert.Zero(t, p.TotalPoints)
		assert.Nil(t, p.LastUpdate)
	}
	assert.Equal(t, "alice", b.Participant(alice.ID).Username)
	assert.Equal(t, "bob", b.Opponent(alice.ID).Username)

	habits := NewHabitRepository(pool)
	ha, err := habits.GetByBattleAndUser(ctx, b.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, ha.BattleID)
	hb, err := habits.GetByBattleAndUser(ctx, b.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning run (vs alice)", hb.Name)

	active, err := NewBattleRepository(pool).ListActiveByUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestBattleRepository_ApplyStreak(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	b, alice, _ := createTestBattle(t, pool)
	repo := NewBattleRepository(pool)
	day := datekey.Key("2024-03-01")

	require.NoError(t, repo.ApplyStreak(ctx, b.ID, alice.ID, day, true, 10, time.Now()))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	p := got.Participant(alice.ID)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 10, p.TotalPoints)
	assert.Equal(t, day, p.LastUpdateDay)
	require.NotNil(t, p.EntryOn(day))
	assert.True(t, p.EntryOn(day).Completed)

	// Second transition for the same day is rejected by the guard.
	err = repo.ApplyStreak(ctx, b.ID, alice.ID, day, true, 10, time.Now())
	assert.ErrorIs(t, err, battle.ErrAlreadyUpdated)

	// Next day: a skip resets the streak, keeps the points.
	require.NoError(t, repo.ApplyStreak(ctx, b.ID, alice.ID, day.Next(), false, 10, time.Now()))
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	p = got.Participant(alice.ID)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, 10, p.TotalPoints)
	assert.Len(t, p.StreakHistory, 2)

	// Missing battle and non-participant resolve before the guard.
	assert.ErrorIs(t, repo.ApplyStreak(ctx, "missing", alice.ID, day, true, 10, time.Now()), ErrBattleNotFound)
	assert.ErrorIs(t, repo.ApplyStreak(ctx, b.ID, "stranger", day, true, 10, time.Now()), ErrNotAParticipant)
}

func TestBattleRepository_ApplyStreak_ConcurrentSameDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	b, alice, _ := createTestBattle(t, pool)
	repo := NewBattleRepository(pool)
	day := datekey.Key("2024-03-01")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.ApplyStreak(ctx, b.ID, alice.ID, day, true, 10, time.Now())
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, battle.ErrAlreadyUpdated)
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	p := got.Participant(alice.ID)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 10, p.TotalPoints)
	assert.Len(t, p.StreakHistory, 1)
}

func TestBattleRepository_AmendStreak(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	b, alice, _ := createTestBattle(t, pool)
	repo := NewBattleRepository(pool)
	day := datekey.Key("2024-03-01")

	// Nothing recorded yet: nothing to amend.
	err := repo.AmendStreak(ctx, b.ID, alice.ID, day, true, 10)
	assert.ErrorIs(t, err, battle.ErrNoEntryForDay)

	// Recorded as skipped, then corrected to completed: points are
	// awarded once, the streak count stays where the transition left it.
	require.NoError(t, repo.ApplyStreak(ctx, b.ID, alice.ID, day, false, 10, time.Now()))
	require.NoError(t, repo.AmendStreak(ctx, b.ID, alice.ID, day, true, 10))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	p := got.Participant(alice.ID)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, 10, p.TotalPoints)
	assert.True(t, p.EntryOn(day).Completed)

	// Replaying the same correction is a no-op.
	require.NoError(t, repo.AmendStreak(ctx, b.ID, alice.ID, day, true, 10))
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Participant(alice.ID).TotalPoints)

	// Correcting back to skipped flips the record without clawing
	// back points.
	require.NoError(t, repo.AmendStreak(ctx, b.ID, alice.ID, day, false, 10))
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	p = got.Participant(alice.ID)
	assert.False(t, p.EntryOn(day).Completed)
	assert.Equal(t, 10, p.TotalPoints)
}

func TestBattleRepository_MarkCompleted(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	b, alice, _ := createTestBattle(t, pool)
	repo := NewBattleRepository(pool)

	require.NoError(t, repo.MarkCompleted(ctx, b.ID, alice.ID))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BattleCompleted, got.Status)
	assert.Equal(t, alice.ID, got.WinnerID)

	// Already completed battles cannot be settled twice.
	assert.ErrorIs(t, repo.MarkCompleted(ctx, b.ID, alice.ID), ErrBattleNotFound)

	// Completed battles drop out of the active list.
	active, err := repo.ListActiveByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// ============================================================================
// NotificationRepository Tests
// ============================================================================

func TestNotificationRepository_CreateListMarkRead(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	alice, err := users.Create(ctx, "alice", "")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob", "")
	require.NoError(t, err)

	repo := NewNotificationRepository(pool)
	n, err := repo.Create(ctx, &model.Notification{
		UserID:     alice.ID,
		Type:       model.NotificationNudge,
		Title:      "Battle nudge",
		Message:    "bob nudged you",
		FromUserID: bob.ID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)

	ns, err := repo.ListByUser(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "Battle nudge", ns[0].Title)

	// Feeds are private: bob cannot mark alice's notification.
	assert.ErrorIs(t, repo.MarkRead(ctx, n.ID, bob.ID), ErrNotificationNotFound)

	require.NoError(t, repo.MarkRead(ctx, n.ID, alice.ID))
	ns, err = repo.ListByUser(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.True(t, ns[0].Read)
}
