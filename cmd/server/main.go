// Package main is the entry point for the habit tracking server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rehabit-server/internal/battle"
	"rehabit-server/internal/config"
	"rehabit-server/internal/handler"
	"rehabit-server/internal/pkg/datekey"
	"rehabit-server/internal/pkg/db"
	"rehabit-server/internal/pkg/lock"
	"rehabit-server/internal/repository"
	"rehabit-server/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Server.Timezone).Msg("Failed to resolve timezone")
	}

	log.Info().Str("timezone", loc.String()).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	habitRepo := repository.NewHabitRepository(dbPool.Pool)
	battleRepo := repository.NewBattleRepository(dbPool.Pool)
	notifRepo := repository.NewNotificationRepository(dbPool.Pool)

	// Initialize services
	rules := battle.Rules{
		CompletionPoints: cfg.Battle.CompletionPoints,
		DisplayBonus:     cfg.Battle.DisplayBonus,
	}
	locks := lock.NewKeyedLock()

	reconciler := service.NewReconciler(
		battleRepo, habitRepo, rules, locks,
		cfg.Battle.LockTimeout, time.Now, loc, log.Logger,
	)
	habitService := service.NewHabitService(
		habitRepo, reconciler, cfg.Streak.MaxLookback, time.Now, loc, log.Logger,
	)
	battleService := service.NewBattleService(
		battleRepo, habitRepo, userRepo, notifRepo, rules, locks,
		cfg.Battle.LockTimeout, cfg.Battle.DefaultDuration, time.Now, loc, log.Logger,
	)
	notifService := service.NewNotificationService(notifRepo, log.Logger)

	today := func() datekey.Key { return datekey.Today(time.Now, loc) }

	// Initialize HTTP handlers
	router := handler.NewRouter(
		handler.NewHabitHandler(habitService, today, log.Logger),
		handler.NewBattleHandler(battleService, reconciler, log.Logger),
		handler.NewNotificationHandler(notifService, log.Logger),
		log.Logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create habits table. History and notes are JSONB
	// maps keyed by YYYY-MM-DD day keys; dates are stored as the same
	// day keys so SQL comparisons follow calendar order.
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
		);
		CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id);
		CREATE INDEX IF NOT EXISTS idx_habits_battle_user ON habits(battle_id, user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: habits table created")

	// Migration 3: Create battles and participants tables
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: battles tables created")

	// Migration 4: Create audit log. The unique constraint is what
	// keeps one history row per participant per day under races.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS battle_streak_history (
			battle_id TEXT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			completed BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (battle_id, user_id, day)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: battle_streak_history table created")

	// Migration 5: Create notifications table
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
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_time ON notifications(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: notifications table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
