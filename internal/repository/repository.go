// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrHabitNotFound    = errors.New("habit not found")
	ErrBattleNotFound   = errors.New("battle not found")
	ErrNotAParticipant  = errors.New("user is not a participant in this battle")
	ErrNotificationNotFound = errors.New("notification not found")
)

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories
// need, so row-writing helpers work inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
