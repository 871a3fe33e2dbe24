// Package service provides business logic implementations.
package service

import (
	"errors"

	"rehabit-server/internal/battle"
)

// Common errors for service operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrHabitNotFound    = errors.New("habit not found")
	ErrBattleNotFound   = errors.New("battle not found")
	ErrNotAParticipant  = errors.New("not a participant in this battle")
	ErrNotOwner         = errors.New("habit belongs to another user")
	ErrInvalidDateRange = errors.New("end date is before start date")
	ErrInvalidStatus    = errors.New("invalid completion status")
	ErrSelfBattle       = errors.New("cannot battle yourself")

	// ErrAlreadyUpdatedToday reuses the state machine's sentinel so a
	// guard rejection surfaces identically from every layer.
	ErrAlreadyUpdatedToday = battle.ErrAlreadyUpdated
)
