package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rehabit-server/internal/model"
	"rehabit-server/internal/repository"
)

// NotificationService exposes the per-user notification feed.
type NotificationService struct {
	repo   *repository.NotificationRepository
	logger zerolog.Logger
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(repo *repository.NotificationRepository, logger zerolog.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

// List returns the newest notifications for userID, up to limit.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	ns, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return ns, nil
}

// MarkRead marks one of userID's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := s.repo.MarkRead(ctx, notificationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return repository.ErrNotificationNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
