package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// WSNotifier описывает отправку событий подключённым клиентам.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
	BroadcastToGroup(group string, event string, data any)
}

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo NotificationRepository
	hub  WSNotifier
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// SetHub устанавливает WebSocket hub для отправки событий.
func (s *NotificationService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// Notify сохраняет уведомление и доставляет его по WebSocket.
// Доставка не гарантируется: отключённый клиент прочитает событие из ленты.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, event string, data any) (*models.Notification, error) {
	payload, err := json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}

	notification := &models.Notification{
		UserID:  userID,
		Payload: payload,
		IsRead:  false,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	if s.hub != nil {
		if err := s.hub.BroadcastToUser(userID, event, data); err != nil {
			logger.Log.WithError(err).WithField("user_id", userID).Warn("notification service: доставка по ws не удалась")
		}
	}

	return notification, nil
}

// NotifyGroup доставляет событие всем подключённым участникам группы без
// сохранения: групповые события информационные, персональной ленты у них нет.
func (s *NotificationService) NotifyGroup(group string, event string, data any) {
	if s.hub != nil {
		s.hub.BroadcastToGroup(group, event, data)
	}
}

// GetNotification возвращает уведомление по идентификатору.
func (s *NotificationService) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if notification.UserID != userID {
		return apperror.ErrNotificationForbidden
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// DeleteNotification удаляет уведомление.
func (s *NotificationService) DeleteNotification(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if notification.UserID != userID {
		return apperror.ErrNotificationForbidden
	}

	return s.repo.Delete(ctx, id)
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
