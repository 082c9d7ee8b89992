package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
	"github.com/refermarket/referral-backend/internal/validation"
)

// ChatRepositoryFull описывает зависимости ChatService от хранилища чатов.
type ChatRepositoryFull interface {
	GetRoomByID(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
	GetRoomByReferralID(ctx context.Context, referralID uuid.UUID) (*models.ChatRoom, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]models.ChatMessage, error)
}

// ChatService содержит бизнес-логику анонимных чатов.
// Комнаты создаёт координатор, сервис работает с уже существующими.
type ChatService struct {
	repo     ChatRepositoryFull
	notifier Notifier
}

// NewChatService создаёт сервис чатов.
func NewChatService(repo ChatRepositoryFull, notifier Notifier) *ChatService {
	return &ChatService{repo: repo, notifier: notifier}
}

// GetRoom возвращает комнату, доступную пользователю.
func (s *ChatService) GetRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.ChatRoom, error) {
	room, err := s.repo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, apperror.ErrChatAccessDenied
	}
	return room, nil
}

// GetRoomByReferral возвращает комнату по запросу.
func (s *ChatService) GetRoomByReferral(ctx context.Context, referralID, userID uuid.UUID) (*models.ChatRoom, error) {
	room, err := s.repo.GetRoomByReferralID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, apperror.ErrChatAccessDenied
	}
	return room, nil
}

// SendMessage добавляет сообщение в чат и уведомляет собеседника.
func (s *ChatService) SendMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (*models.ChatMessage, error) {
	if err := validation.ValidateMessageContent(text); err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}

	room, err := s.repo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	role := room.RoleOf(senderID)
	if role == "" {
		return nil, apperror.ErrChatAccessDenied
	}

	msg := &models.ChatMessage{
		RoomID:     roomID,
		SenderRole: role,
		SenderID:   &senderID,
		Text:       text,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Собеседнику уходит событие без имени отправителя: чат анонимный.
	recipient := room.SeekerID
	if role == models.ChatRoleSeeker {
		recipient = room.ReferrerID
	}
	if _, err := s.notifier.Notify(ctx, recipient, models.EventChatMessage, map[string]any{
		"room_id":     roomID,
		"sender_role": role,
		"text":        text,
	}); err != nil {
		logger.Log.WithError(err).WithField("room_id", roomID).Warn("chat service: не удалось уведомить собеседника")
	}

	return msg, nil
}

// ListMessages возвращает историю сообщений комнаты.
func (s *ChatService) ListMessages(ctx context.Context, roomID, userID uuid.UUID, limit, offset int) ([]models.ChatMessage, error) {
	room, err := s.repo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, apperror.ErrChatAccessDenied
	}

	limit, offset = normalizePage(limit, offset)
	return s.repo.ListMessages(ctx, roomID, limit, offset)
}
