package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
)

type mockChatRepo struct {
	mock.Mock
}

func (m *mockChatRepo) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *mockChatRepo) GetRoomByReferralID(ctx context.Context, referralID uuid.UUID) (*models.ChatRoom, error) {
	args := m.Called(ctx, referralID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *mockChatRepo) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockChatRepo) ListMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func testChatRoom() *models.ChatRoom {
	return &models.ChatRoom{
		ID:         uuid.New(),
		ReferralID: uuid.New(),
		SeekerID:   uuid.New(),
		ReferrerID: uuid.New(),
		Anonymous:  true,
	}
}

func TestChatService_SendMessage_NotifiesCounterpart(t *testing.T) {
	repo := new(mockChatRepo)
	notifier := newFakeNotifier()
	svc := NewChatService(repo, notifier)

	room := testChatRoom()
	repo.On("GetRoomByID", mock.Anything, room.ID).Return(room, nil)
	repo.On("AppendMessage", mock.Anything, mock.AnythingOfType("*models.ChatMessage")).Return(nil)

	msg, err := svc.SendMessage(context.Background(), room.ID, room.SeekerID, "Добрый день")

	assert.NoError(t, err)
	assert.Equal(t, models.ChatRoleSeeker, msg.SenderRole)
	// Событие уходит собеседнику, не отправителю
	assert.Len(t, notifier.eventsFor(room.ReferrerID), 1)
	assert.Empty(t, notifier.eventsFor(room.SeekerID))
}

func TestChatService_SendMessage_OutsiderRejected(t *testing.T) {
	repo := new(mockChatRepo)
	svc := NewChatService(repo, newFakeNotifier())

	room := testChatRoom()
	repo.On("GetRoomByID", mock.Anything, room.ID).Return(room, nil)

	_, err := svc.SendMessage(context.Background(), room.ID, uuid.New(), "привет")

	assert.True(t, errors.Is(err, apperror.ErrChatAccessDenied))
	repo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestChatService_SendMessage_EmptyText(t *testing.T) {
	repo := new(mockChatRepo)
	svc := NewChatService(repo, newFakeNotifier())

	_, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), "   ")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetRoomByID", mock.Anything, mock.Anything)
}

func TestChatService_GetRoom_ParticipantOnly(t *testing.T) {
	repo := new(mockChatRepo)
	svc := NewChatService(repo, newFakeNotifier())

	room := testChatRoom()
	repo.On("GetRoomByID", mock.Anything, room.ID).Return(room, nil)

	got, err := svc.GetRoom(context.Background(), room.ID, room.ReferrerID)
	assert.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = svc.GetRoom(context.Background(), room.ID, uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrChatAccessDenied))
}

func TestChatService_ListMessages_NormalizesPage(t *testing.T) {
	repo := new(mockChatRepo)
	svc := NewChatService(repo, newFakeNotifier())

	room := testChatRoom()
	repo.On("GetRoomByID", mock.Anything, room.ID).Return(room, nil)
	repo.On("ListMessages", mock.Anything, room.ID, 20, 0).Return([]models.ChatMessage{}, nil)

	_, err := svc.ListMessages(context.Background(), room.ID, room.SeekerID, -5, -1)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
