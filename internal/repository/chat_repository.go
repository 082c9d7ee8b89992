package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/refermarket/referral-backend/internal/models"
)

// ErrChatRoomNotFound возвращается, когда чат не найден.
var ErrChatRoomNotFound = errors.New("chat room not found")

// ChatRepository отвечает за работу с таблицами chat_rooms и chat_messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository создаёт экземпляр репозитория.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateRoom создаёт чат и первое системное сообщение одной транзакцией.
// Повторный вызов для того же запроса возвращает существующий чат.
func (r *ChatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom, systemText string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO chat_rooms (referral_id, seeker_id, referrer_id, anonymous)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (referral_id) DO UPDATE SET anonymous = chat_rooms.anonymous
		RETURNING id, created_at
	`, room.ReferralID, room.SeekerID, room.ReferrerID, room.Anonymous,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return fmt.Errorf("chat repository: create room %w", err)
	}

	if systemText != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (room_id, sender_role, text)
			SELECT $1, 'system', $2
			WHERE NOT EXISTS (
				SELECT 1 FROM chat_messages WHERE room_id = $1 AND sender_role = 'system'
			)
		`, room.ID, systemText); err != nil {
			return fmt.Errorf("chat repository: seed system message %w", err)
		}
	}

	return tx.Commit()
}

// GetRoomByID возвращает чат по идентификатору.
func (r *ChatRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.GetContext(ctx, &room, `SELECT * FROM chat_rooms WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatRoomNotFound
		}
		return nil, fmt.Errorf("chat repository: get room %w", err)
	}
	return &room, nil
}

// GetRoomByReferralID возвращает чат по идентификатору запроса.
func (r *ChatRepository) GetRoomByReferralID(ctx context.Context, referralID uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.GetContext(ctx, &room, `SELECT * FROM chat_rooms WHERE referral_id = $1`, referralID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatRoomNotFound
		}
		return nil, fmt.Errorf("chat repository: get room by referral %w", err)
	}
	return &room, nil
}

// AppendMessage дописывает сообщение в чат.
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.db.QueryRowxContext(ctx, `
		INSERT INTO chat_messages (room_id, sender_role, sender_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, msg.RoomID, msg.SenderRole, msg.SenderID, msg.Text,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("chat repository: append message %w", err)
	}
	return nil
}

// ListMessages возвращает сообщения чата в хронологическом порядке.
func (r *ChatRepository) ListMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM chat_messages WHERE room_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("chat repository: list messages %w", err)
	}
	return messages, nil
}
