package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли авторов сообщений в чате
const (
	ChatRoleSeeker   = "seeker"
	ChatRoleReferrer = "referrer"
	ChatRoleSystem   = "system"
)

// ChatRoom описывает анонимный чат между соискателем и реферером.
// Создаётся координатором при принятии запроса.
type ChatRoom struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ReferralID uuid.UUID `db:"referral_id" json:"referral_id"`
	SeekerID   uuid.UUID `db:"seeker_id" json:"seeker_id"`
	ReferrerID uuid.UUID `db:"referrer_id" json:"referrer_id"`
	Anonymous  bool      `db:"anonymous" json:"anonymous"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage описывает сообщение в чате.
type ChatMessage struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	RoomID     uuid.UUID  `db:"room_id" json:"room_id"`
	SenderRole string     `db:"sender_role" json:"sender_role"`
	SenderID   *uuid.UUID `db:"sender_id" json:"sender_id,omitempty"`
	Text       string     `db:"text" json:"text"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// HasParticipant проверяет, что пользователь является участником чата.
func (r *ChatRoom) HasParticipant(userID uuid.UUID) bool {
	return r.SeekerID == userID || r.ReferrerID == userID
}

// RoleOf возвращает роль участника в чате.
func (r *ChatRoom) RoleOf(userID uuid.UUID) string {
	switch userID {
	case r.SeekerID:
		return ChatRoleSeeker
	case r.ReferrerID:
		return ChatRoleReferrer
	}
	return ""
}
