package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий, доставляемых пользователям
const (
	EventReferralReceived  = "referral_request_received"
	EventReferralConfirmed = "referral_request_confirmed"
	EventReferralClosed    = "referral_request_closed"
	EventReferralDeclined  = "referral_request_declined"
	EventPaymentReleased   = "payment_released"
	EventPaymentRefunded   = "payment_refunded"
	EventChatMessage       = "incoming_chat_message"
)

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
