package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lib/pq"
)

// Статусы реферального запроса
const (
	ReferralStatusPending    = "pending"
	ReferralStatusAccepted   = "accepted"
	ReferralStatusInProgress = "in_progress"
	ReferralStatusReferred   = "referred"
	ReferralStatusCompleted  = "completed"
	ReferralStatusCancelled  = "cancelled"
)

// ValidReferralStatuses список валидных статусов запроса
var ValidReferralStatuses = map[string]struct{}{
	ReferralStatusPending:    {},
	ReferralStatusAccepted:   {},
	ReferralStatusInProgress: {},
	ReferralStatusReferred:   {},
	ReferralStatusCompleted:  {},
	ReferralStatusCancelled:  {},
}

// ReferralRequest описывает запрос соискателя на рекомендацию в компанию.
// acceptedBy, acceptedAt и chatRoomId выставляются ровно один раз —
// координатором при первом успешном принятии.
type ReferralRequest struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	SeekerID    uuid.UUID      `db:"seeker_id" json:"seeker_id"`
	Company     string         `db:"company" json:"company"`
	Role        string         `db:"role" json:"role"`
	Skills      pq.StringArray `db:"skills" json:"skills"`
	Description string         `db:"description" json:"description"`
	Amount      float64        `db:"amount" json:"amount"`
	Status      string         `db:"status" json:"status"`
	AcceptedBy  *uuid.UUID     `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt  *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	ChatRoomID  *uuid.UUID     `db:"chat_room_id" json:"chat_room_id,omitempty"`
	ExpiresAt   time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// IsHolding сообщает, удерживаются ли ещё средства по запросу:
// запрос не дошёл ни до выплаты, ни до отмены.
func (r *ReferralRequest) IsHolding() bool {
	switch r.Status {
	case ReferralStatusPending, ReferralStatusAccepted, ReferralStatusInProgress, ReferralStatusReferred:
		return true
	}
	return false
}

// ReferrerDisplay — обезличенное представление реферера для соискателя.
// Настоящее имя не раскрывается до завершения сделки.
type ReferrerDisplay struct {
	Experience int    `json:"experience"`
	AnonID     string `json:"anon_id"`
}
