package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы escrow. RELEASED и REFUNDED — терминальные.
const (
	EscrowStatusLocked   = "LOCKED"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
)

// Escrow представляет удержание средств под конкретный реферальный запрос.
// На один запрос существует не более одного escrow (уникальный referral_id).
type Escrow struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ReferralID uuid.UUID  `db:"referral_id" json:"referral_id"`
	SeekerID   uuid.UUID  `db:"seeker_id" json:"seeker_id"`
	ReferrerID *uuid.UUID `db:"referrer_id" json:"referrer_id,omitempty"`
	Amount     float64    `db:"amount" json:"amount"`
	Status     string     `db:"status" json:"status"`
	LockedAt   time.Time  `db:"locked_at" json:"locked_at"`
	ReleasedAt *time.Time `db:"released_at" json:"released_at,omitempty"`
}

// IsTerminal сообщает, завершён ли escrow.
func (e *Escrow) IsTerminal() bool {
	return e.Status != EscrowStatusLocked
}
