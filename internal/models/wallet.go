package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Типы записей в журнале кошелька
const (
	TransactionKindAdd      = "ADD"
	TransactionKindWithdraw = "WITHDRAW"
	TransactionKindLock     = "LOCK"
	TransactionKindUnlock   = "UNLOCK"
	TransactionKindRelease  = "RELEASE"
	TransactionKindRefund   = "REFUND"
)

// Статусы записей журнала
const (
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// balanceEpsilon — допуск на погрешность float64 при проверке инварианта.
const balanceEpsilon = 1e-6

// Wallet представляет кошелёк пользователя.
// Инварианты: total == free + locked, все три поля неотрицательны.
// Балансы меняются только методами ниже; каждый метод проверяет инварианты
// и при нарушении возвращает ErrIntegrity, не трогая состояние.
type Wallet struct {
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	TotalBalance  float64   `db:"total_balance" json:"total_balance"`
	FreeBalance   float64   `db:"free_balance" json:"free_balance"`
	LockedBalance float64   `db:"locked_balance" json:"locked_balance"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction представляет запись журнала операций кошелька.
// Журнал только дописывается: записи никогда не изменяются и не удаляются.
type WalletTransaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Kind        string     `db:"kind" json:"kind"`
	Amount      float64    `db:"amount" json:"amount"`
	Description string     `db:"description" json:"description"`
	ReferralID  *uuid.UUID `db:"referral_id" json:"referral_id,omitempty"`
	EscrowID    *uuid.UUID `db:"escrow_id" json:"escrow_id,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NewWallet создаёт пустой кошелёк пользователя.
func NewWallet(userID uuid.UUID) *Wallet {
	return &Wallet{UserID: userID}
}

// Validate проверяет инварианты кошелька.
func (w *Wallet) Validate() error {
	if w.TotalBalance < 0 || w.FreeBalance < 0 || w.LockedBalance < 0 {
		return ErrIntegrity
	}
	if math.Abs(w.TotalBalance-(w.FreeBalance+w.LockedBalance)) > balanceEpsilon {
		return ErrIntegrity
	}
	return nil
}

// Credit зачисляет средства на свободный баланс.
func (w *Wallet) Credit(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return w.apply(amount, amount, 0)
}

// Debit списывает средства со свободного баланса (вывод).
func (w *Wallet) Debit(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.FreeBalance < amount {
		return ErrInsufficientFunds
	}
	return w.apply(-amount, -amount, 0)
}

// Lock переводит средства из свободного баланса в заблокированный.
func (w *Wallet) Lock(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.FreeBalance < amount {
		return ErrInsufficientFunds
	}
	return w.apply(0, -amount, amount)
}

// Unlock возвращает заблокированные средства в свободный баланс.
// Общий баланс не меняется.
func (w *Wallet) Unlock(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.LockedBalance < amount {
		return ErrIntegrity
	}
	return w.apply(0, amount, -amount)
}

// ReleaseLocked списывает заблокированные средства из кошелька полностью:
// деньги покидают кошелёк плательщика при выплате получателю.
func (w *Wallet) ReleaseLocked(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.LockedBalance < amount {
		return ErrIntegrity
	}
	return w.apply(-amount, 0, -amount)
}

// apply атомарно применяет дельты и проверяет инварианты.
// При нарушении кошелёк остаётся в исходном состоянии.
func (w *Wallet) apply(dTotal, dFree, dLocked float64) error {
	next := *w
	next.TotalBalance += dTotal
	next.FreeBalance += dFree
	next.LockedBalance += dLocked
	if err := next.Validate(); err != nil {
		return err
	}
	w.TotalBalance = next.TotalBalance
	w.FreeBalance = next.FreeBalance
	w.LockedBalance = next.LockedBalance
	return nil
}
