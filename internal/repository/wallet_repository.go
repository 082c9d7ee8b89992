package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/refermarket/referral-backend/internal/models"
)

var (
	// ErrWalletNotFound возвращается, когда кошелёк не найден.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrEscrowNotFound возвращается, когда escrow не найден.
	ErrEscrowNotFound = errors.New("escrow not found")
	// ErrEscrowAlreadyProcessed возвращается при попытке повторно завершить escrow.
	ErrEscrowAlreadyProcessed = errors.New("escrow already processed")
	// ErrEscrowNotAssigned возвращается при попытке выплатить escrow без назначенного реферера.
	ErrEscrowNotAssigned = errors.New("escrow has no assigned referrer")
)

// WalletRepository отвечает за работу с таблицами wallets, wallet_transactions и escrows.
// Все мутации выполняются в одной SQL-транзакции; строки кошельков берутся
// FOR UPDATE, поэтому конкурентные операции над одним кошельком сериализуются.
// Арифметика балансов и проверка инвариантов живут в models.Wallet; репозиторий
// записывает уже проверенные значения.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository создаёт экземпляр репозитория.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetWallet возвращает кошелёк пользователя, создаёт пустой при первом обращении.
func (r *WalletRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (user_id, total_balance, free_balance, locked_balance)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, total_balance, free_balance, locked_balance, created_at, updated_at
	`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get wallet %w", err)
	}
	return &wallet, nil
}

// AddFunds зачисляет средства на свободный баланс пользователя.
func (r *WalletRepository) AddFunds(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.Wallet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := lockWalletTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := wallet.Credit(amount); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, wallet); err != nil {
		return nil, err
	}

	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      userID,
		Kind:        models.TransactionKindAdd,
		Amount:      amount,
		Description: description,
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return wallet, tx.Commit()
}

// Withdraw списывает средства со свободного баланса пользователя.
func (r *WalletRepository) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := lockWalletTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := wallet.Debit(amount); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, wallet); err != nil {
		return nil, err
	}

	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      userID,
		Kind:        models.TransactionKindWithdraw,
		Amount:      amount,
		Description: "Вывод средств на банковский счёт",
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return wallet, tx.Commit()
}

// LockToEscrow замораживает средства соискателя под реферальный запрос.
// Идемпотентна по referralID: существующий escrow возвращается без изменений
// балансов. referrerID может быть uuid.Nil, пока реферер неизвестен; повторный
// вызов с реальным реферером назначает получателя существующему escrow.
func (r *WalletRepository) LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Блокировка кошелька соискателя сериализует конкурентные вызовы
	// по одному referralID: у запроса всегда один и тот же плательщик.
	wallet, err := lockWalletTx(ctx, tx, seekerID)
	if err != nil {
		return nil, err
	}

	existing, err := getEscrowTx(ctx, tx, referralID)
	if err != nil && !errors.Is(err, ErrEscrowNotFound) {
		return nil, err
	}
	if existing != nil {
		if err := assignReferrerTx(ctx, tx, existing, referrerID); err != nil {
			return nil, err
		}
		return existing, tx.Commit()
	}

	if err := wallet.Lock(amount); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, wallet); err != nil {
		return nil, err
	}

	var refPtr *uuid.UUID
	if referrerID != uuid.Nil {
		refPtr = &referrerID
	}

	// Уникальный индекс по referral_id страхует проверку выше: конкурентные
	// вызовы по одному запросу сериализуются на блокировке кошелька соискателя,
	// поэтому проигравший всегда видит escrow победителя до этой точки.
	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `
		INSERT INTO escrows (referral_id, seeker_id, referrer_id, amount, status)
		VALUES ($1, $2, $3, $4, 'LOCKED')
		RETURNING id, referral_id, seeker_id, referrer_id, amount, status, locked_at, released_at
	`, referralID, seekerID, refPtr, amount)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: create escrow %w", err)
	}

	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      seekerID,
		Kind:        models.TransactionKindLock,
		Amount:      amount,
		Description: "Заморозка средств под реферальный запрос",
		ReferralID:  &referralID,
		EscrowID:    &escrow.ID,
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return &escrow, tx.Commit()
}

// ReleaseEscrow выплачивает заблокированные средства рефереру.
// Деньги полностью покидают кошелёк соискателя; кошелёк реферера
// создаётся лениво при первой выплате.
func (r *WalletRepository) ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	escrow, err := lockEscrowTx(ctx, tx, referralID)
	if err != nil {
		return nil, err
	}
	if escrow.IsTerminal() {
		return nil, ErrEscrowAlreadyProcessed
	}
	if escrow.ReferrerID == nil {
		return nil, ErrEscrowNotAssigned
	}

	seeker, referrer, err := lockWalletPairTx(ctx, tx, escrow.SeekerID, *escrow.ReferrerID)
	if err != nil {
		return nil, err
	}

	if err := seeker.ReleaseLocked(escrow.Amount); err != nil {
		return nil, err
	}
	if err := referrer.Credit(escrow.Amount); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, seeker); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, referrer); err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET status = 'RELEASED', released_at = $2 WHERE id = $1`,
		escrow.ID, now,
	); err != nil {
		return nil, fmt.Errorf("wallet repository: release escrow %w", err)
	}
	escrow.Status = models.EscrowStatusReleased
	escrow.ReleasedAt = &now

	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      escrow.SeekerID,
		Kind:        models.TransactionKindRelease,
		Amount:      escrow.Amount,
		Description: "Выплата рефереру за выполненную рекомендацию",
		ReferralID:  &referralID,
		EscrowID:    &escrow.ID,
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}
	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      *escrow.ReferrerID,
		Kind:        models.TransactionKindAdd,
		Amount:      escrow.Amount,
		Description: "Получение оплаты за рекомендацию",
		ReferralID:  &referralID,
		EscrowID:    &escrow.ID,
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return escrow, tx.Commit()
}

// RefundEscrow возвращает заблокированные средства соискателю.
// Общий баланс соискателя не меняется: средства снова становятся свободными.
func (r *WalletRepository) RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	escrow, err := lockEscrowTx(ctx, tx, referralID)
	if err != nil {
		return nil, err
	}
	if escrow.IsTerminal() {
		return nil, ErrEscrowAlreadyProcessed
	}

	wallet, err := lockWalletTx(ctx, tx, escrow.SeekerID)
	if err != nil {
		return nil, err
	}

	if err := wallet.Unlock(escrow.Amount); err != nil {
		return nil, err
	}
	if err := saveWalletTx(ctx, tx, wallet); err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET status = 'REFUNDED', released_at = $2 WHERE id = $1`,
		escrow.ID, now,
	); err != nil {
		return nil, fmt.Errorf("wallet repository: refund escrow %w", err)
	}
	escrow.Status = models.EscrowStatusRefunded
	escrow.ReleasedAt = &now

	if err := appendTransactionTx(ctx, tx, &models.WalletTransaction{
		UserID:      escrow.SeekerID,
		Kind:        models.TransactionKindRefund,
		Amount:      escrow.Amount,
		Description: "Возврат средств по реферальному запросу",
		ReferralID:  &referralID,
		EscrowID:    &escrow.ID,
		Status:      models.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return escrow, tx.Commit()
}

// GetEscrowByReferralID возвращает escrow по идентификатору запроса.
func (r *WalletRepository) GetEscrowByReferralID(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	err := r.db.GetContext(ctx, &escrow, `SELECT * FROM escrows WHERE referral_id = $1`, referralID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("wallet repository: get escrow %w", err)
	}
	return &escrow, nil
}

// ListExpiredEscrows возвращает escrow, заблокированные раньше lockedBefore,
// по запросам, которые всё ещё удерживают средства.
func (r *WalletRepository) ListExpiredEscrows(ctx context.Context, lockedBefore time.Time) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT e.* FROM escrows e
		JOIN referral_requests rr ON rr.id = e.referral_id
		WHERE e.status = 'LOCKED'
		  AND e.locked_at < $1
		  AND rr.status IN ('pending', 'accepted', 'in_progress', 'referred')
		ORDER BY e.locked_at
	`, lockedBefore)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: list expired escrows %w", err)
	}
	return escrows, nil
}

// ListStrandedEscrows возвращает ещё заблокированные escrow по запросам,
// которые уже закрыты. Такое удержание означает, что денежная операция
// оборвалась после смены статуса запроса и её нужно довести до конца.
func (r *WalletRepository) ListStrandedEscrows(ctx context.Context) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT e.* FROM escrows e
		JOIN referral_requests rr ON rr.id = e.referral_id
		WHERE e.status = 'LOCKED'
		  AND rr.status IN ('cancelled', 'completed')
		ORDER BY e.locked_at
	`)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: list stranded escrows %w", err)
	}
	return escrows, nil
}

// ListTransactions возвращает журнал операций пользователя.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	var transactions []models.WalletTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT id, user_id, kind, amount, description, referral_id, escrow_id, status, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: list transactions %w", err)
	}
	return transactions, nil
}

// lockWalletTx возвращает строку кошелька под FOR UPDATE, создавая её при необходимости.
func lockWalletTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, total_balance, free_balance, locked_balance)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: ensure wallet %w", err)
	}

	var wallet models.Wallet
	if err := tx.GetContext(ctx, &wallet,
		`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: lock wallet %w", err)
	}
	return &wallet, nil
}

// lockWalletPairTx блокирует два кошелька в детерминированном порядке,
// чтобы встречные выплаты не приводили к взаимной блокировке.
func lockWalletPairTx(ctx context.Context, tx *sqlx.Tx, firstID, secondID uuid.UUID) (*models.Wallet, *models.Wallet, error) {
	if firstID == secondID {
		// Одна и та же строка в двух структурах привела бы к двойной записи баланса.
		return nil, nil, fmt.Errorf("wallet repository: обе стороны выплаты указывают на один кошелёк")
	}
	a, b := firstID, secondID
	if b.String() < a.String() {
		a, b = b, a
	}
	wa, err := lockWalletTx(ctx, tx, a)
	if err != nil {
		return nil, nil, err
	}
	wb, err := lockWalletTx(ctx, tx, b)
	if err != nil {
		return nil, nil, err
	}
	if wa.UserID == firstID {
		return wa, wb, nil
	}
	return wb, wa, nil
}

// saveWalletTx повторно проверяет инварианты и записывает балансы.
func saveWalletTx(ctx context.Context, tx *sqlx.Tx, wallet *models.Wallet) error {
	if err := wallet.Validate(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET total_balance = $2, free_balance = $3, locked_balance = $4, updated_at = NOW()
		WHERE user_id = $1
	`, wallet.UserID, wallet.TotalBalance, wallet.FreeBalance, wallet.LockedBalance); err != nil {
		return fmt.Errorf("wallet repository: save wallet %w", err)
	}
	return nil
}

// appendTransactionTx дописывает запись в журнал операций.
func appendTransactionTx(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error {
	if err := tx.QueryRowxContext(ctx, `
		INSERT INTO wallet_transactions (user_id, kind, amount, description, referral_id, escrow_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.UserID, t.Kind, t.Amount, t.Description, t.ReferralID, t.EscrowID, t.Status,
	).Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("wallet repository: append transaction %w", err)
	}
	return nil
}

func getEscrowTx(ctx context.Context, tx *sqlx.Tx, referralID uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	if err := tx.GetContext(ctx, &escrow,
		`SELECT * FROM escrows WHERE referral_id = $1`, referralID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("wallet repository: get escrow %w", err)
	}
	return &escrow, nil
}

func lockEscrowTx(ctx context.Context, tx *sqlx.Tx, referralID uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	if err := tx.GetContext(ctx, &escrow,
		`SELECT * FROM escrows WHERE referral_id = $1 FOR UPDATE`, referralID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("wallet repository: lock escrow %w", err)
	}
	return &escrow, nil
}

// assignReferrerTx назначает реферера существующему escrow, если он ещё не назначен.
func assignReferrerTx(ctx context.Context, tx *sqlx.Tx, escrow *models.Escrow, referrerID uuid.UUID) error {
	if referrerID == uuid.Nil || escrow.ReferrerID != nil || escrow.IsTerminal() {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET referrer_id = $2 WHERE id = $1 AND referrer_id IS NULL`,
		escrow.ID, referrerID,
	); err != nil {
		return fmt.Errorf("wallet repository: assign referrer %w", err)
	}
	escrow.ReferrerID = &referrerID
	return nil
}
