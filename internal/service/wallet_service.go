package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/models"
)

// WalletRepository описывает взаимодействие сервиса со слоем хранилища.
type WalletRepository interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	AddFunds(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error)
	LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	GetEscrowByReferralID(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	ListExpiredEscrows(ctx context.Context, lockedBefore time.Time) ([]models.Escrow, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
}

// WalletService — единственная точка изменения балансов.
// Никакой другой компонент не пишет в кошельки напрямую.
type WalletService struct {
	repo WalletRepository
}

// NewWalletService создаёт сервис кошельков.
func NewWalletService(repo WalletRepository) *WalletService {
	return &WalletService{repo: repo}
}

// GetWallet возвращает кошелёк пользователя, создавая пустой при первом обращении.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

// AddFunds пополняет свободный баланс.
func (s *WalletService) AddFunds(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if description == "" {
		description = "Пополнение кошелька"
	}
	return s.repo.AddFunds(ctx, userID, amount, description)
}

// TopUp пополняет кошелёк по внешнему платежу. Ссылка на подтверждение
// (id транзакции UPI или путь к загруженному файлу) проверяется только на
// формат: зачисление в любом случае идёт через AddFunds и журналируется.
func (s *WalletService) TopUp(ctx context.Context, userID uuid.UUID, amount float64, proofRef string) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef != "" && !proofRefPattern.MatchString(proofRef) {
		return nil, fmt.Errorf("wallet service: некорректная ссылка на подтверждение оплаты")
	}

	description := "Пополнение кошелька"
	if proofRef != "" {
		description = "Пополнение по подтверждению " + proofRef
	}
	return s.repo.AddFunds(ctx, userID, amount, description)
}

// proofRefPattern допускает id внешних транзакций и относительные пути файлов.
var proofRefPattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]{8,200}$`)

// Withdraw выводит средства со свободного баланса.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	return s.repo.Withdraw(ctx, userID, amount)
}

// LockToEscrow замораживает средства соискателя под запрос.
// Идемпотентна по referralID.
func (s *WalletService) LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	return s.repo.LockToEscrow(ctx, referralID, seekerID, referrerID, amount)
}

// ReleaseEscrow выплачивает escrow рефереру.
func (s *WalletService) ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	return s.repo.ReleaseEscrow(ctx, referralID)
}

// RefundEscrow возвращает escrow соискателю.
func (s *WalletService) RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	return s.repo.RefundEscrow(ctx, referralID)
}

// GetEscrow возвращает escrow по запросу.
func (s *WalletService) GetEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	return s.repo.GetEscrowByReferralID(ctx, referralID)
}

// ListTransactions возвращает журнал операций пользователя.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}
